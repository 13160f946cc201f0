package errors

import "fmt"

// Sentinel errors shared by the soil classification core. Wrapped errors
// built with the ErrorBuilder still match these through Is.
var (
	ErrInvalidImage     = NewStd("invalid image")
	ErrConversionFailed = NewStd("image conversion failed")
	ErrPoorQuality      = NewStd("image quality below acceptance threshold")
	ErrModelNotLoaded   = NewStd("model not loaded")
	ErrModelLoadFailed  = NewStd("model load failed")
	ErrNoResults        = NewStd("classifier returned no results")
	ErrLowConfidence    = NewStd("no candidate reached the confidence threshold")
	ErrDuplicateID      = NewStd("record id already exists")
	ErrNotFound         = NewStd("record not found")
)

// ClassificationFailedError reports a backend failure during scoring.
type ClassificationFailedError struct {
	Reason string
	Err    error
}

func (e *ClassificationFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Err)
	}
	return "classification failed: " + e.Reason
}

func (e *ClassificationFailedError) Unwrap() error { return e.Err }

// ErrorCategory implements CategorizedError.
func (e *ClassificationFailedError) ErrorCategory() ErrorCategory { return CategoryInference }

// ClassificationFailed returns a ClassificationFailedError for reason.
func ClassificationFailed(reason string, err error) error {
	return &ClassificationFailedError{Reason: reason, Err: err}
}

// Class groups errors by how a caller should react to them.
type Class int

const (
	ClassUnknown Class = iota
	ClassInputValidation
	ClassModelLifecycle
	ClassInferenceFailure
	ClassPersistenceFailure
)

func (c Class) String() string {
	switch c {
	case ClassInputValidation:
		return "input-validation"
	case ClassModelLifecycle:
		return "model-lifecycle"
	case ClassInferenceFailure:
		return "inference-failure"
	case ClassPersistenceFailure:
		return "persistence-failure"
	default:
		return "unknown"
	}
}

// Retryable reports whether repeating the same request can succeed.
// Model lifecycle failures clear once loading completes; input and
// inference failures need a different image; persistence failures are
// surfaced as-is.
func (c Class) Retryable() bool {
	return c == ClassModelLifecycle
}

// ClassOf maps err onto the failure taxonomy.
func ClassOf(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	switch {
	case Is(err, ErrInvalidImage), Is(err, ErrConversionFailed), Is(err, ErrPoorQuality):
		return ClassInputValidation
	case Is(err, ErrModelNotLoaded), Is(err, ErrModelLoadFailed):
		return ClassModelLifecycle
	case Is(err, ErrNoResults), Is(err, ErrLowConfidence):
		return ClassInferenceFailure
	case Is(err, ErrDuplicateID), Is(err, ErrNotFound):
		return ClassPersistenceFailure
	}

	var cf *ClassificationFailedError
	if As(err, &cf) {
		return ClassInferenceFailure
	}

	var ee *EnhancedError
	if As(err, &ee) {
		switch ee.Category {
		case CategoryValidation, CategoryImageInput, CategoryImageQuality:
			return ClassInputValidation
		case CategoryModelInit, CategoryModelLoad, CategoryLabelLoad:
			return ClassModelLifecycle
		case CategoryInference:
			return ClassInferenceFailure
		case CategoryDatabase, CategoryConflict, CategoryNotFound:
			return ClassPersistenceFailure
		}
	}

	return ClassUnknown
}
