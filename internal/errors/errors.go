// Package errors wraps failures with the component, category and context
// that logs, the API and optional telemetry need. Sentinels for the soil
// classification core live in domain.go.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for reporting and HTTP status mapping.
type ErrorCategory string

// CategorizedError is implemented by error types that know their category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryModelInit     ErrorCategory = "model-initialization"
	CategoryModelLoad     ErrorCategory = "model-loading"
	CategoryLabelLoad     ErrorCategory = "label-loading"
	CategoryInference     ErrorCategory = "inference"
	CategoryImageInput    ErrorCategory = "image-input"
	CategoryImageQuality  ErrorCategory = "image-quality"
	CategoryValidation    ErrorCategory = "validation"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryDatabase      ErrorCategory = "database"
	CategoryHTTP          ErrorCategory = "http-request"
	CategoryConfiguration ErrorCategory = "configuration"
	CategorySystem        ErrorCategory = "system-resource"
	CategoryGeneric       ErrorCategory = "generic"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryProcessing    ErrorCategory = "processing"
	CategoryState         ErrorCategory = "state"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryExport        ErrorCategory = "export"
)

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is reported when no soilnet package is on the stack.
const ComponentUnknown = "unknown"

const modulePrefix = "github.com/tphakala/soilnet-go/"

// componentPackages maps package paths below the module to component
// names. Longer paths come first so nested packages win.
var componentPackages = []struct {
	pkg, name string
}{
	{"internal/observability", "observability"},
	{"internal/classifier", "classifier"},
	{"internal/datastore", "datastore"},
	{"internal/telemetry", "telemetry"},
	{"internal/analysis", "analysis"},
	{"internal/imaging", "imaging"},
	{"internal/export", "export"},
	{"internal/stats", "stats"},
	{"internal/scan", "scan"},
	{"internal/conf", "configuration"},
	{"internal/api", "api"},
	{"cmd", "cli"},
}

// EnhancedError is an error annotated by the ErrorBuilder. Its fields are
// fixed once Build returns.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Priority  string // empty unless set explicitly
	Context   map[string]any
	Timestamp time.Time

	component     string
	componentOnce sync.Once
	reported      atomic.Bool
}

func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError of the same category, otherwise it
// defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return Is(ee.Err, target)
}

// GetComponent returns the component set on the builder, or the first
// soilnet package found on the stack when the error was built.
func (ee *EnhancedError) GetComponent() string {
	ee.componentOnce.Do(func() {
		if ee.component == "" {
			ee.component = ComponentUnknown
		}
	})
	return ee.component
}

func (ee *EnhancedError) GetPriority() string {
	return ee.Priority
}

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

func (ee *EnhancedError) GetMessage() string {
	if ee.Err == nil {
		return ""
	}
	return ee.Err.Error()
}

// MarkReported records that telemetry has seen this error.
func (ee *EnhancedError) MarkReported() {
	ee.reported.Store(true)
}

func (ee *EnhancedError) IsReported() bool {
	return ee.reported.Load()
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New starts a builder around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder around a formatted error.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority overrides the reporting priority. Unknown values become medium.
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case "":
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		eb.priority = PriorityMedium
	}
	return eb
}

func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// ModelContext records the model file format and version. The path itself
// is not kept.
func (eb *ErrorBuilder) ModelContext(modelPath, modelVersion string) *ErrorBuilder {
	eb.Context("model_format", modelFormat(modelPath))
	if modelVersion != "" {
		eb.Context("model_version", modelVersion)
	}
	return eb
}

// FileContext records the kind of path, the extension and a size bucket.
// The path itself is not kept.
func (eb *ErrorBuilder) FileContext(filePath string, fileSize int64) *ErrorBuilder {
	if filePath != "" {
		eb.Context("file_type", pathKind(filePath))
		eb.Context("file_extension", extensionOf(filePath))
	}
	if fileSize > 0 {
		eb.Context("file_size_category", sizeBucket(fileSize))
	}
	return eb
}

func (eb *ErrorBuilder) ImageContext(width, height int) *ErrorBuilder {
	eb.Context("image_width", width)
	eb.Context("image_height", height)
	return eb
}

func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb.Context("operation", operation)
	eb.Context("duration_ms", duration.Milliseconds())
	return eb
}

// Build creates the error and hands it to the telemetry reporter when one
// is active. The stack is only walked for the component while reporting.
func (eb *ErrorBuilder) Build() *EnhancedError {
	reporting := hasActiveReporting.Load()

	component := eb.component
	if component == "" && reporting {
		component = componentFromStack()
	}
	category := eb.category
	if category == "" {
		category = detectCategory(eb.err, component)
	}

	ee := &EnhancedError{
		Err:       eb.err,
		Category:  category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: component,
	}
	if reporting {
		reportToTelemetry(ee)
	}
	return ee
}

func componentFromStack() string {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if name := componentOf(frame.Function); name != "" {
			return name
		}
		if !more {
			return ComponentUnknown
		}
	}
}

// componentOf maps a fully qualified function name to a component, or ""
// for functions outside the module and in this package.
func componentOf(function string) string {
	rel, ok := strings.CutPrefix(function, modulePrefix)
	if !ok || strings.HasPrefix(rel, "internal/errors.") {
		return ""
	}
	for _, c := range componentPackages {
		if strings.HasPrefix(rel, c.pkg+".") || strings.HasPrefix(rel, c.pkg+"/") {
			return c.name
		}
	}
	return ""
}

// detectCategory picks a category for an error built without one: an
// explicit category on the error chain first, then the core sentinels, then
// the component's usual failure kind.
func detectCategory(err error, component string) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}

	var categorized CategorizedError
	if As(err, &categorized) {
		return categorized.ErrorCategory()
	}
	var enhanced *EnhancedError
	if As(err, &enhanced) && enhanced.Category != "" {
		return enhanced.Category
	}

	switch {
	case Is(err, context.Canceled):
		return CategoryCancellation
	case Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case Is(err, ErrInvalidImage), Is(err, ErrConversionFailed):
		return CategoryImageInput
	case Is(err, ErrPoorQuality):
		return CategoryImageQuality
	case Is(err, ErrModelLoadFailed):
		return CategoryModelLoad
	case Is(err, ErrModelNotLoaded):
		return CategoryState
	case Is(err, ErrNoResults), Is(err, ErrLowConfidence):
		return CategoryInference
	case Is(err, ErrDuplicateID):
		return CategoryConflict
	case Is(err, ErrNotFound):
		return CategoryNotFound
	}

	switch component {
	case "classifier":
		return CategoryInference
	case "imaging":
		return CategoryImageInput
	case "datastore":
		return CategoryDatabase
	case "api":
		return CategoryHTTP
	case "export":
		return CategoryExport
	case "configuration":
		return CategoryConfiguration
	}
	return CategoryGeneric
}

func modelFormat(path string) string {
	switch ext := extensionOf(path); {
	case path == "":
		return "builtin"
	case ext == "tflite":
		return "tflite"
	default:
		return "other"
	}
}

func pathKind(path string) string {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") || strings.Contains(path, ":\\") {
		return "absolute-path"
	}
	return "relative-path"
}

func extensionOf(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "none"
	}
	return strings.ToLower(ext)
}

// sizeBucket groups sizes the way phone photos spread: most fall in small
// or medium, anything past the default upload limit is oversized.
func sizeBucket(size int64) string {
	const mb = 1 << 20
	switch {
	case size < 64<<10:
		return "tiny"
	case size < mb:
		return "small"
	case size < 8*mb:
		return "medium"
	case size < 20*mb:
		return "large"
	default:
		return "oversized"
	}
}

// NewStd, Is, As, Unwrap and Join pass through to the standard library so
// callers need a single errors import.

func NewStd(text string) error {
	return stderrors.New(text)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory reports whether err wraps an EnhancedError of category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == category
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound) || Is(err, ErrNotFound)
}
