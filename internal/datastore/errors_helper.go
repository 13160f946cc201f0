// Package datastore provides error handling helpers for database operations
package datastore

import (
	"fmt"
	"strings"

	"github.com/tphakala/soilnet-go/internal/errors"
)

// dbError creates a categorized database error with context pairs.
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}
	return withPairs(builder, context).Build()
}

// validationError creates a validation error for a rejected field.
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// duplicateError reports an insert whose id is already stored.
func duplicateError(id string, cause error) error {
	err := errors.ErrDuplicateID
	if cause != nil {
		err = fmt.Errorf("%w: %w", errors.ErrDuplicateID, cause)
	}
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryConflict).
		Priority(errors.PriorityLow).
		Context("operation", "save").
		Context("record_id", id).
		Build()
}

// notFoundError reports an update or delete of a missing record.
func notFoundError(operation, id string) error {
	return errors.New(errors.ErrNotFound).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Priority(errors.PriorityLow).
		Context("operation", operation).
		Context("record_id", id).
		Build()
}

// stateError reports a store used before Open or after Close.
func stateError(operation string) error {
	return errors.Newf("database connection is not initialized").
		Component("datastore").
		Category(errors.CategoryState).
		Context("operation", operation).
		Build()
}

// isDatabaseCorruption checks if an error indicates a damaged database file.
func isDatabaseCorruption(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "malformed") ||
		strings.Contains(errStr, "corrupt") ||
		strings.Contains(errStr, "not a database")
}

// isDatabaseLocked checks for lock contention errors.
func isDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "lock wait timeout")
}

// errorType classifies err for metrics labels.
func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errors.ErrDuplicateID):
		return "duplicate"
	case errors.Is(err, errors.ErrNotFound):
		return "not_found"
	case isDatabaseLocked(err):
		return "locked"
	case isDatabaseCorruption(err):
		return "corruption"
	default:
		return "database"
	}
}

// priorityFor escalates corruption so it is reported immediately.
func priorityFor(err error) string {
	switch {
	case isDatabaseCorruption(err):
		return errors.PriorityCritical
	case isDatabaseLocked(err):
		return errors.PriorityHigh
	default:
		return errors.PriorityMedium
	}
}

func withPairs(builder *errors.ErrorBuilder, context []any) *errors.ErrorBuilder {
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder
}
