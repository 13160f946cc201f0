package v1

import (
	"context"
	"crypto/rand"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	Class         string `json:"class,omitempty"`
	Retryable     bool   `json:"retryable"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	resp := &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
	if err != nil {
		resp.Error = err.Error()
		class := errors.ClassOf(err)
		if class != errors.ClassUnknown {
			resp.Class = class.String()
		}
		resp.Retryable = class.Retryable()
	}
	return resp
}

// generateCorrelationID creates a short random identifier for matching a
// response to its log line.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs err and writes an error response with code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("API error", fields...)
	} else {
		c.log.Debug("API error", fields...)
	}

	return ctx.JSON(code, resp)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, errors.ErrModelNotLoaded), errors.Is(err, errors.ErrModelLoadFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrPoorQuality), errors.Is(err, errors.ErrLowConfidence), errors.Is(err, errors.ErrNoResults):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrInvalidImage), errors.Is(err, errors.ErrConversionFailed):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.IsCategory(err, errors.CategoryValidation), errors.IsCategory(err, errors.CategoryImageInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
