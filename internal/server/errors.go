package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/equiplytics/internal/dataset/csvimport"
	datasetdomain "github.com/smallbiznis/equiplytics/internal/dataset/domain"
	"github.com/smallbiznis/equiplytics/internal/ownerlock"
	"github.com/smallbiznis/equiplytics/internal/report"
)

type ValidationError struct {
	Row        int                   `json:"row,omitempty"`
	Field      string                `json:"field"`
	Code       string                `json:"code"`
	Message    string                `json:"message"`
	Violations []csvimport.Violation `json:"violations,omitempty"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was written.
const statusClientClosedRequest = 499

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, validationPayload(vErr.Errors)
	}

	var structural *csvimport.StructuralError
	if errors.As(err, &structural) {
		return http.StatusBadRequest, validationPayload(structuralErrors(structural))
	}

	var rowErrs csvimport.RowErrors
	if errors.As(err, &rowErrs) {
		return http.StatusBadRequest, validationPayload(rowValidationErrors(rowErrs))
	}

	var genErr *report.GenerationError
	if errors.As(err, &genErr) {
		return http.StatusInternalServerError, errorPayload{
			Type:    "report_generation_failed",
			Message: "report generation failed",
		}
	}

	switch {
	case errors.Is(err, datasetdomain.ErrInvalidID):
		return http.StatusBadRequest, validationPayload([]ValidationError{
			{Field: "id", Code: "invalid_id", Message: "invalid dataset id"},
		})
	case errors.Is(err, datasetdomain.ErrInvalidPageToken):
		return http.StatusBadRequest, validationPayload([]ValidationError{
			{Field: "page_token", Code: "invalid_page_token", Message: "invalid page token"},
		})
	case errors.Is(err, datasetdomain.ErrInvalidFileFormat):
		return http.StatusBadRequest, validationPayload([]ValidationError{
			{Field: "file", Code: "invalid_file_format", Message: "only .csv files are accepted"},
		})
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, validationPayload([]ValidationError{
			{Field: "request", Code: "invalid_request", Message: "invalid request"},
		})
	case errors.Is(err, datasetdomain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "file_too_large",
			Message: "uploaded file is too large",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, datasetdomain.ErrInvalidOwner):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, datasetdomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many uploads, retry later",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ownerlock.ErrLockNotAcquired):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, errorPayload{
			Type:    "request_cancelled",
			Message: "request cancelled",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPayload{
			Type:    "timeout",
			Message: "request timed out",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the response type and the first error code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func validationPayload(errs []ValidationError) errorPayload {
	return errorPayload{
		Type:    "validation_error",
		Message: "validation error",
		Errors:  errs,
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func structuralErrors(err *csvimport.StructuralError) []ValidationError {
	if len(err.Missing) == 0 {
		return []ValidationError{{Field: "file", Code: "invalid_csv", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(err.Missing))
	for _, label := range err.Missing {
		out = append(out, ValidationError{
			Field:   label,
			Code:    "missing_column",
			Message: "required column is missing",
		})
	}
	return out
}

func rowValidationErrors(errs csvimport.RowErrors) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		out = append(out, ValidationError{
			Row:        e.Row,
			Field:      e.Field,
			Code:       e.Reason,
			Message:    e.Error(),
			Violations: e.Violations,
		})
	}
	return out
}
