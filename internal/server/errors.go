package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	directorydomain "github.com/smallbiznis/invoicely/internal/directory/domain"
	"github.com/smallbiznis/invoicely/internal/generation"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type          string                `json:"type"`
	Message       string                `json:"message"`
	Errors        []ValidationError     `json:"errors,omitempty"`
	CurrentStatus scheduledomain.Status `json:"current_status,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
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
	return scheduledomain.NewFieldError("request", "invalid_request", "invalid request")
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErr *scheduledomain.ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		out := make([]ValidationError, 0, len(vErr.Errors))
		for _, fe := range vErr.Errors {
			out = append(out, ValidationError{Field: fe.Field, Code: fe.Code, Message: fe.Message})
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  out,
		}
	}

	var illegal *scheduledomain.IllegalTransitionError
	if errors.As(err, &illegal) {
		return http.StatusConflict, errorPayload{
			Type:          "illegal_state_transition",
			Message:       illegal.Error(),
			CurrentStatus: illegal.From,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, scheduledomain.ErrInvalidID),
		errors.Is(err, scheduledomain.ErrInvalidOrganization),
		errors.Is(err, pagination.ErrInvalidPageToken):
		field, code := validationField(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: field, Code: code, Message: "invalid value"},
			},
		}
	case errors.Is(err, generation.ErrConcurrencyConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "generation already in progress for this occurrence",
		}
	case errors.Is(err, scheduledomain.ErrOccurrenceLimitReached):
		return http.StatusConflict, errorPayload{
			Type:    "occurrence_limit_reached",
			Message: "schedule has reached max_occurrences",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, generation.ErrGenerationFailed):
		return http.StatusInternalServerError, errorPayload{
			Type:    "generation_failed",
			Message: "invoice generation failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func validationField(err error) (string, string) {
	switch {
	case errors.Is(err, scheduledomain.ErrInvalidID):
		return "id", "invalid_id"
	case errors.Is(err, scheduledomain.ErrInvalidOrganization):
		return HeaderOrg, "invalid_organization"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "page_token", "invalid_page_token"
	default:
		return "request", "invalid_request"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, scheduledomain.ErrNotFound),
		errors.Is(err, directorydomain.ErrClientNotFound),
		errors.Is(err, directorydomain.ErrCatalogItemNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog reduces a handler error to the response type and status
// code for request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	return payload.Type, http.StatusText(status)
}
