package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	settlementdomain "github.com/kongfuworld/settlement/internal/settlement/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
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

var (
	ErrNotFound           = errors.New("not_found")
	ErrServiceUnavailable = errors.New("service_unavailable")
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
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, settlementdomain.ErrRunNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
