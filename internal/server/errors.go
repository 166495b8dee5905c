package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/slotmeter/internal/billing/domain"
	resourcedomain "github.com/smallbiznis/slotmeter/internal/resource/domain"
	sessiondomain "github.com/smallbiznis/slotmeter/internal/session/domain"
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
	Details any               `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

type capacityDetails struct {
	ResourceID     string `json:"resource_id"`
	ActiveSessions int64  `json:"active_sessions"`
	Capacity       int    `json:"capacity"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// Invalid-input sentinels. Codes carry the invalid_ prefix so the field name
// is derived from the code.
var validationErrors = []error{
	ErrInvalidRequest,
	resourcedomain.ErrInvalidName,
	resourcedomain.ErrInvalidCapacity,
	resourcedomain.ErrInvalidPrice,
	resourcedomain.ErrInvalidID,
	sessiondomain.ErrInvalidID,
	sessiondomain.ErrInvalidResource,
	sessiondomain.ErrInvalidUser,
	billingdomain.ErrInvalidSession,
	billingdomain.ErrInvalidResource,
	billingdomain.ErrInvalidUser,
	billingdomain.ErrInvalidDuration,
	billingdomain.ErrInvalidPrice,
	billingdomain.ErrCostMismatch,
}

var conflictMessages = map[error]string{
	ErrConflict:                      "conflict",
	resourcedomain.ErrNameTaken:      "resource name already exists",
	resourcedomain.ErrResourceInUse:  "resource has active sessions",
	billingdomain.ErrDuplicateRecord: "billing record already exists for session",
}

var notFoundMessages = map[error]string{
	ErrNotFound:                            "not found",
	resourcedomain.ErrNotFound:             "resource not found",
	sessiondomain.ErrResourceNotFound:      "resource not found",
	sessiondomain.ErrSessionNotFound:       "session not found",
	sessiondomain.ErrActiveSessionNotFound: "active session not found",
	billingdomain.ErrNotFound:              "billing record not found",
	gorm.ErrRecordNotFound:                 "not found",
}

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
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code := validationErrorCode(err); code != "" {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var capErr *sessiondomain.CapacityExceededError
	if errors.As(err, &capErr) {
		return http.StatusConflict, errorPayload{
			Type:    "capacity_exceeded",
			Message: "resource is at capacity",
			Details: capacityDetails{
				ResourceID:     capErr.ResourceID.String(),
				ActiveSessions: capErr.Active,
				Capacity:       capErr.Capacity,
			},
		}
	}

	if msg, ok := matchMessage(err, conflictMessages); ok {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: msg,
		}
	}

	if msg, ok := matchMessage(err, notFoundMessages); ok {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: msg,
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog returns the response type and the most specific error
// code for request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	switch {
	case len(payload.Errors) > 0:
		return payload.Type, payload.Errors[0].Code
	case payload.Type == "capacity_exceeded":
		return payload.Type, sessiondomain.ErrCapacityExceeded.Error()
	}
	if code := sentinelCode(err, conflictMessages); code != "" {
		return payload.Type, code
	}
	if code := sentinelCode(err, notFoundMessages); code != "" {
		return payload.Type, code
	}
	return payload.Type, "internal_error"
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ""
}

func matchMessage(err error, messages map[error]string) (string, bool) {
	for target, msg := range messages {
		if errors.Is(err, target) {
			return msg, true
		}
	}
	return "", false
}

func sentinelCode(err error, messages map[error]string) string {
	for target := range messages {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ""
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
