package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/skillcheck/session-engine/internal/errors"
	"github.com/skillcheck/session-engine/internal/services"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging and error mapping for all handlers
type BaseHandler struct {
	logger *slog.Logger
}

func NewBaseHandler(logger *slog.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// RespondWithError maps a service error to an HTTP status and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, err error, message string) {
	status := statusFor(err)

	h.logger.Warn(message,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status_code", status,
		"error", err)

	c.JSON(status, ErrorResponse{Message: message, Details: err.Error()})
}

func statusFor(err error) int {
	var ve apperrors.ValidationErrors
	switch {
	case errors.Is(err, services.ErrValidationFailed) || errors.As(err, &ve):
		return http.StatusBadRequest
	case services.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, services.ErrExplanationPending) ||
		errors.Is(err, services.ErrNoExplanation) ||
		errors.Is(err, services.ErrSessionNotActive) ||
		errors.Is(err, services.ErrNotCompleting):
		return http.StatusConflict
	case services.IsRetryable(err):
		return http.StatusServiceUnavailable
	case services.IsFatal(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithSuccess sends a consistent success response
func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{Message: message, Data: data})
}

// ParseStringIDParam extracts a non-empty path parameter
func ParseStringIDParam(c *gin.Context, param string) string {
	idStr := strings.TrimSpace(c.Param(param))
	if idStr == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID cannot be empty",
		})
		return ""
	}
	return idStr
}

// HealthCheck reports service liveness
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
