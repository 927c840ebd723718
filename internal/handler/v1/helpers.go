package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/service"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// respondServiceError maps a service error kind to its HTTP status. Causes
// are attached to the gin context for the request log; only 4xx messages
// reach the client.
func respondServiceError(c *gin.Context, err error) {
	_ = c.Error(err)

	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Code:   "VALIDATION",
			Fields: validErr.Fields,
		})
		return
	}

	switch service.KindOf(err) {
	case service.ErrUnauthorized:
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required", Code: "UNAUTHORIZED"})

	case service.ErrForbidden:
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied", Code: "FORBIDDEN"})

	case service.ErrNotFound:
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})

	case service.ErrInvalidState:
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "INVALID_STATE"})

	case service.ErrConflict:
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "CONFLICT", Retryable: true})

	case service.ErrDependencyFailure:
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:     "analysis service unavailable, please retry",
			Code:      "DEPENDENCY_FAILURE",
			Retryable: true,
		})

	case service.ErrRetryExhausted:
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: "analysis failed too many times; support has been notified",
			Code:  "RETRY_EXHAUSTED",
		})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error(), Code: "BAD_REQUEST"})
		return false
	}
	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID", Code: "BAD_REQUEST"})
		return uuid.Nil, false
	}
	return id, true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}
