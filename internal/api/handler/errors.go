package handler

import (
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/delayq/internal/api/dto"
	"github.com/cuongbtq/delayq/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string         `json:"error"`
	Fields map[string]any `json:"fields,omitempty"`
}

// StatusFor maps a store or manager error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrDuplicateJob):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoPartition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidCallbackType),
		errors.Is(err, domain.ErrInvalidRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Server errors hide the
// underlying cause from the client.
func respondError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, slog.String("error", err.Error()))
		c.JSON(status, ErrorResponse{Error: msg})
		return
	}

	logger.Warn(msg, slog.Int("status", status), slog.String("error", err.Error()))
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// bindJSON decodes and validates the request body. It writes a 400 and
// returns false on failure.
func bindJSON(c *gin.Context, logger *slog.Logger, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		logger.Warn("Invalid request body", slog.String("error", err.Error()))
		badRequest(c, "Invalid request body")
		return false
	}

	if err := dto.Validate.Struct(dest); err != nil {
		logger.Warn("Request validation failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Fields: dto.FieldErrors(err),
		})
		return false
	}
	return true
}
