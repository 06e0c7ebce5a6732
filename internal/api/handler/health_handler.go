package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 3 * time.Second

// HealthHandler probes the configured backing services.
type HealthHandler struct {
	logger  *slog.Logger
	checks  map[string]HealthChecker
	service string
}

func NewHealthHandler(deps *Dependencies, service string) *HealthHandler {
	return &HealthHandler{
		logger:  deps.Logger.With(slog.String("component", "health_handler")),
		checks:  deps.HealthChecks,
		service: service,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].HealthCheck(ctx); err != nil {
			h.logger.Warn("Health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			checks[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":  overall,
		"service": h.service,
		"checks":  checks,
	})
}
