package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/andrsadr/koravi/internal/service"
)

// Pinger is an optional dependency checked by readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	clients *service.ClientService
	redis   Pinger
	logger  *slog.Logger
	timeout time.Duration
}

// NewHealthHandler creates a new health handler; redis may be nil
func NewHealthHandler(clients *service.ClientService, redis Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthHandler{
		clients: clients,
		redis:   redis,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// HealthResponse represents the health status response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status   string               `json:"status"`
	Checks   map[string]string    `json:"checks"`
	Database service.HealthReport `json:"database"`
}

// Register mounts the health routes on mux
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)
}

// Health handles GET /healthz - Simple liveness check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /readyz. Returns 200 only when the database is healthy
// and Redis, if configured, answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string)

	db := h.clients.CheckHealth(ctx)
	checks["database"] = db.Status
	ready := db.Status == service.HealthHealthy

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = "error: " + err.Error()
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "not configured"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, h.logger, statusCode, ReadinessResponse{
		Status:   status,
		Checks:   checks,
		Database: db,
	})

	h.logger.Debug("readiness check",
		slog.String("status", status),
		slog.String("database", checks["database"]),
		slog.String("redis", checks["redis"]),
	)
}
