package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/monitor"
)

// healthCheckTimeout bounds the database ping behind /health.
const healthCheckTimeout = 5 * time.Second

// SystemStore is the subset of the repository used for health and usage.
type SystemStore interface {
	Ping(ctx context.Context) error
	ListUsageSamples(ctx context.Context, limit int) ([]*domain.UsageSample, error)
}

// ModelProber checks that the hosted model answers.
type ModelProber interface {
	Probe(ctx context.Context) (string, error)
}

// SystemOptions supply optional live counters reported by /health.
type SystemOptions struct {
	ActiveConnections func() int
	IndexedProjects   func() int
	ProbeTimeout      time.Duration
}

// SystemHandler serves health, usage and model diagnostics.
type SystemHandler struct {
	repo   SystemStore
	prober ModelProber
	opts   SystemOptions
	logger *slog.Logger
}

// NewSystemHandler creates a SystemHandler. prober may be nil when no model
// is configured.
func NewSystemHandler(repo SystemStore, prober ModelProber, opts SystemOptions, logger *slog.Logger) *SystemHandler {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{repo: repo, prober: prober, opts: opts, logger: logger}
}

// RegisterRoutes mounts the system routes. Usage goes through admin.
func (h *SystemHandler) RegisterRoutes(r chi.Router, admin Middleware) {
	r.Get("/health", h.Health)
	r.Get("/api/test/model", h.TestModel)
	r.With(orPassthrough(admin)).Get("/api/usage", h.Usage)
}

// Health returns the health status of the API and its dependencies.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]any{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.prober == nil {
		checks["ai"] = "disabled"
	} else {
		checks["ai"] = "configured"
	}
	if h.opts.ActiveConnections != nil {
		status["active_connections"] = h.opts.ActiveConnections()
	}
	if h.opts.IndexedProjects != nil {
		status["indexed_projects"] = h.opts.IndexedProjects()
	}

	JSON(w, statusCode, status)
}

type probeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TestModel sends a tiny prompt to the hosted model.
func (h *SystemHandler) TestModel(w http.ResponseWriter, r *http.Request) {
	if h.prober == nil {
		JSON(w, http.StatusServiceUnavailable, probeResponse{Message: "Connection failed: no model API key configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ProbeTimeout)
	defer cancel()
	reply, err := h.prober.Probe(ctx)
	if err != nil {
		h.logger.Error("Model probe failed", "error", err)
		JSON(w, http.StatusInternalServerError, probeResponse{Message: "Connection failed: " + err.Error()})
		return
	}

	if runes := []rune(reply); len(runes) > 100 {
		reply = string(runes[:100])
	}
	JSON(w, http.StatusOK, probeResponse{Success: true, Message: "Connection successful. Response: " + reply + "..."})
}

// Usage returns the most recent usage samples, newest first.
func (h *SystemHandler) Usage(w http.ResponseWriter, r *http.Request) {
	limit := monitor.KeepSamples
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, monitor.KeepSamples)
	}

	samples, err := h.repo.ListUsageSamples(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list usage samples", "error", err)
		Error(w, http.StatusInternalServerError, "Error fetching usage")
		return
	}
	if samples == nil {
		samples = []*domain.UsageSample{}
	}
	JSON(w, http.StatusOK, map[string]any{"samples": samples})
}
