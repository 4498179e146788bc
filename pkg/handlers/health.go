package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/config"
)

const healthPingTimeout = 2 * time.Second

// PoolStatser reports cached pool counts. *datasource.PoolRegistry implements it.
type PoolStatser interface {
	Stats() datasource.PoolRegistryStats
	Admin(ctx context.Context) (datasource.Pool, error)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string                        `json:"status"`
	Database string                        `json:"database"`
	Pools    *datasource.PoolRegistryStats `json:"pools,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Dialect     string `json:"dialect"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	pools  PoolStatser
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. pools may be nil.
func NewHealthHandler(cfg *config.Config, pools PoolStatser, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, pools: pools, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health. The database field reports whether the
// configured server answers a ping; the endpoint itself always returns 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok", Database: "unknown"}

	if h.pools != nil {
		stats := h.pools.Stats()
		response.Pools = &stats

		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		admin, err := h.pools.Admin(ctx)
		if err == nil {
			err = admin.Ping(ctx)
		}
		if err != nil {
			h.logger.Warn("Database health check failed", zap.Error(err))
			response.Database = "unreachable"
		} else {
			response.Database = "ok"
		}
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-notebook",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Dialect:     h.cfg.Database.Dialect,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
