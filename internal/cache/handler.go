package cache

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler exposes cache inspection and admin endpoints.
type Handler struct {
	cache  *Cache
	logger *logging.Logger
}

func NewHandler(cache *Cache, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{cache: cache, logger: logger}
}

// Routes mounts /cache/stats, /cache/health and /cache/clear on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/cache/stats", h.Stats)
	r.Get("/cache/health", h.Health)
	r.Post("/cache/clear", h.Clear)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.Stats(r.Context())
	status := http.StatusOK
	if stats.Status == "error" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, stats)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.cache.Health(r.Context())
	status := http.StatusOK
	if !health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		h.logger.Error("failed to clear cache", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to clear cache"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cache cleared successfully"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
