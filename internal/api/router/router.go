package router

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-scheduler/internal/cache"
	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	APIVersion          string
	Environment         string
	SchedulingHandler   *scheduling.Handler
	ConversationHandler *conversation.Handler
	CacheHandler        *cache.Handler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
	// RateLimiter, when set, guards every /api route.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates the chi router. Every route lives under /api/{version}; health,
// patients, doctors and available schedules are also served unversioned
// under /api for older clients.
func New(cfg *Config) http.Handler {
	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		version = "v1"
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	health := healthHandler(version, cfg.Environment)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}

		api.Route("/"+version, func(v chi.Router) {
			v.Get("/health", health)
			if cfg.SchedulingHandler != nil {
				cfg.SchedulingHandler.Routes(v)
			}
			if cfg.ConversationHandler != nil {
				cfg.ConversationHandler.Routes(v)
			}
			if cfg.CacheHandler != nil {
				cfg.CacheHandler.Routes(v)
			}
		})

		api.Get("/health", health)
		if h := cfg.SchedulingHandler; h != nil {
			api.Get("/patients", h.ListPatients)
			api.Get("/doctors", h.ListDoctors)
			api.Get("/schedules/available", h.AvailableSchedules)
		}
	})

	return r
}

func healthHandler(version, env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":      "Medical API is running",
			"version":     version,
			"environment": env,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
