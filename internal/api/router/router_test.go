package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/cache"
	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) http.Handler {
	t.Helper()
	ctx := context.Background()
	logger := logging.Default()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := prometheus.NewRegistry()
	availability := cache.New(client, metrics.NewCacheMetrics(reg), logger)

	repo := scheduling.NewMemoryRepository()
	require.NoError(t, scheduling.Seed(ctx, repo, time.Now(), logger))
	svc := scheduling.NewService(repo, scheduling.ServiceConfig{
		Cache:   availability,
		Metrics: metrics.NewBookingMetrics(reg),
	}, logger)

	engine := conversation.NewEngine(conversation.EngineConfig{
		Store:     conversation.NewMemorySessionStore(time.Hour),
		Scheduler: svc,
		Metrics:   metrics.NewConversationMetrics(reg),
	}, logger)

	return New(&Config{
		Logger:              logger,
		APIVersion:          "v1",
		Environment:         "test",
		SchedulingHandler:   scheduling.NewHandler(svc, logger),
		ConversationHandler: conversation.NewHandler(engine, logger),
		CacheHandler:        cache.NewHandler(availability, logger),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  []string{"*"},
		RateLimiter:         limiter,
	})
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/api/v1/health", "/api/health"} {
		rec := serve(router, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)

		var resp map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "Medical API is running", resp["status"])
		assert.Equal(t, "v1", resp["version"])
		assert.Equal(t, "test", resp["environment"])
	}
}

func TestRouterVersionedAndLegacyRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{
		"/api/v1/patients",
		"/api/v1/patients/1",
		"/api/v1/doctors",
		"/api/v1/schedules/available",
		"/api/v1/appointments",
		"/api/v1/payment-info",
		"/api/v1/cache/stats",
		"/api/v1/cache/health",
		"/api/patients",
		"/api/doctors",
		"/api/schedules/available",
	} {
		rec := serve(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), path)
	}

	rec := serve(router, http.MethodGet, "/api/appointments", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestRouterAgentEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, http.MethodPost, "/api/v1/agent", `{"message":"Oi","user_id":"router-test"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply conversation.Reply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.True(t, reply.Success)
	assert.Equal(t, "greeting", reply.ActionTaken)

	rec = serve(router, http.MethodPost, "/api/v1/agent", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	serve(router, http.MethodPost, "/api/v1/agent", `{"message":"Oi","user_id":"router-test"}`)
	serve(router, http.MethodGet, "/api/v1/schedules/available", "")

	rec := serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "clinic_conversation_turns_total")
	assert.Contains(t, body, "clinic_cache_lookups_total")
}

func TestRouterRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	router := newTestRouter(t, httpmiddleware.NewRateLimiter(ctx, 0.001, 2))

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/v1/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/api/v1/doctors", "").Code)

	// /metrics sits outside /api.
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/metrics", "").Code)
}

func TestRouterDefaultsVersion(t *testing.T) {
	router := New(&Config{})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/v1/health", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(router, http.MethodPost, "/api/v1/health", "").Code)
}
