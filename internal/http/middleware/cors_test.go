package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called != nil {
			*called = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

func corsRequest(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/doctors", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	called := false
	rec := httptest.NewRecorder()
	CORS([]string{"https://clinica.example/"})(okHandler(&called)).ServeHTTP(rec, corsRequest(http.MethodGet, "https://clinica.example"))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://clinica.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
	assert.Equal(t, "X-Request-ID", rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	rec := httptest.NewRecorder()
	CORS([]string{"https://clinica.example"})(okHandler(nil)).ServeHTTP(rec, corsRequest(http.MethodGet, "https://other.example"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	rec := httptest.NewRecorder()
	CORS([]string{"*"})(okHandler(nil)).ServeHTTP(rec, corsRequest(http.MethodGet, "https://random.example"))

	assert.Equal(t, "https://random.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSHandlesPreflight(t *testing.T) {
	called := false
	req := corsRequest(http.MethodOptions, "https://clinica.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	CORS([]string{"https://clinica.example"})(okHandler(&called)).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORSIgnoresRequestsWithoutOrigin(t *testing.T) {
	called := false
	rec := httptest.NewRecorder()
	CORS([]string{"*"})(okHandler(&called)).ServeHTTP(rec, corsRequest(http.MethodOptions, ""))

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
