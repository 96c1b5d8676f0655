package conversation

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

func newAgentRouter(engine *Engine) http.Handler {
	r := chi.NewRouter()
	NewHandler(engine, nil).Routes(r)
	return r
}

func postAgent(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/agent", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAgentHandlerReplies(t *testing.T) {
	h := newHarness(t)
	router := newAgentRouter(h.engine)

	rec := postAgent(router, `{"message":"Oi","user_id":"web-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "greeting", body["action_taken"])
	assert.Nil(t, body["data"])
	assert.Len(t, body["suggested_actions"], 3)
	assert.NotContains(t, body, "error")
}

func TestAgentHandlerKeepsSessionPerUser(t *testing.T) {
	h := newHarness(t)
	router := newAgentRouter(h.engine)

	postAgent(router, `{"message":"Quero agendar uma consulta","user_id":"web-1"}`)

	var out Reply
	rec := postAgent(router, `{"message":"1","user_id":"web-1"}`)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "schedule_selected", out.ActionTaken)

	rec = postAgent(router, `{"message":"1","user_id":"web-2"}`)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "number_without_context", out.ActionTaken)
}

func TestAgentHandlerValidation(t *testing.T) {
	h := newHarness(t)
	router := newAgentRouter(h.engine)

	for _, body := range []string{`{"user_id":"web-1"}`, `{"message":"   "}`} {
		rec := postAgent(router, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Message is required"}`, rec.Body.String())
	}

	rec := postAgent(router, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentHandlerErrorReplyIs500(t *testing.T) {
	h := newHarness(t)
	engine := NewEngine(EngineConfig{
		Store:     h.store,
		Scheduler: failingScheduler{Scheduler: h.svc, err: errors.New("db down")},
	}, nil)
	router := newAgentRouter(engine)

	rec := postAgent(router, `{"message":"Quero agendar com Dr. Silva","user_id":"web-1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var out Reply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.False(t, out.Success)
	assert.Equal(t, "error_occurred", out.ActionTaken)
	assert.Equal(t, "db down", out.Error)
}

func TestAgentHandlerBookingFailureStatus(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    error
		action string
		status int
	}{
		{"storage failure", errors.New("db: connection reset"), "booking_error", http.StatusInternalServerError},
		{"slot taken", scheduling.ErrSlotUnavailable, "slot_unavailable", http.StatusConflict},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			router := newAgentRouter(NewEngine(EngineConfig{
				Store:     h.store,
				Scheduler: failingReserver{Scheduler: h.svc, err: tc.err},
			}, nil))

			for _, msg := range []string{
				"Quero agendar consulta com Dr. Silva para 15/01/2025",
				"Maria Santos", "123.456.789-10", "maria@email.com", "(11) 98765-4321",
			} {
				rec := postAgent(router, `{"message":"`+msg+`","user_id":"web-1"}`)
				require.Equal(t, http.StatusOK, rec.Code, msg)
			}

			rec := postAgent(router, `{"message":"15/05/1990","user_id":"web-1"}`)
			assert.Equal(t, tc.status, rec.Code)
			var out Reply
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
			assert.False(t, out.Success)
			assert.Equal(t, tc.action, out.ActionTaken)
			assert.Equal(t, tc.err.Error(), out.Error)
		})
	}
}

func TestPaymentInfoHandler(t *testing.T) {
	h := newHarness(t)
	router := newAgentRouter(h.engine)

	req := httptest.NewRequest(http.MethodGet, "/payment-info", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var info PaymentInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, DefaultPaymentInfo(), info)
}
