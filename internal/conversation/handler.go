package conversation

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler exposes the conversation engine over HTTP.
type Handler struct {
	engine *Engine
	logger *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// Routes mounts the handler's endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/agent", h.Agent)
	r.Get("/payment-info", h.PaymentInfo)
}

// AgentRequest is the body of POST /agent.
type AgentRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// Agent handles POST /agent.
func (h *Handler) Agent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode agent request", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Message is required"})
		return
	}

	out := h.engine.HandleTurn(r.Context(), req.UserID, req.Message)
	writeJSON(w, replyStatus(out), out)
}

// replyStatus maps a failed turn to 409 when the pinned slot was taken and
// to 500 for every other failure.
func replyStatus(out Reply) int {
	switch {
	case out.Success:
		return http.StatusOK
	case out.ActionTaken == "slot_unavailable":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PaymentInfo handles GET /payment-info.
func (h *Handler) PaymentInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DefaultPaymentInfo())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
