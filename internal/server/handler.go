package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/comigor/gustavo-go/internal/agent"
	"github.com/comigor/gustavo-go/internal/logger"
)

const (
	msgMissingMessage = "Mensagem ausente na requisição."
	msgChatFailure    = "Erro interno no chat: "
	msgMissingUser    = "Cabeçalho x-user-id ausente."
	msgBadBody        = "Corpo da requisição inválido."
)

// Processor answers one chat turn.
type Processor interface {
	Process(ctx context.Context, req agent.Request) (*agent.Outcome, error)
}

// PersonaAdmin reads and writes persona overrides.
type PersonaAdmin interface {
	Global(ctx context.Context) (string, error)
	SetGlobal(ctx context.Context, text string) error
	User(ctx context.Context, userID string) (string, error)
	SetUser(ctx context.Context, userID, text string) error
}

// Handler serves the chat and persona endpoints.
type Handler struct {
	agent   Processor
	persona PersonaAdmin
}

// NewHandler creates a new handler.
func NewHandler(p Processor, pa PersonaAdmin) *Handler {
	return &Handler{agent: p, persona: pa}
}

type chatRequest struct {
	Message   string          `json:"message"`
	History   json.RawMessage `json:"history"`
	SessionID string          `json:"sessionId"`
}

// history keeps "absent" (nil) apart from "sent but empty"; anything that is not an array counts as empty.
func (c chatRequest) history() []any {
	raw := strings.TrimSpace(string(c.History))
	if raw == "" || raw == "null" {
		return nil
	}
	var arr []any
	if err := json.Unmarshal(c.History, &arr); err != nil {
		return []any{}
	}
	if arr == nil {
		arr = []any{}
	}
	return arr
}

// Chat handles POST /chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, msgMissingMessage)
		return
	}

	out, err := h.agent.Process(r.Context(), agent.Request{
		Message:   req.Message,
		History:   req.history(),
		SessionID: req.SessionID,
		UserID:    r.Header.Get("x-user-id"),
	})
	if errors.Is(err, agent.ErrMissingMessage) {
		writeError(w, http.StatusBadRequest, msgMissingMessage)
		return
	}
	if err != nil {
		logger.From(r.Context()).Error("chat failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgChatFailure+err.Error())
		return
	}

	resp := agent.FormatResponse(out.Text, out.Invocations)
	resp.SessionID = req.SessionID
	writeJSON(w, http.StatusOK, resp)
}

type systemInstruction struct {
	SystemInstruction string `json:"systemInstruction"`
}

// GetSystemInstruction handles GET /api/admin/system-instruction
func (h *Handler) GetSystemInstruction(w http.ResponseWriter, r *http.Request) {
	text, err := h.persona.Global(r.Context())
	if err != nil {
		logger.From(r.Context()).Error("failed to read system instruction", "error", err)
		writeError(w, http.StatusInternalServerError, "Falha ao obter a instrução do sistema.")
		return
	}
	writeJSON(w, http.StatusOK, systemInstruction{SystemInstruction: text})
}

// SetSystemInstruction handles POST /api/admin/system-instruction
func (h *Handler) SetSystemInstruction(w http.ResponseWriter, r *http.Request) {
	var body systemInstruction
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return
	}
	if err := h.persona.SetGlobal(r.Context(), body.SystemInstruction); err != nil {
		logger.From(r.Context()).Error("failed to save system instruction", "error", err)
		writeError(w, http.StatusInternalServerError, "Falha ao salvar a instrução do sistema.")
		return
	}
	logger.From(r.Context()).Info("system instruction updated", "length", len(body.SystemInstruction))
	writeJSON(w, http.StatusOK, body)
}

type preferences struct {
	CustomSystemInstruction string `json:"customSystemInstruction"`
}

// GetPreferences handles GET /api/user/preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, msgMissingUser)
		return
	}
	text, err := h.persona.User(r.Context(), userID)
	if err != nil {
		logger.From(r.Context()).Error("failed to read preferences", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Falha ao buscar preferências.")
		return
	}
	writeJSON(w, http.StatusOK, preferences{CustomSystemInstruction: text})
}

// SetPreferences handles PUT /api/user/preferences
func (h *Handler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, msgMissingUser)
		return
	}
	var body preferences
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return
	}
	if err := h.persona.SetUser(r.Context(), userID, body.CustomSystemInstruction); err != nil {
		logger.From(r.Context()).Error("failed to save preferences", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Falha ao salvar preferências.")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
