package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type chatRequest struct {
	Message     string   `json:"message"`
	ContextID   string   `json:"context_id,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ProcessTurn runs one authenticated chat turn against the caller's agent.
func (h *Handlers) ProcessTurn(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	result, err := h.Chat.ProcessTurn(r.Context(), chi.URLParam(r, "agentID"), identity.Subject, req.Message, req.ContextID, req.Temperature)
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type publicChatRequest struct {
	Message string `json:"message"`
}

// ProcessPublicTurn runs one unauthenticated chat turn against a public
// agent. No persistent context, no temperature override.
func (h *Handlers) ProcessPublicTurn(w http.ResponseWriter, r *http.Request) {
	var req publicChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	result, err := h.Chat.ProcessPublicTurn(r.Context(), chi.URLParam(r, "agentID"), req.Message)
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
