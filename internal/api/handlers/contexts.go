package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/chatforge/chatforge/pkg/models"
	"github.com/go-chi/chi/v5"
)

// CreateContext opens a new conversation context against the caller's agent.
func (h *Handlers) CreateContext(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	contextID, err := h.Contexts.Create(chi.URLParam(r, "agentID"), identity.Subject, false)
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"context_id": contextID})
}

// ListAgentContexts returns every context opened against an agent.
// Owner-only: listing conversations exposes their content.
func (h *Handlers) ListAgentContexts(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	agentID := chi.URLParam(r, "agentID")
	agent, err := h.Agents.Get(agentID)
	if err != nil {
		respondFault(w, err)
		return
	}
	if agent.OwnerID != identity.Subject {
		respondError(w, http.StatusForbidden, "only the agent owner can list its contexts")
		return
	}

	respondJSON(w, http.StatusOK, h.Contexts.GetAgentContexts(agentID))
}

// GetContext returns one context with its messages. The caller must be
// the context's user.
func (h *Handlers) GetContext(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	ctx, err := h.Contexts.Get(chi.URLParam(r, "contextID"))
	if err != nil {
		respondFault(w, err)
		return
	}
	if ctx.UserID != identity.Subject {
		respondError(w, http.StatusForbidden, "context belongs to another caller")
		return
	}
	respondJSON(w, http.StatusOK, ctx)
}

type addMessageRequest struct {
	Role    models.MessageRole `json:"role"`
	Content string             `json:"content"`
}

// AddContextMessage appends a message to a context outside the chat
// pipeline (imports, system notes).
func (h *Handlers) AddContextMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	contextID := chi.URLParam(r, "contextID")
	ctx, err := h.Contexts.Get(contextID)
	if err != nil {
		respondFault(w, err)
		return
	}
	if ctx.UserID != identity.Subject {
		respondError(w, http.StatusForbidden, "context belongs to another caller")
		return
	}

	if err := h.Contexts.AddMessage(contextID, req.Role, req.Content); err != nil {
		respondFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearContext deletes a context.
func (h *Handlers) ClearContext(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	err := h.Contexts.Clear(chi.URLParam(r, "agentID"), chi.URLParam(r, "contextID"), identity.Subject)
	if err != nil {
		respondFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
