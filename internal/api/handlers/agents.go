package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/chatforge/chatforge/internal/agents"
	"github.com/chatforge/chatforge/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type createAgentRequest struct {
	Config   models.AgentConfig `json:"config"`
	IsPublic bool               `json:"is_public"`
}

// CreateAgent registers a new agent owned by the caller.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.Agents.Create(identity.Subject, req.Config, req.IsPublic)
	if err != nil {
		respondFault(w, err)
		return
	}

	log.Info().Str("agent_id", id).Str("owner", identity.Subject).Msg("Agent registered")
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ListAgents returns every agent owned by the caller.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.Agents.GetUserAgents(identity.Subject))
}

// GetAgent returns one agent by ID.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	agent, err := h.Agents.Get(chi.URLParam(r, "agentID"))
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

// UpdateAgent replaces the agent's config, bumping its version.
func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var cfg models.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Agents.Update(chi.URLParam(r, "agentID"), identity.Subject, cfg); err != nil {
		respondFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateStatusRequest struct {
	Status models.AgentStatus `json:"status"`
}

// UpdateAgentStatus transitions the agent's status.
func (h *Handlers) UpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Agents.UpdateStatus(chi.URLParam(r, "agentID"), identity.Subject, req.Status); err != nil {
		respondFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updatePermissionsRequest struct {
	IsPublic bool `json:"is_public"`
}

// UpdateAgentPermissions toggles public chat access.
func (h *Handlers) UpdateAgentPermissions(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updatePermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Agents.SetPublic(chi.URLParam(r, "agentID"), identity.Subject, req.IsPublic); err != nil {
		respondFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAgent removes the agent.
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.Agents.Delete(chi.URLParam(r, "agentID"), identity.Subject); err != nil {
		respondFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateAgentConfig runs the rubric without persisting anything.
func (h *Handlers) ValidateAgentConfig(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	var cfg models.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, agents.Validate(&cfg))
}

// GetAgentAnalytics returns the agent's aggregate counters.
func (h *Handlers) GetAgentAnalytics(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	analytics, err := h.Agents.GetAnalytics(chi.URLParam(r, "agentID"))
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, analytics)
}
