package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/chatforge/chatforge/pkg/models"
)

// GetSubscription returns the caller's subscription, provisioning a Free
// one on first sight.
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	sub, err := h.Billing.GetUserSubscription(identity.Subject)
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

type updateTierRequest struct {
	Tier models.SubscriptionTier `json:"tier"`
}

// UpdateTier moves the caller to a new subscription tier.
func (h *Handlers) UpdateTier(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Billing.UpdateSubscriptionTier(identity.Subject, req.Tier); err != nil {
		respondFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUsageHistory returns the caller's most recent usage records.
// ?limit=N bounds the window; default 50.
func (h *Handlers) GetUsageHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	history := h.Billing.GetUsageHistory(identity.Subject, limit)
	if history == nil {
		history = []models.UsageRecord{}
	}
	respondJSON(w, http.StatusOK, history)
}

type recordUsageRequest struct {
	AgentID   string                `json:"agent_id"`
	Tokens    int64                 `json:"tokens"`
	Operation models.UsageOperation `json:"operation"`
}

// RecordUsage meters a non-chat operation (agent creation, document
// upload, prompt training) against the caller. Chat turns are metered by
// the orchestrator, not through this endpoint.
func (h *Handlers) RecordUsage(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req recordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Operation == "" {
		req.Operation = models.OpMessageProcessing
	}

	id, err := h.Billing.RecordUsage(identity.Subject, req.AgentID, req.Tokens, req.Operation)
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"usage_id": id})
}
