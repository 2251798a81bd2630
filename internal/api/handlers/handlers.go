// Package handlers implements the HTTP handlers for the ChatForge core
// service: agent CRUD, conversation contexts, chat turns, and billing.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/chatforge/chatforge/internal/agents"
	"github.com/chatforge/chatforge/internal/billing"
	"github.com/chatforge/chatforge/internal/chat"
	"github.com/chatforge/chatforge/internal/contexts"
	"github.com/chatforge/chatforge/pkg/contracts"
	"github.com/chatforge/chatforge/pkg/fault"
	pkgmw "github.com/chatforge/chatforge/pkg/middleware"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Agents   *agents.Service
	Contexts *contexts.Service
	Billing  *billing.Service
	Chat     *chat.Service
}

// New creates a Handlers instance.
func New(a *agents.Service, c *contexts.Service, b *billing.Service, ch *chat.Service) *Handlers {
	return &Handlers{
		Agents:   a,
		Contexts: c,
		Billing:  b,
		Chat:     ch,
	}
}

// requireIdentity extracts the authenticated caller or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*contracts.Identity, bool) {
	identity := pkgmw.GetIdentity(r.Context())
	if identity == nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="chatforge"`)
		respondError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return identity, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFault maps the error taxonomy to HTTP statuses.
func respondFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.CodeOf(err) {
	case fault.CodeNotFound, fault.CodeUserNotFound:
		status = http.StatusNotFound
	case fault.CodeUnauthorized:
		status = http.StatusForbidden
	case fault.CodeValidation, fault.CodeConfiguration:
		status = http.StatusBadRequest
	case fault.CodeSessionExpired, fault.CodeInvalidSession:
		status = http.StatusUnauthorized
	case fault.CodeRateLimitExceeded:
		status = http.StatusTooManyRequests
	case fault.CodeQuotaExceeded, fault.CodeSubscriptionLimit:
		status = http.StatusPaymentRequired
	case fault.CodeProviderUnavailable, fault.CodeProviderRateLimited, fault.CodeProviderInvalidInput:
		status = http.StatusBadGateway
	}
	respondError(w, status, err.Error())
}
