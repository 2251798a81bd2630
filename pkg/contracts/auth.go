// Package contracts defines the boundaries between the ChatForge core and
// its external collaborators: the auth/session issuer and the
// text-generation provider. The core trusts the Identity a verifier hands
// it and performs its own ownership checks against it; it never inspects
// tokens itself.
package contracts

import (
	"context"
	"net/http"
	"time"
)

// ── Identity ────────────────────────────────────────────────

// Identity represents an authenticated caller.
// Produced by a SessionVerifier, consumed by handlers for ownerId checks.
type Identity struct {
	// Subject is the unique caller identifier (user ID or service name).
	Subject string `json:"subject"`

	// Email is the caller's email address (may be empty for services).
	Email string `json:"email,omitempty"`

	// DisplayName is a human-readable name.
	DisplayName string `json:"display_name,omitempty"`

	// Verifier identifies which verifier authenticated this identity
	// ("session", "service_token").
	Verifier string `json:"verifier"`

	// ExpiresAt is when this identity's session expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ── SessionVerifier ─────────────────────────────────────────

// SessionVerifier validates the credentials on an HTTP request and returns
// an Identity. Each verifier handles one credential kind.
//
// The chain pattern:
//   - Return (*Identity, nil) → authenticated, stop chain
//   - Return (nil, nil) → this verifier doesn't handle this request, try next
//   - Return (nil, error) → verification was attempted but failed, reject
type SessionVerifier interface {
	// Name returns the verifier identifier.
	Name() string

	// Verify inspects the request and returns an Identity.
	Verify(ctx context.Context, r *http.Request) (*Identity, error)

	// Enabled returns whether this verifier is configured and active.
	Enabled() bool
}

// VerifierChain tries verifiers in priority order until one returns an
// Identity. Used by the auth middleware so session tokens and service
// tokens can both call the same endpoints.
type VerifierChain interface {
	// Verify walks the chain of verifiers in order.
	// Returns the first successful Identity, or (nil, nil) if none matched.
	Verify(ctx context.Context, r *http.Request) (*Identity, error)

	// Register adds a verifier to the end of the chain.
	Register(v SessionVerifier)
}
