// Package auth provides the session verifier chain for the ChatForge core
// service.
//
// Two verifiers ship by default:
//   - SessionVerifier — validates browser session tokens against the
//     external session issuer
//   - ServiceTokenVerifier — HMAC-signed tokens for internal services
package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/chatforge/chatforge/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// Chain implements contracts.VerifierChain.
// It walks registered verifiers in order until one returns an Identity.
//
// Thread-safe: verifiers can be registered at any time.
type Chain struct {
	mu        sync.RWMutex
	verifiers []contracts.SessionVerifier
}

// NewChain creates an empty verifier chain.
func NewChain() *Chain {
	return &Chain{
		verifiers: make([]contracts.SessionVerifier, 0),
	}
}

// Register adds a verifier to the end of the chain.
// Verifiers are tried in registration order.
func (c *Chain) Register(v contracts.SessionVerifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifiers = append(c.verifiers, v)
	log.Info().
		Str("verifier", v.Name()).
		Bool("enabled", v.Enabled()).
		Msg("🔑 Session verifier registered")
}

// Verify walks the chain of verifiers in order.
//
// Contract:
//   - (*Identity, nil) → authenticated, stop walking
//   - (nil, nil) → this verifier doesn't handle this request, try next
//   - (nil, error) → auth attempted but failed, reject immediately
func (c *Chain) Verify(ctx context.Context, r *http.Request) (*contracts.Identity, error) {
	c.mu.RLock()
	verifiers := make([]contracts.SessionVerifier, len(c.verifiers))
	copy(verifiers, c.verifiers)
	c.mu.RUnlock()

	for _, v := range verifiers {
		if !v.Enabled() {
			continue
		}
		identity, err := v.Verify(ctx, r)
		if err != nil {
			log.Debug().
				Str("verifier", v.Name()).
				Err(err).
				Msg("Session verifier rejected request")
			return nil, err
		}
		if identity != nil {
			log.Debug().
				Str("verifier", v.Name()).
				Str("subject", identity.Subject).
				Msg("Request authenticated")
			return identity, nil
		}
		// (nil, nil) — not this verifier's concern, try next
	}

	// No verifier matched — anonymous request
	return nil, nil
}

// ListVerifiers returns the names of all registered verifiers (for diagnostics).
func (c *Chain) ListVerifiers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.verifiers))
	for i, v := range c.verifiers {
		names[i] = v.Name()
	}
	return names
}
