package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/chatforge/chatforge/pkg/contracts"
	pkgmw "github.com/chatforge/chatforge/pkg/middleware"
	"github.com/rs/zerolog/log"
)

// Auth authenticates requests through the pluggable verifier chain and
// stores the resulting Identity in the request context. Anonymous
// requests pass through with no identity; handlers that need a caller
// reject them individually. Public chat and health endpoints skip the
// chain entirely.
type Auth struct {
	chain contracts.VerifierChain
}

// NewAuth creates the auth middleware.
func NewAuth(chain contracts.VerifierChain) *Auth {
	return &Auth{chain: chain}
}

// Handler returns the HTTP middleware.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := a.chain.Verify(r.Context(), r)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="chatforge"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "authentication_failed",
				"message": err.Error(),
			})
			return
		}

		// nil identity is fine here — anonymous until a handler says otherwise
		ctx := r.Context()
		if identity != nil {
			ctx = pkgmw.SetIdentity(ctx, identity)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isPublicPath returns true for paths that never require credentials.
func isPublicPath(path string) bool {
	switch path {
	case "/health", "/version":
		return true
	}
	// Public chat surface for embedded widgets
	return strings.HasPrefix(path, "/api/v1/public/")
}
