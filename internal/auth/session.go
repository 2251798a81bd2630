package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chatforge/chatforge/pkg/contracts"
	"github.com/chatforge/chatforge/pkg/fault"
)

// SessionVerifier validates bearer session tokens against the external
// session issuer. The issuer owns registration, login, and token lifetimes;
// this service only asks it whether a presented token is still good.
//
// Config: CHATFORGE_SESSION_VERIFY_URL (issuer's verify endpoint).
type SessionVerifier struct {
	verifyURL string
	client    *http.Client
}

// verifyResponse is the issuer's answer for a valid session.
type verifyResponse struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"` // Unix timestamp
}

// NewSessionVerifier creates a session verifier calling the given issuer
// endpoint. An empty URL disables the verifier.
func NewSessionVerifier(verifyURL string, timeout time.Duration) *SessionVerifier {
	return &SessionVerifier{
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: timeout},
	}
}

func (v *SessionVerifier) Name() string  { return "session" }
func (v *SessionVerifier) Enabled() bool { return v.verifyURL != "" }

// Verify validates the bearer token from the Authorization header.
// Returns (nil, nil) if no bearer token is present.
func (v *SessionVerifier) Verify(ctx context.Context, r *http.Request) (*contracts.Identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, nil // not our concern
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return nil, fault.New(fault.CodeInvalidSession, "empty bearer token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.verifyURL, nil)
	if err != nil {
		return nil, fault.Internal(fmt.Errorf("build verify request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fault.Internal(fmt.Errorf("session issuer unreachable: %w", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusUnauthorized:
		return nil, fault.New(fault.CodeSessionExpired, "session expired or revoked")
	case http.StatusNotFound, http.StatusForbidden:
		return nil, fault.New(fault.CodeInvalidSession, "session not recognized")
	default:
		return nil, fault.Internal(fmt.Errorf("session issuer returned %d", resp.StatusCode))
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fault.Internal(fmt.Errorf("decode verify response: %w", err))
	}
	if body.UserID == "" {
		return nil, fault.New(fault.CodeInvalidSession, "issuer returned no user id")
	}

	identity := &contracts.Identity{
		Subject:     body.UserID,
		Email:       body.Email,
		DisplayName: body.DisplayName,
		Verifier:    v.Name(),
	}
	if body.ExpiresAt > 0 {
		identity.ExpiresAt = time.Unix(body.ExpiresAt, 0)
	}
	return identity, nil
}
