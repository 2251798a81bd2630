package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chatforge/chatforge/pkg/contracts"
)

// ServiceTokenVerifier validates HMAC-signed service tokens.
// Used for internal service-to-service calls (billing reconciliation jobs,
// admin tooling) that have no browser session.
//
// Token format: base64(JSON payload) + "." + base64(HMAC-SHA256 signature)
// Payload: {"sub": "billing-job", "exp": 1234567890}
//
// Config: CHATFORGE_SERVICE_TOKEN_SECRET (HMAC secret key).
type ServiceTokenVerifier struct {
	secret  []byte
	enabled bool
}

// serviceTokenPayload is the JWT-like payload for service tokens.
type serviceTokenPayload struct {
	Subject string `json:"sub"`
	Exp     int64  `json:"exp"` // Unix timestamp
}

// NewServiceTokenVerifier creates a service token verifier.
// An empty secret disables the verifier.
func NewServiceTokenVerifier(secret string) *ServiceTokenVerifier {
	if secret == "" {
		return &ServiceTokenVerifier{enabled: false}
	}
	return &ServiceTokenVerifier{
		secret:  []byte(secret),
		enabled: true,
	}
}

func (v *ServiceTokenVerifier) Name() string  { return "service_token" }
func (v *ServiceTokenVerifier) Enabled() bool { return v.enabled }

// Verify validates the service token from the X-Service-Token header.
// Returns (nil, nil) if no service token is present.
// Returns (nil, error) if the token is present but invalid.
func (v *ServiceTokenVerifier) Verify(_ context.Context, r *http.Request) (*contracts.Identity, error) {
	token := r.Header.Get("X-Service-Token")
	if token == "" {
		return nil, nil // not our concern
	}

	payload, err := v.validateToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid service token: %w", err)
	}

	return &contracts.Identity{
		Subject:     "svc:" + payload.Subject,
		DisplayName: payload.Subject,
		Verifier:    v.Name(),
		ExpiresAt:   time.Unix(payload.Exp, 0),
	}, nil
}

func (v *ServiceTokenVerifier) validateToken(token string) (*serviceTokenPayload, error) {
	parts := splitToken(token)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed token: expected payload.signature")
	}

	payloadB64, sigB64 := parts[0], parts[1]

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payloadB64))
	expectedSig := mac.Sum(nil)

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}

	if !hmac.Equal(sig, expectedSig) {
		return nil, fmt.Errorf("signature mismatch")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("invalid payload encoding: %w", err)
	}

	var payload serviceTokenPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}

	if payload.Exp > 0 && time.Now().Unix() > payload.Exp {
		return nil, fmt.Errorf("token expired")
	}
	if payload.Subject == "" {
		return nil, fmt.Errorf("missing subject")
	}

	return &payload, nil
}

func splitToken(token string) []string {
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			return []string{token[:i], token[i+1:]}
		}
	}
	return []string{token}
}

// GenerateToken creates a signed service token.
// Helper for CLI tools and tests — not called by the server.
func GenerateToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	payload := serviceTokenPayload{
		Subject: subject,
		Exp:     time.Now().Add(ttl).Unix(),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadBytes)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payloadB64))
	sig := mac.Sum(nil)
	sigB64 := base64.RawURLEncoding.EncodeToString(sig)

	return payloadB64 + "." + sigB64, nil
}
