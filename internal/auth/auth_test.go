package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatforge/chatforge/internal/auth"
	"github.com/chatforge/chatforge/pkg/contracts"
	"github.com/chatforge/chatforge/pkg/fault"
)

func TestServiceTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := auth.GenerateToken(secret, "billing-job", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	v := auth.NewServiceTokenVerifier("test-secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Service-Token", token)

	identity, err := v.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity == nil {
		t.Fatal("Expected identity, got nil")
	}
	if identity.Subject != "svc:billing-job" {
		t.Errorf("Subject = %q, want %q", identity.Subject, "svc:billing-job")
	}
}

func TestServiceTokenWrongSecret(t *testing.T) {
	token, _ := auth.GenerateToken([]byte("secret-a"), "job", time.Hour)

	v := auth.NewServiceTokenVerifier("secret-b")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Service-Token", token)

	if _, err := v.Verify(context.Background(), req); err == nil {
		t.Error("Expected error for token signed with wrong secret")
	}
}

func TestServiceTokenExpired(t *testing.T) {
	token, _ := auth.GenerateToken([]byte("secret"), "job", -time.Minute)

	v := auth.NewServiceTokenVerifier("secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Service-Token", token)

	if _, err := v.Verify(context.Background(), req); err == nil {
		t.Error("Expected error for expired token")
	}
}

func TestServiceTokenNotPresent(t *testing.T) {
	v := auth.NewServiceTokenVerifier("secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	identity, err := v.Verify(context.Background(), req)
	if err != nil {
		t.Errorf("Expected (nil, nil) for request without token, got err: %v", err)
	}
	if identity != nil {
		t.Errorf("Expected nil identity, got %+v", identity)
	}
}

func TestSessionVerifierValid(t *testing.T) {
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"userId": "user-1",
			"email":  "u@example.com",
		})
	}))
	defer issuer.Close()

	v := auth.NewSessionVerifier(issuer.URL, 2*time.Second)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")

	identity, err := v.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.Subject != "user-1" {
		t.Errorf("Subject = %q, want %q", identity.Subject, "user-1")
	}
}

func TestSessionVerifierExpired(t *testing.T) {
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer issuer.Close()

	v := auth.NewSessionVerifier(issuer.URL, 2*time.Second)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale-token")

	_, err := v.Verify(context.Background(), req)
	if !fault.IsCode(err, fault.CodeSessionExpired) {
		t.Errorf("Expected session_expired, got %v", err)
	}
}

type stubVerifier struct {
	name     string
	identity *contracts.Identity
	err      error
	calls    int
}

func (s *stubVerifier) Name() string  { return s.name }
func (s *stubVerifier) Enabled() bool { return true }
func (s *stubVerifier) Verify(_ context.Context, _ *http.Request) (*contracts.Identity, error) {
	s.calls++
	return s.identity, s.err
}

func TestChainStopsAtFirstMatch(t *testing.T) {
	chain := auth.NewChain()
	first := &stubVerifier{name: "first", identity: &contracts.Identity{Subject: "u1"}}
	second := &stubVerifier{name: "second"}
	chain.Register(first)
	chain.Register(second)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	identity, err := chain.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.Subject != "u1" {
		t.Errorf("Subject = %q, want u1", identity.Subject)
	}
	if second.calls != 0 {
		t.Errorf("Second verifier called %d times, want 0", second.calls)
	}
}

func TestChainAnonymousWhenNoMatch(t *testing.T) {
	chain := auth.NewChain()
	chain.Register(&stubVerifier{name: "passive"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	identity, err := chain.Verify(context.Background(), req)
	if err != nil {
		t.Errorf("Expected (nil, nil) for anonymous request, got err: %v", err)
	}
	if identity != nil {
		t.Errorf("Expected nil identity, got %+v", identity)
	}
}
