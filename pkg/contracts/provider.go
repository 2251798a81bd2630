package contracts

import "context"

// ── Text-Generation Provider ────────────────────────────────

// GenerateRequest is what the orchestrator sends to the provider per turn.
type GenerateRequest struct {
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// GenerateResponse is a successful provider reply.
type GenerateResponse struct {
	Text       string  `json:"text"`
	TokensUsed int64   `json:"tokens_used"`
	Confidence float64 `json:"confidence"`
	ModelID    string  `json:"model_id"`
	LatencyMs  int64   `json:"latency_ms"`
}

// TextGenerator is the external text-generation collaborator invoked once
// per chat turn. Failures come back as fault-coded errors
// (CodeProviderUnavailable, CodeProviderRateLimited,
// CodeProviderInvalidInput); the orchestrator must tolerate any of them
// without failing the turn.
type TextGenerator interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string

	// Generate sends one completion request. The transport's ambient
	// timeout applies; a timeout surfaces as CodeProviderUnavailable.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}
