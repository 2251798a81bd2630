// Package provider implements the external text-generation collaborator
// client. It speaks the OpenAI-compatible chat-completions shape, which
// covers OpenAI, Azure, Ollama, and most self-hosted gateways.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatforge/chatforge/pkg/contracts"
	"github.com/chatforge/chatforge/pkg/fault"
)

// successConfidence is reported for real provider replies. Fallback
// replies synthesized by the orchestrator carry a lower score so callers
// can tell them apart.
const successConfidence = 0.9

// HTTPGenerator is an OpenAI-compatible contracts.TextGenerator.
type HTTPGenerator struct {
	endpoint string // base URL, e.g. http://localhost:11434/v1
	model    string
	apiKey   string
	client   *http.Client
}

// NewHTTPGenerator creates a generator against an OpenAI-compatible
// chat-completions endpoint.
func NewHTTPGenerator(endpoint, model, apiKey string, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements contracts.TextGenerator.
func (g *HTTPGenerator) Name() string { return "openai-compatible" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Generate implements contracts.TextGenerator. Failures come back as the
// typed provider faults; transport errors (including the ambient client
// timeout) map to provider-unavailable.
func (g *HTTPGenerator) Generate(ctx context.Context, req *contracts.GenerateRequest) (*contracts.GenerateResponse, error) {
	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fault.Internal(fmt.Errorf("marshal request: %w", err))
	}

	url := g.endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fault.Internal(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fault.New(fault.CodeProviderUnavailable, "provider unreachable: %v", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		switch {
		case httpResp.StatusCode == http.StatusTooManyRequests:
			return nil, fault.New(fault.CodeProviderRateLimited, "status %d: %s", httpResp.StatusCode, respBody)
		case httpResp.StatusCode >= 400 && httpResp.StatusCode < 500:
			return nil, fault.New(fault.CodeProviderInvalidInput, "status %d: %s", httpResp.StatusCode, respBody)
		default:
			return nil, fault.New(fault.CodeProviderUnavailable, "status %d: %s", httpResp.StatusCode, respBody)
		}
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fault.New(fault.CodeProviderUnavailable, "decode response: %v", err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Debug().
		Str("model", resp.Model).
		Int64("tokens", resp.Usage.TotalTokens).
		Int64("latency_ms", latencyMs).
		Msg("Provider call completed")

	return &contracts.GenerateResponse{
		Text:       text,
		TokensUsed: resp.Usage.TotalTokens,
		Confidence: successConfidence,
		ModelID:    resp.Model,
		LatencyMs:  latencyMs,
	}, nil
}
