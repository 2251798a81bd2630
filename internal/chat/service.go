// Package chat implements the turn orchestrator: the only component that
// composes the agent store, context manager, billing engine, and the
// external text-generation provider within one logical operation.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatforge/chatforge/pkg/contracts"
	"github.com/chatforge/chatforge/pkg/fault"
	"github.com/chatforge/chatforge/pkg/models"
)

// fallbackConfidence marks locally synthesized replies. Real provider
// replies carry the provider's (higher) confidence, so callers can tell
// the two apart even though both return as success.
const fallbackConfidence = 0.3

// publicKnowledgeCap limits knowledge-base injection on the public path.
const publicKnowledgeCap = 3

// AgentStore is the slice of the agent store the orchestrator uses.
type AgentStore interface {
	Get(agentID string) (*models.Agent, error)
	UpdateAnalytics(agentID string, dConversations, dMessages, dTokens int64) error
}

// ContextStore is the slice of the context manager the orchestrator uses.
type ContextStore interface {
	Create(agentID, userID string, publicPath bool) (string, error)
	AddMessage(contextID string, role models.MessageRole, content string) error
	Get(contextID string) (*models.ConversationContext, error)
}

// Meter is the billing engine's usage-reporting surface.
type Meter interface {
	RecordUsage(userID, agentID string, tokens int64, op models.UsageOperation) (string, error)
}

// Service executes conversational turns.
type Service struct {
	agents   AgentStore
	contexts ContextStore
	billing  Meter
	gen      contracts.TextGenerator
}

// NewService wires the orchestrator to its collaborators.
func NewService(agents AgentStore, contexts ContextStore, billing Meter, gen contracts.TextGenerator) *Service {
	return &Service{
		agents:   agents,
		contexts: contexts,
		billing:  billing,
		gen:      gen,
	}
}

// ProcessTurn executes one authenticated turn. The caller must own the
// agent. An empty contextID opens a new persistent context; otherwise the
// existing one is continued. temperature, when non-nil, overrides the
// agent's configured value for this turn only.
func (s *Service) ProcessTurn(ctx context.Context, agentID, userID, message, contextID string, temperature *float64) (*models.TurnResult, error) {
	start := time.Now()

	agent, err := s.agents.Get(agentID)
	if err != nil {
		return nil, err
	}
	if agent.OwnerID != userID {
		return nil, fault.Unauthorized("only the agent owner can chat on the authenticated path")
	}

	if canned, ok := statusReply(agent, contextID, start); ok {
		return canned, nil
	}

	if contextID == "" {
		contextID, err = s.contexts.Create(agentID, userID, false)
		if err != nil {
			return nil, err
		}
	}
	convo, err := s.contexts.Get(contextID)
	if err != nil {
		return nil, err
	}
	if convo.AgentID != agentID || convo.UserID != userID {
		return nil, fault.Unauthorized("context does not belong to this agent and user")
	}
	firstMessage := len(convo.Messages) == 0

	temp := agent.Config.Behavior.Temperature
	if temperature != nil {
		temp = *temperature
	}

	prompt := buildPrompt(agent, convo.Messages, message, 0)
	return s.completeTurn(ctx, agent, userID, contextID, message, prompt, temp, firstMessage, start)
}

// ProcessPublicTurn executes one unauthenticated turn against a public
// agent. Every call gets a fresh context identifier that is never reused;
// knowledge-base injection is capped and no temperature override exists.
// Usage is metered against the agent's owner.
func (s *Service) ProcessPublicTurn(ctx context.Context, agentID, message string) (*models.TurnResult, error) {
	start := time.Now()

	agent, err := s.agents.Get(agentID)
	if err != nil {
		return nil, err
	}
	if !agent.Permissions.IsPublic {
		return nil, fault.Unauthorized("agent is not public")
	}

	if canned, ok := statusReply(agent, "", start); ok {
		return canned, nil
	}

	visitorID := fmt.Sprintf("public:%d", start.UnixNano())
	contextID, err := s.contexts.Create(agentID, visitorID, true)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(agent, nil, message, publicKnowledgeCap)
	return s.completeTurn(ctx, agent, agent.OwnerID, contextID, message, prompt, agent.Config.Behavior.Temperature, true, start)
}

// completeTurn runs the shared Active-path tail: provider call, fallback
// synthesis, context writes, analytics, and metering. Provider failure is
// absorbed; writes after a successful generation are best-effort and
// never roll the turn back.
func (s *Service) completeTurn(ctx context.Context, agent *models.Agent, billedUser, contextID, message, prompt string, temperature float64, firstMessage bool, start time.Time) (*models.TurnResult, error) {
	var (
		replyText  string
		confidence float64
		tokensUsed int64
	)

	resp, err := s.gen.Generate(ctx, &contracts.GenerateRequest{
		Prompt:      prompt,
		Temperature: &temperature,
		MaxTokens:   agent.Config.Behavior.MaxTokens,
	})
	if err != nil {
		// Availability over transparency: the caller gets a synthesized
		// reply instead of the provider's error.
		log.Warn().
			Str("agent_id", agent.ID).
			Str("provider", s.gen.Name()).
			Err(err).
			Msg("Provider call failed, synthesizing fallback reply")
		replyText = fallbackReply(agent, message)
		confidence = fallbackConfidence
		tokensUsed = int64(models.EstimateTokens(replyText))
	} else {
		replyText = resp.Text
		confidence = resp.Confidence
		tokensUsed = resp.TokensUsed
	}

	if err := s.contexts.AddMessage(contextID, models.RoleUser, message); err != nil {
		log.Error().Err(err).Str("context_id", contextID).Msg("Failed to record user message")
	}
	if err := s.contexts.AddMessage(contextID, models.RoleAssistant, replyText); err != nil {
		log.Error().Err(err).Str("context_id", contextID).Msg("Failed to record assistant reply")
	}

	var dConversations int64
	if firstMessage {
		dConversations = 1
	}
	if err := s.agents.UpdateAnalytics(agent.ID, dConversations, 2, tokensUsed); err != nil {
		log.Error().Err(err).Str("agent_id", agent.ID).Msg("Failed to update agent analytics")
	}

	if _, err := s.billing.RecordUsage(billedUser, agent.ID, tokensUsed, models.OpMessageProcessing); err != nil {
		log.Error().Err(err).Str("user", billedUser).Msg("Failed to meter turn")
	}

	return &models.TurnResult{
		Response:       replyText,
		Confidence:     confidence,
		TokensUsed:     tokensUsed,
		ContextID:      contextID,
		ProcessingTime: time.Since(start).Milliseconds(),
	}, nil
}

// statusReply short-circuits turns against non-active agents with a
// fixed apology per status. No provider call, no context mutation; a
// nominal token count is still reported for consistency.
func statusReply(agent *models.Agent, contextID string, start time.Time) (*models.TurnResult, bool) {
	var text string
	switch agent.Status {
	case models.AgentStatusActive:
		return nil, false
	case models.AgentStatusInactive:
		text = fmt.Sprintf("%s is currently inactive. Please check back later.", agent.Config.Name)
	case models.AgentStatusSuspended:
		text = fmt.Sprintf("%s has been suspended and cannot respond right now.", agent.Config.Name)
	case models.AgentStatusArchived:
		text = fmt.Sprintf("%s has been archived and is no longer available.", agent.Config.Name)
	default:
		text = fmt.Sprintf("%s is not available right now.", agent.Config.Name)
	}

	return &models.TurnResult{
		Response:       text,
		Confidence:     1.0,
		TokensUsed:     int64(models.EstimateTokens(text)),
		ContextID:      contextID,
		ProcessingTime: time.Since(start).Milliseconds(),
	}, true
}

// fallbackReply synthesizes a deterministic reply embedding the agent's
// name, description, and the user's original text.
func fallbackReply(agent *models.Agent, message string) string {
	description := agent.Config.Description
	if description == "" {
		description = "your assistant"
	}
	return fmt.Sprintf(
		"Hi, I'm %s, %s. I'm having trouble reaching my language service right now, but I did receive your message: %q. Please try again in a moment.",
		agent.Config.Name, description, message,
	)
}
