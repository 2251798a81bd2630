package agents

import (
	"fmt"

	"github.com/chatforge/chatforge/pkg/models"
)

// Rubric weights. They must sum to 1.
const (
	weightPersonality = 0.3
	weightKnowledge   = 0.2
	weightBehavior    = 0.3
	weightIntegration = 0.2
)

// Validate runs the deterministic config rubric. Errors block creation
// and update; warnings do not. The score is computed regardless of
// validity so callers can show configuration quality.
func Validate(cfg *models.AgentConfig) models.ValidationResult {
	var errors, warnings []string

	// Personality: hard requirements plus completeness score.
	p := cfg.Personality
	if p.Tone == "" {
		errors = append(errors, "personality.tone must not be empty")
	}
	if p.Style == "" {
		errors = append(errors, "personality.style must not be empty")
	}
	if len(p.Traits) == 0 {
		errors = append(errors, "personality.traits must contain at least one trait")
	}
	personalityParts := 0
	if p.Tone != "" {
		personalityParts++
	}
	if p.Style != "" {
		personalityParts++
	}
	if len(p.Traits) > 0 {
		personalityParts++
	}
	personalityScore := float64(personalityParts) / 3.0

	// Behavior: range checks.
	b := cfg.Behavior
	if b.Temperature < 0 || b.Temperature > 2 {
		errors = append(errors, fmt.Sprintf("behavior.temperature %.2f out of range [0, 2]", b.Temperature))
	}
	if b.TopP < 0 || b.TopP > 1 {
		errors = append(errors, fmt.Sprintf("behavior.top_p %.2f out of range [0, 1]", b.TopP))
	}
	if b.Creativity < 0 || b.Creativity > 1 {
		errors = append(errors, fmt.Sprintf("behavior.creativity %.2f out of range [0, 1]", b.Creativity))
	}
	if b.MaxTokens <= 0 || b.MaxTokens > 4096 {
		errors = append(errors, fmt.Sprintf("behavior.max_tokens %d out of range (0, 4096]", b.MaxTokens))
	}
	if b.ContextWindow > 100 {
		errors = append(errors, fmt.Sprintf("behavior.context_window %d exceeds maximum 100", b.ContextWindow))
	}
	if b.Temperature > 1.2 && b.Temperature <= 2 {
		warnings = append(warnings, "behavior.temperature above 1.2 may produce erratic replies")
	}
	behaviorParts := 0
	if b.Temperature >= 0 && b.Temperature <= 2 {
		behaviorParts++
	}
	if b.MaxTokens > 0 && b.MaxTokens <= 4096 {
		behaviorParts++
	}
	behaviorScore := float64(behaviorParts) / 2.0

	// Knowledge base: size limits plus per-source checks.
	kb := cfg.KnowledgeBase
	if len(kb) > 50 {
		errors = append(errors, fmt.Sprintf("knowledge_base has %d sources, maximum is 50", len(kb)))
	}
	if len(kb) == 0 {
		warnings = append(warnings, "knowledge_base is empty; replies will rely on personality alone")
	}
	for i, src := range kb {
		if src.Content == "" {
			errors = append(errors, fmt.Sprintf("knowledge_base[%d] has empty content", i))
		}
		if src.Priority < 1 || src.Priority > 10 {
			errors = append(errors, fmt.Sprintf("knowledge_base[%d] priority %d out of range [1, 10]", i, src.Priority))
		}
	}
	var knowledgeScore float64
	switch {
	case len(kb) >= 3:
		knowledgeScore = 1.0
	case len(kb) > 0:
		knowledgeScore = 0.5
	}

	// Integration: origins locked down and rate limiting on.
	integrationParts := 0
	if len(cfg.Integration.AllowedOrigins) > 0 {
		integrationParts++
	}
	if cfg.Integration.RateLimitEnabled {
		integrationParts++
	}
	integrationScore := float64(integrationParts) / 2.0

	if cfg.ContextSettings.MaxContextMessages > 50 {
		warnings = append(warnings, "context_settings.max_context_messages above 50 increases prompt size and cost")
	}

	score := weightPersonality*personalityScore +
		weightKnowledge*knowledgeScore +
		weightBehavior*behaviorScore +
		weightIntegration*integrationScore

	return models.ValidationResult{
		IsValid:  len(errors) == 0,
		Errors:   errors,
		Warnings: warnings,
		Score:    score,
	}
}
