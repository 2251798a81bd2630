package chat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chatforge/chatforge/pkg/models"
)

// buildPrompt assembles the provider prompt for one turn:
// system preamble, bounded knowledge-base injection, serialized trimmed
// history, and the new user message. knowledgeCap <= 0 injects every
// active source; the public path caps it.
func buildPrompt(agent *models.Agent, history []models.ContextMessage, userMessage string, knowledgeCap int) string {
	var b strings.Builder

	writePreamble(&b, agent)
	writeKnowledge(&b, agent.Config.KnowledgeBase, knowledgeCap)
	writeHistory(&b, history)

	b.WriteString("User: ")
	b.WriteString(userMessage)
	b.WriteString("\nAssistant:")

	return b.String()
}

func writePreamble(b *strings.Builder, agent *models.Agent) {
	cfg := agent.Config
	fmt.Fprintf(b, "You are %s", cfg.Name)
	if cfg.Description != "" {
		fmt.Fprintf(b, ", %s", cfg.Description)
	}
	b.WriteString(".\n")

	p := cfg.Personality
	fmt.Fprintf(b, "Speak in a %s tone with a %s style.\n", p.Tone, p.Style)
	if len(p.Traits) > 0 {
		fmt.Fprintf(b, "Your character traits: %s.\n", strings.Join(p.Traits, ", "))
	}
	if p.CommunicationStyle != "" {
		fmt.Fprintf(b, "Communication style: %s.\n", p.CommunicationStyle)
	}

	switch cfg.Behavior.ResponseLength {
	case models.ResponseLengthShort:
		b.WriteString("Keep replies short: one or two sentences.\n")
	case models.ResponseLengthLong:
		b.WriteString("Give thorough, detailed replies.\n")
	default:
		b.WriteString("Keep replies to a moderate length.\n")
	}

	if cfg.Behavior.SystemPromptTemplate != "" {
		b.WriteString(cfg.Behavior.SystemPromptTemplate)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// writeKnowledge injects active knowledge sources, highest priority
// first, up to limit entries (limit <= 0 means all).
func writeKnowledge(b *strings.Builder, sources []models.KnowledgeSource, limit int) {
	active := make([]models.KnowledgeSource, 0, len(sources))
	for _, src := range sources {
		if src.Active {
			active = append(active, src)
		}
	}
	if len(active) == 0 {
		return
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}

	b.WriteString("Relevant knowledge:\n")
	for _, src := range active {
		if src.Title != "" {
			fmt.Fprintf(b, "- %s: %s\n", src.Title, src.Content)
		} else {
			fmt.Fprintf(b, "- %s\n", src.Content)
		}
	}
	b.WriteString("\n")
}

func writeHistory(b *strings.Builder, history []models.ContextMessage) {
	if len(history) == 0 {
		return
	}
	b.WriteString("Conversation so far:\n")
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			fmt.Fprintf(b, "User: %s\n", msg.Content)
		case models.RoleAssistant:
			fmt.Fprintf(b, "Assistant: %s\n", msg.Content)
		case models.RoleSystem:
			fmt.Fprintf(b, "System: %s\n", msg.Content)
		}
	}
	b.WriteString("\n")
}
