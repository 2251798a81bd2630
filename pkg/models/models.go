// Package models defines the domain types shared across the ChatForge core:
// agents and their versioned configuration, conversation contexts,
// subscriptions, usage records, and the chat-turn result shape.
package models

import (
	"time"
	"unicode/utf8"
)

// ── Agent ────────────────────────────────────────────────────

type AgentStatus string

const (
	AgentStatusActive    AgentStatus = "active"
	AgentStatusInactive  AgentStatus = "inactive"
	AgentStatusSuspended AgentStatus = "suspended"
	AgentStatusArchived  AgentStatus = "archived"
)

// ValidStatus reports whether s is one of the closed set of agent statuses.
func ValidStatus(s AgentStatus) bool {
	switch s {
	case AgentStatusActive, AgentStatusInactive, AgentStatusSuspended, AgentStatusArchived:
		return true
	}
	return false
}

// Agent is a configured chat personality owned by one user.
// OwnerID is immutable after creation. ConfigHistory is append-only:
// every config update appends exactly one entry and bumps Version by one.
type Agent struct {
	ID      string      `json:"id"`
	OwnerID string      `json:"owner_id"`
	Status  AgentStatus `json:"status"`

	Config        AgentConfig      `json:"config"`
	Version       int              `json:"version"`
	ConfigHistory []ConfigRevision `json:"config_history"`

	Permissions Permissions    `json:"permissions"`
	Analytics   AgentAnalytics `json:"analytics"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// ConfigRevision is one entry in an agent's config history.
type ConfigRevision struct {
	Version   int         `json:"version"`
	Config    AgentConfig `json:"config"`
	CreatedAt time.Time   `json:"created_at"`
}

type Permissions struct {
	IsPublic bool `json:"is_public"`
}

// AgentAnalytics holds additive per-agent counters updated by the orchestrator.
type AgentAnalytics struct {
	TotalConversations int64    `json:"total_conversations"`
	TotalMessages      int64    `json:"total_messages"`
	TotalTokensUsed    int64    `json:"total_tokens_used"`
	AverageRating      *float64 `json:"average_rating,omitempty"`
}

// ── Agent Configuration ──────────────────────────────────────

type AgentConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	Personality     Personality         `json:"personality"`
	Behavior        Behavior            `json:"behavior"`
	KnowledgeBase   []KnowledgeSource   `json:"knowledge_base,omitempty"`
	Appearance      Appearance          `json:"appearance"`
	Integration     IntegrationSettings `json:"integration_settings"`
	ContextSettings ContextSettings     `json:"context_settings"`
}

type Personality struct {
	Tone               string   `json:"tone"`
	Style              string   `json:"style"`
	Traits             []string `json:"traits"`
	CommunicationStyle string   `json:"communication_style,omitempty"`
	ResponsePattern    string   `json:"response_pattern,omitempty"`
}

type ResponseLength string

const (
	ResponseLengthShort  ResponseLength = "short"
	ResponseLengthMedium ResponseLength = "medium"
	ResponseLengthLong   ResponseLength = "long"
)

type Behavior struct {
	Temperature          float64        `json:"temperature"`    // [0, 2]
	TopP                 float64        `json:"top_p"`          // [0, 1]
	Creativity           float64        `json:"creativity"`     // [0, 1]
	MaxTokens            int            `json:"max_tokens"`     // (0, 4096]
	ContextWindow        int            `json:"context_window"` // ≤ 100
	ResponseLength       ResponseLength `json:"response_length"`
	PresencePenalty      float64        `json:"presence_penalty"`
	FrequencyPenalty     float64        `json:"frequency_penalty"`
	SystemPromptTemplate string         `json:"system_prompt_template,omitempty"`
}

// KnowledgeSource is one entry in an agent's knowledge base.
// Priority runs 1 (lowest) to 10 (highest); only active sources are
// injected into prompts.
type KnowledgeSource struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Priority int    `json:"priority"`
	Active   bool   `json:"active"`
}

type Appearance struct {
	AvatarURL    string `json:"avatar_url,omitempty"`
	PrimaryColor string `json:"primary_color,omitempty"`
	Greeting     string `json:"greeting,omitempty"`
}

type IntegrationSettings struct {
	AllowedOrigins   []string `json:"allowed_origins,omitempty"`
	RateLimitEnabled bool     `json:"rate_limit_enabled"`
	RateLimitPerMin  int      `json:"rate_limit_per_min,omitempty"`
	WebhookURL       string   `json:"webhook_url,omitempty"`
}

type ContextSettings struct {
	EnableMemory       bool   `json:"enable_memory"`
	MaxContextMessages int    `json:"max_context_messages"`
	MemoryDuration     string `json:"memory_duration,omitempty"`
	EnableLearning     bool   `json:"enable_learning"`
}

// ── Configuration Validation ─────────────────────────────────

// ValidationResult is the deterministic output of the config rubric.
// Score is in [0, 1]; Errors block creation/update, Warnings do not.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Score    float64  `json:"score"`
}

// ── Conversation Context ─────────────────────────────────────

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type ContextMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Tokens    int         `json:"tokens,omitempty"`
}

// ConversationContext is the bounded message history for one agent/user pair.
// len(Messages) never exceeds MaxSize after a write completes; exceeding it
// triggers the 70/30 compression pass before the context is persisted.
type ConversationContext struct {
	ContextID          string           `json:"context_id"`
	AgentID            string           `json:"agent_id"`
	UserID             string           `json:"user_id"`
	Messages           []ContextMessage `json:"messages"`
	MaxSize            int              `json:"max_size"`
	CompressionEnabled bool             `json:"compression_enabled"`
	Created            time.Time        `json:"created"`
	LastAccessed       time.Time        `json:"last_accessed"`
}

// ── Subscription & Usage ─────────────────────────────────────

type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "free"
	TierBase       SubscriptionTier = "base"
	TierPro        SubscriptionTier = "pro"
	TierEnterprise SubscriptionTier = "enterprise"
)

// ValidTier reports whether t is one of the closed set of tiers.
func ValidTier(t SubscriptionTier) bool {
	switch t {
	case TierFree, TierBase, TierPro, TierEnterprise:
		return true
	}
	return false
}

// TierLimits defines the monthly message allowance and cost of a tier.
type TierLimits struct {
	Tier             SubscriptionTier `json:"tier"`
	MonthlyAllowance int64            `json:"monthly_allowance"`
	MonthlyCost      float64          `json:"monthly_cost"`
}

// LimitsFor returns the allowance/cost table entry for a tier.
// Unknown tiers fall back to Free.
func LimitsFor(tier SubscriptionTier) TierLimits {
	switch tier {
	case TierBase:
		return TierLimits{Tier: TierBase, MonthlyAllowance: 1000, MonthlyCost: 9.99}
	case TierPro:
		return TierLimits{Tier: TierPro, MonthlyAllowance: 5000, MonthlyCost: 29.99}
	case TierEnterprise:
		return TierLimits{Tier: TierEnterprise, MonthlyAllowance: 20000, MonthlyCost: 99.99}
	default:
		return TierLimits{Tier: TierFree, MonthlyAllowance: 100, MonthlyCost: 0}
	}
}

type UserSubscription struct {
	UserID                string           `json:"user_id"`
	CurrentTier           SubscriptionTier `json:"current_tier"`
	MonthlyUsage          int64            `json:"monthly_usage"`
	MonthlyAllowance      int64            `json:"monthly_allowance"`
	MonthlyCost           float64          `json:"monthly_cost"`
	SubscriptionStartDate time.Time        `json:"subscription_start_date"`
	LastBillingDate       time.Time        `json:"last_billing_date"`
	OverageCharges        float64          `json:"overage_charges"`
	LastUpdated           time.Time        `json:"last_updated"`
}

type UsageOperation string

const (
	OpMessageProcessing    UsageOperation = "message_processing"
	OpAgentCreation        UsageOperation = "agent_creation"
	OpDocumentUpload       UsageOperation = "document_upload"
	OpCustomPromptTraining UsageOperation = "custom_prompt_training"
)

// UsageRecord is one append-only metering log entry. Never mutated or deleted.
type UsageRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	AgentID   string         `json:"agent_id"`
	Operation UsageOperation `json:"operation"`
	Tokens    int64          `json:"tokens"`
	Cost      float64        `json:"cost"`
	Timestamp time.Time      `json:"timestamp"`
}

// ── Chat Turn ────────────────────────────────────────────────

// TurnResult is what a chat call returns to the presentation layer.
// Fallback replies are indistinguishable from real ones except for the
// lower confidence score.
type TurnResult struct {
	Response       string  `json:"response"`
	Confidence     float64 `json:"confidence"`
	TokensUsed     int64   `json:"tokens_used"`
	ContextID      string  `json:"context_id"`
	ProcessingTime int64   `json:"processing_time_ms"`
}

// EstimateTokens approximates the token count of a piece of text as
// ceil(characters/4), counting characters rather than bytes so
// multibyte content is not overcounted. Used when the provider did not
// report an exact count.
func EstimateTokens(content string) int {
	return (utf8.RuneCountInString(content) + 3) / 4
}
