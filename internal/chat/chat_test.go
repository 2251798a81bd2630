package chat_test

import (
	"context"
	"strings"
	"testing"

	"github.com/chatforge/chatforge/internal/agents"
	"github.com/chatforge/chatforge/internal/billing"
	"github.com/chatforge/chatforge/internal/chat"
	"github.com/chatforge/chatforge/internal/contexts"
	"github.com/chatforge/chatforge/pkg/contracts"
	"github.com/chatforge/chatforge/pkg/fault"
	"github.com/chatforge/chatforge/pkg/models"
)

// mockGenerator records calls and serves a scripted reply or failure.
type mockGenerator struct {
	calls      int
	lastPrompt string
	lastTemp   *float64
	reply      string
	tokens     int64
	err        error
}

func (m *mockGenerator) Name() string { return "mock" }

func (m *mockGenerator) Generate(_ context.Context, req *contracts.GenerateRequest) (*contracts.GenerateResponse, error) {
	m.calls++
	m.lastPrompt = req.Prompt
	m.lastTemp = req.Temperature
	if m.err != nil {
		return nil, m.err
	}
	return &contracts.GenerateResponse{
		Text:       m.reply,
		TokensUsed: m.tokens,
		Confidence: 0.9,
		ModelID:    "mock-model",
	}, nil
}

type fixture struct {
	agents   *agents.Service
	contexts *contexts.Service
	billing  *billing.Service
	gen      *mockGenerator
	chat     *chat.Service
	agentID  string
}

func newFixture(t *testing.T, isPublic bool) *fixture {
	t.Helper()

	agentSvc := agents.NewService(nil)
	cfg := models.AgentConfig{
		Name:        "Atlas",
		Description: "a travel planning assistant",
		Personality: models.Personality{
			Tone: "friendly", Style: "concise", Traits: []string{"curious"},
		},
		Behavior: models.Behavior{
			Temperature: 0.7, TopP: 0.9, Creativity: 0.5, MaxTokens: 512,
			ContextWindow: 20, ResponseLength: models.ResponseLengthMedium,
		},
		KnowledgeBase: []models.KnowledgeSource{
			{ID: "k1", Title: "Visas", Content: "EU visitors need no visa.", Priority: 9, Active: true},
			{ID: "k2", Title: "Season", Content: "Spring is the best season.", Priority: 7, Active: true},
			{ID: "k3", Title: "Budget", Content: "Plan 100/day.", Priority: 5, Active: true},
			{ID: "k4", Title: "Food", Content: "Try the local market.", Priority: 3, Active: true},
			{ID: "k5", Title: "Old", Content: "Outdated advice.", Priority: 10, Active: false},
		},
		ContextSettings: models.ContextSettings{MaxContextMessages: 20},
	}
	agentID, err := agentSvc.Create("owner-1", cfg, isPublic)
	if err != nil {
		t.Fatalf("Agent create failed: %v", err)
	}

	contextSvc := contexts.NewService(agentSvc, nil)
	billingSvc := billing.NewService(nil)
	gen := &mockGenerator{reply: "Here is your itinerary.", tokens: 50}

	return &fixture{
		agents:   agentSvc,
		contexts: contextSvc,
		billing:  billingSvc,
		gen:      gen,
		chat:     chat.NewService(agentSvc, contextSvc, billingSvc, gen),
		agentID:  agentID,
	}
}

func TestAuthenticatedTurnSuccess(t *testing.T) {
	f := newFixture(t, false)

	result, err := f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "Plan a trip to Lisbon", "", nil)
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if result.Response != "Here is your itinerary." {
		t.Errorf("Response = %q", result.Response)
	}
	if result.Confidence != 0.9 {
		t.Errorf("Confidence = %f, want 0.9", result.Confidence)
	}
	if result.ContextID == "" {
		t.Fatal("No context ID returned")
	}
	if f.gen.calls != 1 {
		t.Errorf("Provider calls = %d, want 1", f.gen.calls)
	}

	// Both messages recorded.
	convo, err := f.contexts.Get(result.ContextID)
	if err != nil {
		t.Fatalf("Context lookup failed: %v", err)
	}
	if len(convo.Messages) != 2 {
		t.Fatalf("Context has %d messages, want 2", len(convo.Messages))
	}
	if convo.Messages[0].Role != models.RoleUser || convo.Messages[1].Role != models.RoleAssistant {
		t.Errorf("Roles = %s, %s", convo.Messages[0].Role, convo.Messages[1].Role)
	}

	// Analytics: one conversation, two messages, provider tokens.
	analytics, _ := f.agents.GetAnalytics(f.agentID)
	if analytics.TotalConversations != 1 || analytics.TotalMessages != 2 || analytics.TotalTokensUsed != 50 {
		t.Errorf("Analytics = %+v, want 1/2/50", analytics)
	}

	// One metering call against the caller.
	sub, _ := f.billing.GetUserSubscription("owner-1")
	if sub.MonthlyUsage != 1 {
		t.Errorf("MonthlyUsage = %d, want 1", sub.MonthlyUsage)
	}
}

func TestContinuedContextDoesNotRecountConversation(t *testing.T) {
	f := newFixture(t, false)

	first, err := f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "hello", "", nil)
	if err != nil {
		t.Fatalf("First turn failed: %v", err)
	}
	if _, err := f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "more", first.ContextID, nil); err != nil {
		t.Fatalf("Second turn failed: %v", err)
	}

	analytics, _ := f.agents.GetAnalytics(f.agentID)
	if analytics.TotalConversations != 1 {
		t.Errorf("TotalConversations = %d, want 1", analytics.TotalConversations)
	}
	if analytics.TotalMessages != 4 {
		t.Errorf("TotalMessages = %d, want 4", analytics.TotalMessages)
	}
}

func TestTurnRequiresOwner(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.chat.ProcessTurn(context.Background(), f.agentID, "stranger", "hi", "", nil)
	if !fault.IsCode(err, fault.CodeUnauthorized) {
		t.Errorf("Expected unauthorized, got %v", err)
	}
	if f.gen.calls != 0 {
		t.Errorf("Provider called %d times on unauthorized turn", f.gen.calls)
	}
}

func TestTurnRejectsForeignContext(t *testing.T) {
	f := newFixture(t, true)

	// A second agent with its own conversation.
	otherCfg := models.AgentConfig{
		Name:        "Nimbus",
		Description: "a weather assistant",
		Personality: models.Personality{Tone: "calm", Style: "brief", Traits: []string{"precise"}},
		Behavior: models.Behavior{
			Temperature: 0.5, TopP: 0.9, Creativity: 0.5, MaxTokens: 256,
			ContextWindow: 20, ResponseLength: models.ResponseLengthShort,
		},
		ContextSettings: models.ContextSettings{MaxContextMessages: 20},
	}
	otherID, err := f.agents.Create("owner-2", otherCfg, false)
	if err != nil {
		t.Fatalf("Second agent create failed: %v", err)
	}
	foreignCtx, err := f.contexts.Create(otherID, "owner-2", false)
	if err != nil {
		t.Fatalf("Foreign context create failed: %v", err)
	}
	if err := f.contexts.AddMessage(foreignCtx, models.RoleUser, "private weather notes"); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	// Owning one agent does not grant access to another conversation.
	_, err = f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "hi", foreignCtx, nil)
	if !fault.IsCode(err, fault.CodeUnauthorized) {
		t.Fatalf("Expected unauthorized for foreign context, got %v", err)
	}
	if f.gen.calls != 0 {
		t.Errorf("Provider called %d times with foreign context", f.gen.calls)
	}
	convo, _ := f.contexts.Get(foreignCtx)
	if len(convo.Messages) != 1 {
		t.Errorf("Foreign context has %d messages, want 1 (untouched)", len(convo.Messages))
	}

	// A visitor context on the same agent is still not the owner's.
	visitorCtx, err := f.contexts.Create(f.agentID, "public:123", true)
	if err != nil {
		t.Fatalf("Visitor context create failed: %v", err)
	}
	_, err = f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "hi", visitorCtx, nil)
	if !fault.IsCode(err, fault.CodeUnauthorized) {
		t.Fatalf("Expected unauthorized for visitor context, got %v", err)
	}
}

func TestTemperatureOverride(t *testing.T) {
	f := newFixture(t, false)

	override := 1.4
	if _, err := f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "hi", "", &override); err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if f.gen.lastTemp == nil || *f.gen.lastTemp != 1.4 {
		t.Errorf("Temperature sent = %v, want 1.4", f.gen.lastTemp)
	}

	if _, err := f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "hi", "", nil); err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if f.gen.lastTemp == nil || *f.gen.lastTemp != 0.7 {
		t.Errorf("Default temperature sent = %v, want 0.7", f.gen.lastTemp)
	}
}

func TestNonActiveStatusShortCircuits(t *testing.T) {
	statuses := []models.AgentStatus{
		models.AgentStatusInactive,
		models.AgentStatusSuspended,
		models.AgentStatusArchived,
	}

	seen := map[string]bool{}
	for _, status := range statuses {
		f := newFixture(t, false)
		if err := f.agents.UpdateStatus(f.agentID, "owner-1", status); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}

		result, err := f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "hi", "", nil)
		if err != nil {
			t.Fatalf("Status %s: turn errored: %v", status, err)
		}
		if f.gen.calls != 0 {
			t.Errorf("Status %s: provider called %d times, want 0", status, f.gen.calls)
		}
		if result.TokensUsed == 0 {
			t.Errorf("Status %s: nominal token count missing", status)
		}
		if !strings.Contains(result.Response, "Atlas") {
			t.Errorf("Status %s: canned reply %q does not name the agent", status, result.Response)
		}
		if seen[result.Response] {
			t.Errorf("Status %s: canned reply %q reused across statuses", status, result.Response)
		}
		seen[result.Response] = true

		// No context mutation on the short-circuit path.
		if got := f.contexts.GetAgentContexts(f.agentID); len(got) != 0 {
			t.Errorf("Status %s: %d contexts created", status, len(got))
		}
	}
}

func TestProviderFailureReturnsFallback(t *testing.T) {
	f := newFixture(t, false)
	f.gen.err = fault.New(fault.CodeProviderUnavailable, "connection refused")

	result, err := f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "Plan a trip", "", nil)
	if err != nil {
		t.Fatalf("Provider failure must not surface, got: %v", err)
	}
	if !strings.Contains(result.Response, "Atlas") {
		t.Errorf("Fallback %q does not embed the agent name", result.Response)
	}
	if !strings.Contains(result.Response, "Plan a trip") {
		t.Errorf("Fallback %q does not embed the user message", result.Response)
	}
	if result.Confidence >= 0.9 {
		t.Errorf("Fallback confidence = %f, want below a real reply's", result.Confidence)
	}
	if result.TokensUsed == 0 {
		t.Error("Fallback should report an estimated token count")
	}

	// The turn is still recorded.
	convo, _ := f.contexts.Get(result.ContextID)
	if len(convo.Messages) != 2 {
		t.Errorf("Context has %d messages after fallback, want 2", len(convo.Messages))
	}
}

func TestPublicTurnRequiresPublicAgent(t *testing.T) {
	f := newFixture(t, false) // private agent

	_, err := f.chat.ProcessPublicTurn(context.Background(), f.agentID, "hi")
	if !fault.IsCode(err, fault.CodeUnauthorized) {
		t.Fatalf("Expected unauthorized, got %v", err)
	}
	if f.gen.calls != 0 {
		t.Errorf("Provider called %d times, want 0", f.gen.calls)
	}
	if got := f.contexts.GetAgentContexts(f.agentID); len(got) != 0 {
		t.Errorf("Public turn against private agent created %d contexts", len(got))
	}
}

func TestPublicTurnFreshContextAndKnowledgeCap(t *testing.T) {
	f := newFixture(t, true)

	first, err := f.chat.ProcessPublicTurn(context.Background(), f.agentID, "hello")
	if err != nil {
		t.Fatalf("Public turn failed: %v", err)
	}
	second, err := f.chat.ProcessPublicTurn(context.Background(), f.agentID, "hello again")
	if err != nil {
		t.Fatalf("Second public turn failed: %v", err)
	}
	if first.ContextID == second.ContextID {
		t.Error("Public turns must not reuse context identifiers")
	}

	// Cap of 3 active sources, highest priority first: Visas, Season,
	// Budget make the cut; Food does not; inactive sources never do.
	for _, want := range []string{"Visas", "Season", "Budget"} {
		if !strings.Contains(f.gen.lastPrompt, want) {
			t.Errorf("Prompt missing capped source %q", want)
		}
	}
	for _, excluded := range []string{"Food", "Outdated advice"} {
		if strings.Contains(f.gen.lastPrompt, excluded) {
			t.Errorf("Prompt contains excluded source text %q", excluded)
		}
	}

	// Public usage is metered against the owner.
	sub, _ := f.billing.GetUserSubscription("owner-1")
	if sub.MonthlyUsage != 2 {
		t.Errorf("Owner MonthlyUsage = %d, want 2", sub.MonthlyUsage)
	}
}

func TestPromptContainsHistoryAndPersona(t *testing.T) {
	f := newFixture(t, false)

	first, _ := f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "What about visas?", "", nil)
	f.chat.ProcessTurn(context.Background(), f.agentID, "owner-1", "And the weather?", first.ContextID, nil)

	prompt := f.gen.lastPrompt
	if !strings.Contains(prompt, "You are Atlas") {
		t.Errorf("Prompt missing persona preamble:\n%s", prompt)
	}
	if !strings.Contains(prompt, "What about visas?") {
		t.Errorf("Prompt missing prior history:\n%s", prompt)
	}
	if !strings.HasSuffix(prompt, "Assistant:") {
		t.Errorf("Prompt does not end with the assistant cue:\n%s", prompt)
	}
	// Authenticated path injects all active sources, including Food.
	if !strings.Contains(prompt, "Food") {
		t.Errorf("Authenticated prompt missing uncapped source:\n%s", prompt)
	}
}
