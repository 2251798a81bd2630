package agents_test

import (
	"strings"
	"testing"

	"github.com/chatforge/chatforge/internal/agents"
	"github.com/chatforge/chatforge/pkg/fault"
	"github.com/chatforge/chatforge/pkg/models"
)

func validConfig() models.AgentConfig {
	return models.AgentConfig{
		Name:        "Support Bot",
		Description: "Answers product questions",
		Personality: models.Personality{
			Tone:   "friendly",
			Style:  "concise",
			Traits: []string{"helpful", "patient"},
		},
		Behavior: models.Behavior{
			Temperature:    0.7,
			TopP:           0.9,
			Creativity:     0.5,
			MaxTokens:      512,
			ContextWindow:  20,
			ResponseLength: models.ResponseLengthMedium,
		},
		KnowledgeBase: []models.KnowledgeSource{
			{ID: "k1", Title: "FAQ", Content: "Shipping takes 3 days.", Priority: 5, Active: true},
		},
		ContextSettings: models.ContextSettings{
			EnableMemory:       true,
			MaxContextMessages: 20,
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	svc := agents.NewService(nil)

	id, err := svc.Create("owner-1", validConfig(), false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	agent, err := svc.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if agent.OwnerID != "owner-1" {
		t.Errorf("OwnerID = %q, want owner-1", agent.OwnerID)
	}
	if agent.Status != models.AgentStatusActive {
		t.Errorf("Status = %q, want active", agent.Status)
	}
	if agent.Version != 1 {
		t.Errorf("Version = %d, want 1", agent.Version)
	}
	if len(agent.ConfigHistory) != 1 {
		t.Errorf("ConfigHistory length = %d, want 1", len(agent.ConfigHistory))
	}
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	svc := agents.NewService(nil)
	cfg := validConfig()
	cfg.Behavior.Temperature = 3.0

	_, err := svc.Create("owner-1", cfg, false)
	if !fault.IsCode(err, fault.CodeValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "temperature") {
		t.Errorf("Error should mention the temperature bound, got: %v", err)
	}
}

func TestUpdateBumpsVersionAndHistory(t *testing.T) {
	svc := agents.NewService(nil)
	id, _ := svc.Create("owner-1", validConfig(), false)

	for i := 0; i < 3; i++ {
		cfg := validConfig()
		cfg.Description = "rev"
		if err := svc.Update(id, "owner-1", cfg); err != nil {
			t.Fatalf("Update %d failed: %v", i, err)
		}
		agent, _ := svc.Get(id)
		wantVersion := i + 2
		if agent.Version != wantVersion {
			t.Errorf("After update %d: Version = %d, want %d", i, agent.Version, wantVersion)
		}
		if len(agent.ConfigHistory) != wantVersion {
			t.Errorf("After update %d: history length = %d, want %d", i, len(agent.ConfigHistory), wantVersion)
		}
	}
}

func TestUpdateUnauthorized(t *testing.T) {
	svc := agents.NewService(nil)
	id, _ := svc.Create("owner-1", validConfig(), false)

	err := svc.Update(id, "intruder", validConfig())
	if !fault.IsCode(err, fault.CodeUnauthorized) {
		t.Errorf("Expected unauthorized, got %v", err)
	}

	agent, _ := svc.Get(id)
	if agent.Version != 1 {
		t.Errorf("Version changed by unauthorized update: %d", agent.Version)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := agents.NewService(nil)
	id, _ := svc.Create("owner-1", validConfig(), false)

	err := svc.UpdateStatus(id, "owner-1", models.AgentStatus("hibernating"))
	if !fault.IsCode(err, fault.CodeValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestDeletePrunesOwnerList(t *testing.T) {
	svc := agents.NewService(nil)
	first, _ := svc.Create("owner-1", validConfig(), false)
	second, _ := svc.Create("owner-1", validConfig(), false)

	if err := svc.Delete(first, "owner-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	remaining := svc.GetUserAgents("owner-1")
	if len(remaining) != 1 {
		t.Fatalf("GetUserAgents returned %d agents, want 1", len(remaining))
	}
	if remaining[0].ID != second {
		t.Errorf("Remaining agent = %s, want %s", remaining[0].ID, second)
	}

	if _, err := svc.Get(first); !fault.IsCode(err, fault.CodeNotFound) {
		t.Errorf("Expected not_found for deleted agent, got %v", err)
	}
}

func TestUpdateAnalyticsAccumulates(t *testing.T) {
	svc := agents.NewService(nil)
	id, _ := svc.Create("owner-1", validConfig(), false)

	if err := svc.UpdateAnalytics(id, 1, 2, 120); err != nil {
		t.Fatalf("UpdateAnalytics failed: %v", err)
	}
	if err := svc.UpdateAnalytics(id, 0, 2, 80); err != nil {
		t.Fatalf("UpdateAnalytics failed: %v", err)
	}

	analytics, err := svc.GetAnalytics(id)
	if err != nil {
		t.Fatalf("GetAnalytics failed: %v", err)
	}
	if analytics.TotalConversations != 1 {
		t.Errorf("TotalConversations = %d, want 1", analytics.TotalConversations)
	}
	if analytics.TotalMessages != 4 {
		t.Errorf("TotalMessages = %d, want 4", analytics.TotalMessages)
	}
	if analytics.TotalTokensUsed != 200 {
		t.Errorf("TotalTokensUsed = %d, want 200", analytics.TotalTokensUsed)
	}

	agent, _ := svc.Get(id)
	if agent.LastUsed == nil {
		t.Error("LastUsed not stamped by UpdateAnalytics")
	}
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	svc := agents.NewService(nil)
	id, _ := svc.Create("owner-1", validConfig(), false)

	agent, _ := svc.Get(id)
	agent.Config.KnowledgeBase[0].Content = "tampered"
	agent.Config.Personality.Traits[0] = "tampered"
	agent.ConfigHistory[0].Config.Name = "tampered"

	fresh, _ := svc.Get(id)
	if fresh.Config.KnowledgeBase[0].Content != "Shipping takes 3 days." {
		t.Errorf("Store knowledge base mutated through returned copy: %q", fresh.Config.KnowledgeBase[0].Content)
	}
	if fresh.Config.Personality.Traits[0] != "helpful" {
		t.Errorf("Store traits mutated through returned copy: %q", fresh.Config.Personality.Traits[0])
	}
	if fresh.ConfigHistory[0].Config.Name != "Support Bot" {
		t.Errorf("Store config history mutated through returned copy: %q", fresh.ConfigHistory[0].Config.Name)
	}
}

func TestRestoreKeepsCreationOrder(t *testing.T) {
	src := agents.NewService(nil)
	var created []string
	for i := 0; i < 6; i++ {
		id, err := src.Create("owner-1", validConfig(), false)
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		created = append(created, id)
	}

	entries, err := src.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	dst := agents.NewService(nil)
	if err := dst.Restore(entries); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	restored := dst.GetUserAgents("owner-1")
	if len(restored) != len(created) {
		t.Fatalf("GetUserAgents returned %d agents, want %d", len(restored), len(created))
	}
	for i, agent := range restored {
		if agent.ID != created[i] {
			t.Errorf("Position %d: got %s, want %s (creation order lost)", i, agent.ID, created[i])
		}
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	src := agents.NewService(nil)
	id, _ := src.Create("owner-1", validConfig(), true)
	src.Create("owner-2", validConfig(), false)

	entries, err := src.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	dst := agents.NewService(nil)
	if err := dst.Restore(entries); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	agent, err := dst.Get(id)
	if err != nil {
		t.Fatalf("Get after restore failed: %v", err)
	}
	if !agent.Permissions.IsPublic {
		t.Error("IsPublic lost in round trip")
	}
	if got := dst.GetUserAgents("owner-2"); len(got) != 1 {
		t.Errorf("Owner index not rebuilt: got %d agents for owner-2, want 1", len(got))
	}
}
