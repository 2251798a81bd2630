// Package agents owns agent identity, configuration, versioning, status,
// and aggregate analytics counters.
package agents

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/chatforge/internal/persist"
	"github.com/chatforge/chatforge/pkg/fault"
	"github.com/chatforge/chatforge/pkg/models"
)

// Service is the agent store. All state lives in memory; the persist
// manager snapshots it across restarts.
type Service struct {
	mu         sync.RWMutex
	agents     map[string]*models.Agent
	ownerIndex map[string][]string // ownerID -> agent IDs, insertion order

	saver persist.Saver
}

// NewService creates an empty agent store.
func NewService(saver persist.Saver) *Service {
	return &Service{
		agents:     make(map[string]*models.Agent),
		ownerIndex: make(map[string][]string),
		saver:      saver,
	}
}

func (s *Service) requestSave() {
	if s.saver != nil {
		s.saver.RequestSave()
	}
}

// Create validates the config and stores a new Active agent owned by
// ownerID. Returns the new agent's ID.
func (s *Service) Create(ownerID string, cfg models.AgentConfig, isPublic bool) (string, error) {
	result := Validate(&cfg)
	if !result.IsValid {
		return "", fault.Validation(strings.Join(result.Errors, "; "))
	}

	now := time.Now()
	agent := &models.Agent{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Status:  models.AgentStatusActive,
		Config:  cfg,
		Version: 1,
		ConfigHistory: []models.ConfigRevision{
			{Version: 1, Config: cfg, CreatedAt: now},
		},
		Permissions: models.Permissions{IsPublic: isPublic},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.agents[agent.ID] = agent
	s.ownerIndex[ownerID] = append(s.ownerIndex[ownerID], agent.ID)
	s.mu.Unlock()

	log.Info().
		Str("agent_id", agent.ID).
		Str("owner", ownerID).
		Str("name", cfg.Name).
		Msg("Agent created")

	s.requestSave()
	return agent.ID, nil
}

// Get returns a copy of the agent.
func (s *Service) Get(agentID string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return nil, fault.NotFound("agent", agentID)
	}
	return copyAgent(agent), nil
}

// GetUserAgents returns copies of every agent owned by ownerID, in
// creation order.
func (s *Service) GetUserAgents(ownerID string) []*models.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.ownerIndex[ownerID]
	out := make([]*models.Agent, 0, len(ids))
	for _, id := range ids {
		if agent, ok := s.agents[id]; ok {
			out = append(out, copyAgent(agent))
		}
	}
	return out
}

// copyAgent clones the agent and every slice it carries so callers
// never hold a live reference into store state.
func copyAgent(agent *models.Agent) *models.Agent {
	out := *agent
	out.Config = copyConfig(agent.Config)
	out.ConfigHistory = make([]models.ConfigRevision, len(agent.ConfigHistory))
	for i, rev := range agent.ConfigHistory {
		out.ConfigHistory[i] = rev
		out.ConfigHistory[i].Config = copyConfig(rev.Config)
	}
	if agent.LastUsed != nil {
		lastUsed := *agent.LastUsed
		out.LastUsed = &lastUsed
	}
	if agent.Analytics.AverageRating != nil {
		rating := *agent.Analytics.AverageRating
		out.Analytics.AverageRating = &rating
	}
	return &out
}

func copyConfig(cfg models.AgentConfig) models.AgentConfig {
	out := cfg
	out.KnowledgeBase = append([]models.KnowledgeSource(nil), cfg.KnowledgeBase...)
	out.Personality.Traits = append([]string(nil), cfg.Personality.Traits...)
	out.Integration.AllowedOrigins = append([]string(nil), cfg.Integration.AllowedOrigins...)
	return out
}

// Update replaces the agent's config after re-validation. Owner-only.
// Each successful call appends exactly one revision and bumps the
// version by 1.
func (s *Service) Update(agentID, userID string, cfg models.AgentConfig) error {
	result := Validate(&cfg)
	if !result.IsValid {
		return fault.Validation(strings.Join(result.Errors, "; "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return fault.NotFound("agent", agentID)
	}
	if agent.OwnerID != userID {
		return fault.Unauthorized("only the agent owner can update it")
	}

	agent.Version++
	agent.Config = cfg
	agent.ConfigHistory = append(agent.ConfigHistory, models.ConfigRevision{
		Version:   agent.Version,
		Config:    cfg,
		CreatedAt: time.Now(),
	})
	agent.UpdatedAt = time.Now()

	log.Info().
		Str("agent_id", agentID).
		Int("version", agent.Version).
		Msg("Agent config updated")

	s.requestSave()
	return nil
}

// UpdateStatus transitions the agent's status. Owner-only; no effect on
// config history.
func (s *Service) UpdateStatus(agentID, userID string, status models.AgentStatus) error {
	if !models.ValidStatus(status) {
		return fault.Validation(fmt.Sprintf("invalid agent status %q", status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return fault.NotFound("agent", agentID)
	}
	if agent.OwnerID != userID {
		return fault.Unauthorized("only the agent owner can change its status")
	}

	agent.Status = status
	agent.UpdatedAt = time.Now()

	s.requestSave()
	return nil
}

// SetPublic toggles the agent's public chat permission. Owner-only.
func (s *Service) SetPublic(agentID, userID string, isPublic bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return fault.NotFound("agent", agentID)
	}
	if agent.OwnerID != userID {
		return fault.Unauthorized("only the agent owner can change its permissions")
	}

	agent.Permissions.IsPublic = isPublic
	agent.UpdatedAt = time.Now()

	s.requestSave()
	return nil
}

// Delete removes the agent and prunes it from the owner's agent list.
// Owner-only.
func (s *Service) Delete(agentID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return fault.NotFound("agent", agentID)
	}
	if agent.OwnerID != userID {
		return fault.Unauthorized("only the agent owner can delete it")
	}

	delete(s.agents, agentID)
	ids := s.ownerIndex[agent.OwnerID]
	for i, id := range ids {
		if id == agentID {
			s.ownerIndex[agent.OwnerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	log.Info().Str("agent_id", agentID).Msg("Agent deleted")

	s.requestSave()
	return nil
}

// UpdateAnalytics adds deltas to the agent's counters and stamps
// lastUsed. Called by the chat orchestrator after each turn.
func (s *Service) UpdateAnalytics(agentID string, dConversations, dMessages, dTokens int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return fault.NotFound("agent", agentID)
	}

	agent.Analytics.TotalConversations += dConversations
	agent.Analytics.TotalMessages += dMessages
	agent.Analytics.TotalTokensUsed += dTokens
	now := time.Now()
	agent.LastUsed = &now

	s.requestSave()
	return nil
}

// GetAnalytics returns a copy of the agent's analytics counters.
func (s *Service) GetAnalytics(agentID string) (*models.AgentAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return nil, fault.NotFound("agent", agentID)
	}
	analytics := agent.Analytics
	return &analytics, nil
}

// Name implements persist.Component.
func (s *Service) Name() string { return "agents" }

// Snapshot implements persist.Component.
func (s *Service) Snapshot() ([]persist.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return persist.MarshalEntries(s.agents)
}

// Restore implements persist.Component. The owner index is derived from
// the restored agents rather than persisted separately; entries are
// ordered by creation time so GetUserAgents keeps its creation-order
// contract across restarts.
func (s *Service) Restore(entries []persist.Entry) error {
	agents, err := persist.UnmarshalEntries[*models.Agent](entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = agents
	s.ownerIndex = make(map[string][]string, len(agents))
	for id, agent := range agents {
		s.ownerIndex[agent.OwnerID] = append(s.ownerIndex[agent.OwnerID], id)
	}
	for owner, ids := range s.ownerIndex {
		sort.Slice(ids, func(i, j int) bool {
			return s.agents[ids[i]].CreatedAt.Before(s.agents[ids[j]].CreatedAt)
		})
		s.ownerIndex[owner] = ids
	}
	return nil
}
