// Package contexts owns per-conversation message history, its 70/30
// compression policy, and context lifecycle.
package contexts

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/chatforge/internal/persist"
	"github.com/chatforge/chatforge/pkg/fault"
	"github.com/chatforge/chatforge/pkg/models"
)

// defaultMaxSize bounds contexts whose agent never configured a limit.
const defaultMaxSize = 20

// AgentGetter is the slice of the agent store the context manager needs.
// Contexts never hold live references into agent state; every check is a
// fresh call returning a copy.
type AgentGetter interface {
	Get(agentID string) (*models.Agent, error)
}

// Service is the context manager.
type Service struct {
	mu         sync.RWMutex
	contexts   map[string]*models.ConversationContext
	agentIndex map[string][]string // agentID -> context IDs

	agents AgentGetter
	saver  persist.Saver
}

// NewService creates an empty context manager reading agents through g.
func NewService(g AgentGetter, saver persist.Saver) *Service {
	return &Service{
		contexts:   make(map[string]*models.ConversationContext),
		agentIndex: make(map[string][]string),
		agents:     g,
		saver:      saver,
	}
}

func (s *Service) requestSave() {
	if s.saver != nil {
		s.saver.RequestSave()
	}
}

// Create opens a new empty context for one agent/user pair.
// The caller must own the agent; the public chat path instead requires
// the agent to be public. MaxSize comes from the agent's context settings.
func (s *Service) Create(agentID, userID string, publicPath bool) (string, error) {
	agent, err := s.agents.Get(agentID)
	if err != nil {
		return "", err
	}
	if publicPath {
		if !agent.Permissions.IsPublic {
			return "", fault.Unauthorized("agent is not public")
		}
	} else if agent.OwnerID != userID {
		return "", fault.Unauthorized("only the agent owner can open a context")
	}

	maxSize := agent.Config.ContextSettings.MaxContextMessages
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}

	now := time.Now()
	ctx := &models.ConversationContext{
		ContextID:          uuid.New().String(),
		AgentID:            agentID,
		UserID:             userID,
		Messages:           []models.ContextMessage{},
		MaxSize:            maxSize,
		CompressionEnabled: true,
		Created:            now,
		LastAccessed:       now,
	}

	s.mu.Lock()
	s.contexts[ctx.ContextID] = ctx
	s.agentIndex[agentID] = append(s.agentIndex[agentID], ctx.ContextID)
	s.mu.Unlock()

	log.Debug().
		Str("context_id", ctx.ContextID).
		Str("agent_id", agentID).
		Int("max_size", maxSize).
		Msg("Context created")

	s.requestSave()
	return ctx.ContextID, nil
}

// AddMessage appends one message, estimating its token count, and runs
// the compression pass if the context now exceeds its size cap.
func (s *Service) AddMessage(contextID string, role models.MessageRole, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[contextID]
	if !ok {
		return fault.NotFound("context", contextID)
	}

	ctx.Messages = append(ctx.Messages, models.ContextMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Tokens:    models.EstimateTokens(content),
	})
	if ctx.CompressionEnabled && len(ctx.Messages) > ctx.MaxSize {
		ctx.Messages = compress(ctx.Messages, ctx.MaxSize)
	}
	ctx.LastAccessed = time.Now()

	s.requestSave()
	return nil
}

// compress applies the fixed 70/30 recency-biased retention policy:
// keep the last floor(0.7·max) messages, and from the messages before
// that window keep the first (max − recent), oldest-first. The result
// is important + recent in chronological order.
func compress(messages []models.ContextMessage, maxSize int) []models.ContextMessage {
	if len(messages) <= maxSize {
		return messages
	}

	recentCount := int(float64(maxSize) * 0.7)
	importantCount := maxSize - recentCount

	recent := messages[len(messages)-recentCount:]
	preceding := messages[:len(messages)-recentCount]
	if importantCount > len(preceding) {
		importantCount = len(preceding)
	}
	important := preceding[:importantCount]

	out := make([]models.ContextMessage, 0, maxSize)
	out = append(out, important...)
	out = append(out, recent...)
	return out
}

// Get returns a copy of the context, messages included.
func (s *Service) Get(contextID string) (*models.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.contexts[contextID]
	if !ok {
		return nil, fault.NotFound("context", contextID)
	}
	return copyContext(ctx), nil
}

// GetAgentContexts returns copies of every context opened against one agent.
func (s *Service) GetAgentContexts(agentID string) []*models.ConversationContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.agentIndex[agentID]
	out := make([]*models.ConversationContext, 0, len(ids))
	for _, id := range ids {
		if ctx, ok := s.contexts[id]; ok {
			out = append(out, copyContext(ctx))
		}
	}
	return out
}

// Clear deletes a context. The caller must be the context's user and the
// context must belong to the given agent.
func (s *Service) Clear(agentID, contextID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[contextID]
	if !ok {
		return fault.NotFound("context", contextID)
	}
	if ctx.UserID != userID || ctx.AgentID != agentID {
		return fault.Unauthorized("context does not belong to this caller and agent")
	}

	delete(s.contexts, contextID)
	ids := s.agentIndex[agentID]
	for i, id := range ids {
		if id == contextID {
			s.agentIndex[agentID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	s.requestSave()
	return nil
}

func copyContext(ctx *models.ConversationContext) *models.ConversationContext {
	out := *ctx
	out.Messages = make([]models.ContextMessage, len(ctx.Messages))
	copy(out.Messages, ctx.Messages)
	return &out
}

// Name implements persist.Component.
func (s *Service) Name() string { return "contexts" }

// Snapshot implements persist.Component.
func (s *Service) Snapshot() ([]persist.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return persist.MarshalEntries(s.contexts)
}

// Restore implements persist.Component. The agent index is derived from
// the restored contexts.
func (s *Service) Restore(entries []persist.Entry) error {
	contexts, err := persist.UnmarshalEntries[*models.ConversationContext](entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts = contexts
	s.agentIndex = make(map[string][]string)
	for id, ctx := range contexts {
		s.agentIndex[ctx.AgentID] = append(s.agentIndex[ctx.AgentID], id)
	}
	return nil
}
