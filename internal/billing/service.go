// Package billing owns per-user subscription tiers, monthly usage
// counters, overage computation, and the append-only usage log.
package billing

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/chatforge/internal/persist"
	"github.com/chatforge/chatforge/pkg/fault"
	"github.com/chatforge/chatforge/pkg/models"
)

const (
	// billingPeriod is the coarse 30-day bucket used to detect a new
	// billing period. Comparing unix/bucket between now and the last
	// billing date approximates "a month has passed"; it is not
	// calendar-aware and will drift.
	billingPeriod = 30 * 24 * time.Hour

	// overageRate is charged per message beyond the tier allowance.
	overageRate = 0.01
)

// Service is the subscription billing engine. Independent of the other
// components; the orchestrator reports turns to it over an explicit call.
type Service struct {
	mu            sync.RWMutex
	subscriptions map[string]*models.UserSubscription
	usageLog      []models.UsageRecord // append-only, global chronological order

	now   func() time.Time // injectable clock for period-boundary tests
	saver persist.Saver
}

// NewService creates an empty billing engine.
func NewService(saver persist.Saver) *Service {
	return &Service{
		subscriptions: make(map[string]*models.UserSubscription),
		now:           time.Now,
		saver:         saver,
	}
}

// SetClock replaces the engine's clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) requestSave() {
	if s.saver != nil {
		s.saver.RequestSave()
	}
}

// bucket maps a time to its 30-day billing bucket.
func bucket(t time.Time) int64 {
	return t.Unix() / int64(billingPeriod.Seconds())
}

// RecordUsage meters one operation for a user. A missing subscription is
// provisioned as Free rather than erroring. Usage is counted in messages
// (exactly +1 per call), not tokens; tokens are recorded on the log
// entry for reporting only. Returns the usage record's ID.
func (s *Service) RecordUsage(userID, agentID string, tokens int64, op models.UsageOperation) (string, error) {
	if userID == "" {
		return "", fault.Validation("userId must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sub, ok := s.subscriptions[userID]
	if !ok {
		sub = s.provisionLocked(userID, now)
	}

	// New billing period: reset counters before applying the increment.
	if bucket(now) != bucket(sub.LastBillingDate) {
		log.Info().
			Str("user", userID).
			Int64("closed_usage", sub.MonthlyUsage).
			Float64("closed_overage", sub.OverageCharges).
			Msg("Billing period rolled over")
		sub.MonthlyUsage = 0
		sub.OverageCharges = 0
		sub.LastBillingDate = now
	}

	sub.MonthlyUsage++
	if over := sub.MonthlyUsage - sub.MonthlyAllowance; over > 0 {
		// Recomputed from scratch each call; derived from MonthlyUsage,
		// so replacing is self-consistent within a period.
		sub.OverageCharges = float64(over) * overageRate
	}
	sub.LastUpdated = now

	record := models.UsageRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		AgentID:   agentID,
		Operation: op,
		Tokens:    tokens,
		Cost:      0.0, // cost is carried by OverageCharges, not per record
		Timestamp: now,
	}
	s.usageLog = append(s.usageLog, record)

	s.requestSave()
	return record.ID, nil
}

// provisionLocked creates a default Free subscription. Caller holds s.mu.
func (s *Service) provisionLocked(userID string, now time.Time) *models.UserSubscription {
	limits := models.LimitsFor(models.TierFree)
	sub := &models.UserSubscription{
		UserID:                userID,
		CurrentTier:           models.TierFree,
		MonthlyAllowance:      limits.MonthlyAllowance,
		MonthlyCost:           limits.MonthlyCost,
		SubscriptionStartDate: now,
		LastBillingDate:       now,
		LastUpdated:           now,
	}
	s.subscriptions[userID] = sub
	log.Info().Str("user", userID).Msg("Provisioned default Free subscription")
	return sub
}

// GetUserSubscription returns a copy of the user's subscription,
// provisioning a Free one if none exists.
func (s *Service) GetUserSubscription(userID string) (*models.UserSubscription, error) {
	if userID == "" {
		return nil, fault.Validation("userId must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		sub = s.provisionLocked(userID, s.now())
		s.requestSave()
	}
	copy := *sub
	return &copy, nil
}

// GetUsageHistory returns the user's most recent limit records in call
// order (oldest of the window first). limit <= 0 returns all records.
func (s *Service) GetUsageHistory(userID string, limit int) []models.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.UsageRecord
	for _, r := range s.usageLog {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// UpdateSubscriptionTier moves the user to a new tier, recomputing
// allowance and cost. Monthly usage is deliberately not reset.
func (s *Service) UpdateSubscriptionTier(userID string, tier models.SubscriptionTier) error {
	if !models.ValidTier(tier) {
		return fault.Validation(fmt.Sprintf("invalid subscription tier %q", tier))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		sub = s.provisionLocked(userID, s.now())
	}

	limits := models.LimitsFor(tier)
	sub.CurrentTier = tier
	sub.MonthlyAllowance = limits.MonthlyAllowance
	sub.MonthlyCost = limits.MonthlyCost
	sub.LastUpdated = s.now()

	log.Info().
		Str("user", userID).
		Str("tier", string(tier)).
		Int64("allowance", limits.MonthlyAllowance).
		Msg("Subscription tier updated")

	s.requestSave()
	return nil
}

// usageLogKey holds the append-only usage log inside the billing
// snapshot, next to the per-user subscription entries. The underscore
// keeps it out of the user-ID namespace.
const usageLogKey = "_usage_log"

// Name implements persist.Component.
func (s *Service) Name() string { return "billing" }

// Snapshot implements persist.Component. Subscriptions are stored one
// entry per user; the usage log rides along under a reserved key.
func (s *Service) Snapshot() ([]persist.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := persist.MarshalEntries(s.subscriptions)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s.usageLog)
	if err != nil {
		return nil, fmt.Errorf("marshal usage log: %w", err)
	}
	return append(entries, persist.Entry{Key: usageLogKey, Value: raw}), nil
}

// Restore implements persist.Component.
func (s *Service) Restore(entries []persist.Entry) error {
	subs := make(map[string]*models.UserSubscription, len(entries))
	var usageLog []models.UsageRecord

	for _, e := range entries {
		if e.Key == usageLogKey {
			if err := json.Unmarshal(e.Value, &usageLog); err != nil {
				return fmt.Errorf("unmarshal usage log: %w", err)
			}
			continue
		}
		var sub models.UserSubscription
		if err := json.Unmarshal(e.Value, &sub); err != nil {
			return fmt.Errorf("unmarshal subscription %q: %w", e.Key, err)
		}
		subs[e.Key] = &sub
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = subs
	s.usageLog = usageLog
	return nil
}
