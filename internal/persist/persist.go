// Package persist provides the snapshot/restore lifecycle for the core
// services. Each service holds its maps as fields and registers itself as a
// Component; the Manager serializes every component's state to a flat list
// of (key, value) entries in a single JSON file immediately before shutdown
// and rehydrates it on the next startup. Writes during operation are
// debounced and atomic (tmp file + rename).
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Saver is the subset of Manager the components use to request writes
// after a mutation. A nil Saver disables change notification.
type Saver interface {
	RequestSave()
}

// Entry is one (key, value) pair of a component's snapshot.
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Component is a service whose state survives restarts.
// Snapshot and Restore must round-trip: restoring a snapshot into a fresh
// component reproduces an identical map, compared as a set of pairs.
type Component interface {
	// Name identifies the component's section in the snapshot file.
	Name() string

	// Snapshot returns the component's state as a flat entry list.
	Snapshot() ([]Entry, error)

	// Restore rehydrates the component from a previously taken snapshot.
	Restore(entries []Entry) error
}

// Manager owns the snapshot file and the registered components.
type Manager struct {
	path       string // empty = persistence disabled
	components []Component

	saveMu sync.Mutex    // guards file writes
	saveCh chan struct{} // debounce channel
	doneCh chan struct{}
	once   sync.Once
}

// NewManager creates a lifecycle manager writing to dir/state.json.
// An empty dir disables persistence (tests, ephemeral deployments).
func NewManager(dir string) *Manager {
	m := &Manager{
		saveCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
	if dir == "" {
		return m
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Cannot create data dir, persistence disabled")
		return m
	}
	m.path = filepath.Join(dir, "state.json")
	go m.saveLoop()
	return m
}

// Register adds a component. Must be called before Load.
func (m *Manager) Register(c Component) {
	m.components = append(m.components, c)
}

// Load reads the snapshot file (if any) and restores every registered
// component from its section. Missing sections leave components empty.
func (m *Manager) Load() error {
	if m.path == "" {
		return nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.path).Msg("No snapshot file found, starting fresh")
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}

	var sections map[string][]Entry
	if err := json.Unmarshal(data, &sections); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", m.path, err)
	}

	for _, c := range m.components {
		entries, ok := sections[c.Name()]
		if !ok {
			continue
		}
		if err := c.Restore(entries); err != nil {
			return fmt.Errorf("restore %s: %w", c.Name(), err)
		}
		log.Info().Str("component", c.Name()).Int("entries", len(entries)).Msg("Snapshot section restored")
	}
	return nil
}

// RequestSave signals the background goroutine to persist state.
// Non-blocking: coalesces rapid writes into one disk flush.
func (m *Manager) RequestSave() {
	if m.path == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *Manager) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			if err := m.Flush(); err != nil {
				log.Error().Err(err).Msg("Failed to write snapshot")
			}
		}
	}
}

// Flush writes the full snapshot to disk now.
func (m *Manager) Flush() error {
	if m.path == "" {
		return nil
	}

	sections := make(map[string][]Entry, len(m.components))
	for _, c := range m.components {
		entries, err := c.Snapshot()
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", c.Name(), err)
		}
		sections[c.Name()] = entries
	}

	data, err := json.MarshalIndent(sections, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Close stops the save loop and forces a final snapshot write so no
// in-flight state is lost. Safe to call multiple times.
func (m *Manager) Close() error {
	var err error
	m.once.Do(func() {
		close(m.doneCh)
		if m.path != "" {
			log.Info().Msg("Flushing final snapshot before shutdown...")
			err = m.Flush()
		}
	})
	return err
}

// MarshalEntries converts a string-keyed map into a sorted-agnostic flat
// entry list. Shared by the components' Snapshot implementations.
func MarshalEntries[V any](src map[string]V) ([]Entry, error) {
	entries := make([]Entry, 0, len(src))
	for k, v := range src {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal entry %q: %w", k, err)
		}
		entries = append(entries, Entry{Key: k, Value: raw})
	}
	return entries, nil
}

// UnmarshalEntries rebuilds a string-keyed map from a flat entry list.
func UnmarshalEntries[V any](entries []Entry) (map[string]V, error) {
	dst := make(map[string]V, len(entries))
	for _, e := range entries {
		var v V
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("unmarshal entry %q: %w", e.Key, err)
		}
		dst[e.Key] = v
	}
	return dst, nil
}
