// Package settings keeps the process wide trade settings as immutable snapshots.
// Readers always get a value copy; writers swap in a whole new snapshot, so a
// reader never observes a half applied update.
package settings

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Cogwheel-Validator/spectra-trade/trader/config"
)

// Store holds the current settings snapshot
type Store struct {
	current atomic.Pointer[config.TradeSettings]
	// serializes writers so Update callbacks see the latest snapshot
	mu sync.Mutex
}

// NewStore creates a store seeded with the given settings
func NewStore(initial config.TradeSettings) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial settings: %w", err)
	}
	s := &Store{}
	snapshot := initial
	s.current.Store(&snapshot)
	return s, nil
}

// Snapshot returns a copy of the current settings
func (s *Store) Snapshot() config.TradeSettings {
	return *s.current.Load()
}

// Update derives a new snapshot from the current one and publishes it.
// The snapshot passed to fn is a copy; a failed validation leaves the store untouched.
func (s *Store) Update(fn func(config.TradeSettings) config.TradeSettings) (config.TradeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(*s.current.Load())
	if err := next.Validate(); err != nil {
		return s.Snapshot(), fmt.Errorf("invalid settings: %w", err)
	}
	s.current.Store(&next)
	return next, nil
}
