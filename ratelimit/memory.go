package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds how many identities the in-memory tracker remembers.
const DefaultCapacity = 10_000

// MemoryTracker keeps RateState in a bounded LRU cache. The least recently seen
// identity is evicted once capacity is reached, which at worst hands it a fresh window.
type MemoryTracker struct {
	lim Limits

	mu     sync.Mutex
	states *lru.Cache[string, State]
}

// NewMemoryTracker creates a tracker; capacity <= 0 uses DefaultCapacity.
func NewMemoryTracker(lim Limits, capacity int) (*MemoryTracker, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[string, State](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryTracker{lim: lim.withDefaults(), states: cache}, nil
}

// CheckAndConsume never returns an error; the signature matches Tracker.
func (m *MemoryTracker) CheckAndConsume(_ context.Context, identity string, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, _ := m.states.Get(identity)
	next, dec := Evaluate(st, now, m.lim)
	m.states.Add(identity, next)
	return dec, nil
}

// Peek returns the stored state without touching recency.
func (m *MemoryTracker) Peek(identity string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states.Peek(identity)
}

// Len reports the number of tracked identities.
func (m *MemoryTracker) Len() int {
	return m.states.Len()
}

// Sweep removes identities whose window and cooldown have both expired and
// returns how many were dropped.
func (m *MemoryTracker) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, id := range m.states.Keys() {
		st, ok := m.states.Peek(id)
		if ok && expired(st, now, m.lim) {
			m.states.Remove(id)
			removed++
		}
	}
	return removed
}
