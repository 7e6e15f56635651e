package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, capacity int) *MemoryTracker {
	t.Helper()
	m, err := NewMemoryTracker(DefaultLimits(), capacity)
	require.NoError(t, err)
	return m
}

func TestEvaluateQuotaThenCooldown(t *testing.T) {
	lim := DefaultLimits()
	var st State
	var dec Decision
	for i := 0; i < lim.MaxRequests; i++ {
		st, dec = Evaluate(st, t0.Add(time.Duration(i)*time.Second), lim)
		require.True(t, dec.Allowed, "request %d", i)
	}
	assert.Equal(t, lim.MaxRequests, st.Count)

	now := t0.Add(10 * time.Second)
	st, dec = Evaluate(st, now, lim)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ReasonLimitExceeded, dec.Reason)
	assert.Equal(t, now.Add(lim.Cooldown), st.CooldownUntil)
	assert.Equal(t, 5, dec.WaitMinutes())

	// still inside cooldown, even after the window lapsed
	later := now.Add(2*time.Minute + 30*time.Second)
	_, dec = Evaluate(st, later, lim)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ReasonCooldown, dec.Reason)
	assert.Equal(t, st.CooldownUntil.Sub(later), dec.RetryAfter)
	assert.Equal(t, 3, dec.WaitMinutes())
}

func TestEvaluateWindowReset(t *testing.T) {
	lim := DefaultLimits()
	st := State{Count: lim.MaxRequests, WindowStart: t0}

	// exactly at the window boundary nothing resets
	_, dec := Evaluate(st, t0.Add(lim.Window), lim)
	assert.False(t, dec.Allowed)

	st2, dec := Evaluate(st, t0.Add(lim.Window+time.Millisecond), lim)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 1, st2.Count)
	assert.Equal(t, t0.Add(lim.Window+time.Millisecond), st2.WindowStart)
}

func TestEvaluateAfterCooldownExpires(t *testing.T) {
	lim := DefaultLimits()
	st := State{Count: lim.MaxRequests, WindowStart: t0, CooldownUntil: t0.Add(lim.Cooldown)}
	st, dec := Evaluate(st, t0.Add(lim.Cooldown+time.Second), lim)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 1, st.Count)
}

func TestDecisionWaitMinutes(t *testing.T) {
	assert.Equal(t, 0, Decision{}.WaitMinutes())
	assert.Equal(t, 1, Decision{RetryAfter: time.Second}.WaitMinutes())
	assert.Equal(t, 1, Decision{RetryAfter: time.Minute}.WaitMinutes())
	assert.Equal(t, 2, Decision{RetryAfter: time.Minute + time.Millisecond}.WaitMinutes())
}

func TestMemoryTrackerIdentitiesAreIndependent(t *testing.T) {
	m := newTracker(t, 0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		dec, err := m.CheckAndConsume(ctx, "10.0.0.1", t0)
		require.NoError(t, err)
		require.True(t, dec.Allowed)
	}
	dec, _ := m.CheckAndConsume(ctx, "10.0.0.1", t0)
	assert.False(t, dec.Allowed)

	dec, _ = m.CheckAndConsume(ctx, "10.0.0.2", t0)
	assert.True(t, dec.Allowed)

	st, ok := m.Peek("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Minute), st.CooldownUntil)
}

func TestMemoryTrackerConcurrentQuota(t *testing.T) {
	m := newTracker(t, 0)
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := m.CheckAndConsume(context.Background(), "shared", t0)
			if err == nil && dec.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 5, allowed.Load())
}

func TestMemoryTrackerCapacityEvicts(t *testing.T) {
	m := newTracker(t, 2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := m.CheckAndConsume(ctx, id, t0)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.Len())
	_, ok := m.Peek("a")
	assert.False(t, ok)
}

func TestMemoryTrackerSweep(t *testing.T) {
	m := newTracker(t, 0)
	ctx := context.Background()
	_, _ = m.CheckAndConsume(ctx, "idle", t0)
	for i := 0; i < 6; i++ {
		_, _ = m.CheckAndConsume(ctx, "cooling", t0)
	}
	_, _ = m.CheckAndConsume(ctx, "fresh", t0.Add(2*time.Minute))

	removed := m.Sweep(t0.Add(2 * time.Minute))
	assert.Equal(t, 1, removed)
	_, ok := m.Peek("idle")
	assert.False(t, ok)
	_, ok = m.Peek("cooling")
	assert.True(t, ok, "cooldown still pending")
	_, ok = m.Peek("fresh")
	assert.True(t, ok)

	assert.Equal(t, 2, m.Sweep(t0.Add(10*time.Minute)))
	assert.Equal(t, 0, m.Len())
}

func TestStartSweeper(t *testing.T) {
	m := newTracker(t, 0)
	c, err := StartSweeper(m, "@every 1h", nil)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	<-c.Stop().Done()

	_, err = StartSweeper(m, "not a spec", nil)
	assert.Error(t, err)
}
