// Package ratelimit tracks request counts and cooldowns per caller identity.
package ratelimit

import (
	"context"
	"time"
)

// Reason explains a denied request.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonCooldown      Reason = "in cooldown"
	ReasonLimitExceeded Reason = "rate limit exceeded"
)

// Limits: 每个 identity 的配额。
type Limits struct {
	MaxRequests int
	Window      time.Duration
	Cooldown    time.Duration
}

// DefaultLimits: 5 requests per minute, five minute cooldown once exceeded.
func DefaultLimits() Limits {
	return Limits{MaxRequests: 5, Window: time.Minute, Cooldown: 5 * time.Minute}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxRequests <= 0 {
		l.MaxRequests = d.MaxRequests
	}
	if l.Window <= 0 {
		l.Window = d.Window
	}
	if l.Cooldown <= 0 {
		l.Cooldown = d.Cooldown
	}
	return l
}

// State is the per-identity record. A zero CooldownUntil means no cooldown was ever set.
type State struct {
	Count         int
	WindowStart   time.Time
	CooldownUntil time.Time
}

// Decision is the outcome of one CheckAndConsume call.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
}

// WaitMinutes rounds RetryAfter up to whole minutes, as shown to end users.
func (d Decision) WaitMinutes() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Minute - 1) / time.Minute)
}

// Tracker is the capability every limiter backend offers: an atomic
// check-and-increment per identity.
type Tracker interface {
	CheckAndConsume(ctx context.Context, identity string, now time.Time) (Decision, error)
}

// Evaluate 是纯状态机：给定旧状态和当前时间，返回新状态与判定结果。
// A zero-valued st is treated as a first request (window starts at now).
func Evaluate(st State, now time.Time, lim Limits) (State, Decision) {
	lim = lim.withDefaults()
	if st.WindowStart.IsZero() {
		st.WindowStart = now
	}
	if now.Sub(st.WindowStart) > lim.Window {
		st.Count = 0
		st.WindowStart = now
	}

	if !st.CooldownUntil.IsZero() && now.Before(st.CooldownUntil) {
		return st, Decision{Reason: ReasonCooldown, RetryAfter: st.CooldownUntil.Sub(now)}
	}

	if st.Count >= lim.MaxRequests {
		st.CooldownUntil = now.Add(lim.Cooldown)
		return st, Decision{Reason: ReasonLimitExceeded, RetryAfter: lim.Cooldown}
	}

	st.Count++
	return st, Decision{Allowed: true}
}

// expired reports whether st carries no information any more: the window has
// lapsed and no cooldown is pending.
func expired(st State, now time.Time, lim Limits) bool {
	lim = lim.withDefaults()
	if now.Sub(st.WindowStart) <= lim.Window {
		return false
	}
	return st.CooldownUntil.IsZero() || !now.Before(st.CooldownUntil)
}
