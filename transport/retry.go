// Package transport wraps upstream HTTP calls with bounded, rate-limit-aware retries.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"thesis_generator/logger"
)

// Config controls the retry schedule. Zero values take the defaults.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the randomization factor of each backoff delay, 0 keeps the
	// schedule deterministic (BaseDelay * 2^attempt).
	Jitter float64
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	return c
}

// Client sends one logical request with bounded retries. It also satisfies
// http.RoundTripper so SDK clients can use it as their transport.
type Client struct {
	next  http.RoundTripper
	cfg   Config
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// New wraps next (http.DefaultTransport when nil).
func New(next http.RoundTripper, cfg Config, log *zap.Logger) *Client {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Client{
		next:  next,
		cfg:   cfg.withDefaults(),
		log:   logger.OrNop(log).With(zap.String("component", "transport")),
		sleep: sleepContext,
	}
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.Send(req.Context(), req)
}

// Send performs req until it succeeds, fails permanently or runs out of attempts.
//   - 2xx: returned as is.
//   - 429: waits Retry-After (or the backoff delay) and tries again.
//   - any other status: *Error immediately, no retry.
//   - network fault: backoff and retry; the last fault is wrapped in *Error.
func (c *Client) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	schedule := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.BaseDelay,
		RandomizationFactor: c.cfg.Jitter,
		Multiplier:          2,
		MaxInterval:         c.cfg.MaxDelay,
	}
	schedule.Reset()

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Attempts: attempt, Err: err}
		}

		attemptReq := req.Clone(ctx)
		if getBody != nil {
			if attemptReq.Body, err = getBody(); err != nil {
				return nil, err
			}
		}

		// 每次尝试都推进退避序列，保证第 n 次的默认延迟是 base*2^n。
		delay := schedule.NextBackOff()
		last := attempt == c.cfg.MaxAttempts-1

		resp, err := c.next.RoundTrip(attemptReq)
		if err != nil {
			lastErr = err
			if last {
				break
			}
			c.log.Warn("request failed, retrying",
				zap.Error(err), zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1), zap.Int("max_attempts", c.cfg.MaxAttempts))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &Error{Attempts: attempt + 1, Err: err}
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			body := readSnippet(resp.Body, 512)
			_ = resp.Body.Close()
			return nil, &Error{Attempts: attempt + 1, StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
		}

		if hint, ok := retryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			delay = hint
		}
		drain(resp.Body)
		if last {
			return nil, &Error{Attempts: attempt + 1, StatusCode: resp.StatusCode, Status: resp.Status, Err: ErrRetriesExhausted}
		}
		c.log.Warn("rate limited by upstream, retrying",
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt+1), zap.Int("max_attempts", c.cfg.MaxAttempts))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &Error{Attempts: attempt + 1, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
		}
	}
	return nil, &Error{Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

// replayableBody returns a body factory so each attempt sends the full payload.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil }, nil
}

// retryAfter parses a Retry-After header in seconds or as an HTTP date.
func retryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readSnippet(r io.Reader, n int64) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, n))
	return string(b)
}

func drain(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	_ = rc.Close()
}
