package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type step struct {
	status     int
	retryAfter string
	err        error
}

// scripted replays steps in order and records every request body it saw.
type scripted struct {
	steps  []step
	calls  atomic.Int32
	bodies []string
}

func (s *scripted) RoundTrip(r *http.Request) (*http.Response, error) {
	i := int(s.calls.Add(1)) - 1
	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		s.bodies = append(s.bodies, string(b))
	}
	st := s.steps[i]
	if st.err != nil {
		return nil, st.err
	}
	h := http.Header{}
	if st.retryAfter != "" {
		h.Set("Retry-After", st.retryAfter)
	}
	return &http.Response{
		StatusCode: st.status,
		Status:     http.StatusText(st.status),
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
		Request:    r,
	}, nil
}

func newTestClient(rt http.RoundTripper, cfg Config) (*Client, *[]time.Duration) {
	c := New(rt, cfg, nil)
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return c, &delays
}

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://upstream.test/chat/completions", strings.NewReader(`{"model":"m"}`))
	require.NoError(t, err)
	return req
}

func TestSendHonorsRetryAfterThenBacksOff(t *testing.T) {
	rt := &scripted{steps: []step{
		{status: 429, retryAfter: "5"},
		{status: 429},
		{status: 429},
		{status: 200},
	}}
	c, delays := newTestClient(rt, Config{MaxAttempts: 4, BaseDelay: 2 * time.Second})

	resp, err := c.Send(context.Background(), newRequest(t))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 4, rt.calls.Load(), "three retries after the first attempt")
	assert.Equal(t, []time.Duration{5 * time.Second, 4 * time.Second, 8 * time.Second}, *delays)
	for _, b := range rt.bodies {
		assert.Equal(t, `{"model":"m"}`, b, "body replayed on every attempt")
	}
}

func TestSendFailsImmediatelyOnServerError(t *testing.T) {
	rt := &scripted{steps: []step{{status: 500}, {status: 200}}}
	c, delays := newTestClient(rt, Config{})

	_, err := c.Send(context.Background(), newRequest(t))
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 500, terr.StatusCode)
	assert.Equal(t, 1, terr.Attempts)
	assert.EqualValues(t, 1, rt.calls.Load())
	assert.Empty(t, *delays)
}

func TestSendNetworkFaultsExhaustAttempts(t *testing.T) {
	boom := errors.New("connection refused")
	rt := &scripted{steps: []step{{err: boom}, {err: boom}, {err: boom}}}
	c, delays := newTestClient(rt, Config{})

	_, err := c.Send(context.Background(), newRequest(t))
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, terr.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays)
}

func TestSendNetworkFaultThenSuccess(t *testing.T) {
	rt := &scripted{steps: []step{{err: errors.New("reset")}, {status: 201}}}
	c, delays := newTestClient(rt, Config{})

	resp, err := c.Send(context.Background(), newRequest(t))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, []time.Duration{2 * time.Second}, *delays)
}

func TestSendRateLimitedOnEveryAttempt(t *testing.T) {
	rt := &scripted{steps: []step{{status: 429}, {status: 429}, {status: 429}}}
	c, delays := newTestClient(rt, Config{})

	_, err := c.Send(context.Background(), newRequest(t))
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 429, terr.StatusCode)
	assert.Len(t, *delays, 2)
}

func TestSendStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	rt := &scripted{steps: []step{{status: 429}, {status: 200}}}
	c := New(rt, Config{BaseDelay: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Send(ctx, newRequest(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.EqualValues(t, 1, rt.calls.Load())
}

func TestSendCancelledBeforeFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	c := New(roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("unreachable")
	}), Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Send(ctx, newRequest(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestJitterStaysWithinFactor(t *testing.T) {
	rt := &scripted{steps: []step{{status: 429}, {status: 429}, {status: 200}}}
	c, delays := newTestClient(rt, Config{Jitter: 0.5, BaseDelay: time.Second})

	resp, err := c.Send(context.Background(), newRequest(t))
	require.NoError(t, err)
	resp.Body.Close()
	require.Len(t, *delays, 2)
	assert.InDelta(t, float64(time.Second), float64((*delays)[0]), float64(time.Second)/2+1)
	assert.InDelta(t, float64(2*time.Second), float64((*delays)[1]), float64(time.Second)+1)
}

func TestRoundTripThroughHTTPClient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	hc := &http.Client{Transport: New(nil, Config{}, nil)}
	resp, err := hc.Post(srv.URL, "application/json", strings.NewReader(`{"x":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"x":1}`, string(body))
	assert.EqualValues(t, 2, hits.Load())
}

func TestRetryAfterParsing(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	d, ok := retryAfter("7", now)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	d, ok = retryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	_, ok = retryAfter("", now)
	assert.False(t, ok)
	_, ok = retryAfter("soon", now)
	assert.False(t, ok)
	_, ok = retryAfter("-3", now)
	assert.False(t, ok)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "upstream request failed: 500 Internal Server Error",
		(&Error{StatusCode: 500, Status: "500 Internal Server Error"}).Error())
	assert.Contains(t, (&Error{Attempts: 3, Err: errors.New("dial")}).Error(), "after 3 attempts: dial")
}
