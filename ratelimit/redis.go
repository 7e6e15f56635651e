package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "thesis:rate:"

// checkAndConsumeScript mirrors Evaluate on a Redis hash so that the
// read-modify-write is atomic across processes.
// KEYS[1] state key; ARGV: now_ms, window_ms, max, cooldown_ms, ttl_ms.
// Returns {allowed, reason(0 none,1 cooldown,2 exceeded), retry_after_ms}.
var checkAndConsumeScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local cooldown = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local count = tonumber(redis.call('HGET', key, 'count') or '0')
local start = tonumber(redis.call('HGET', key, 'window_start') or ARGV[1])
local cooldown_until = tonumber(redis.call('HGET', key, 'cooldown_until') or '0')

if now - start > window then
  count = 0
  start = now
end

if cooldown_until > 0 and now < cooldown_until then
  return {0, 1, cooldown_until - now}
end

if count >= max then
  cooldown_until = now + cooldown
  redis.call('HSET', key, 'count', count, 'window_start', start, 'cooldown_until', cooldown_until)
  redis.call('PEXPIRE', key, ttl)
  return {0, 2, cooldown}
end

count = count + 1
redis.call('HSET', key, 'count', count, 'window_start', start, 'cooldown_until', cooldown_until)
redis.call('PEXPIRE', key, ttl)
return {1, 0, 0}
`)

// RedisTracker shares rate state between processes. Keys expire after
// Window+Cooldown of inactivity, so memory stays bounded without a sweeper.
type RedisTracker struct {
	rdb    goredis.Scripter
	lim    Limits
	prefix string
}

func NewRedisTracker(rdb goredis.Scripter, lim Limits) (*RedisTracker, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisTracker{rdb: rdb, lim: lim.withDefaults(), prefix: defaultKeyPrefix}, nil
}

// DialRedis 连接并 ping，失败时关闭连接。
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (r *RedisTracker) CheckAndConsume(ctx context.Context, identity string, now time.Time) (Decision, error) {
	ttl := r.lim.Window + r.lim.Cooldown
	res, err := checkAndConsumeScript.Run(ctx, r.rdb, []string{r.prefix + identity},
		now.UnixMilli(),
		r.lim.Window.Milliseconds(),
		r.lim.MaxRequests,
		r.lim.Cooldown.Milliseconds(),
		ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	dec := Decision{Allowed: res[0] == 1, RetryAfter: time.Duration(res[2]) * time.Millisecond}
	switch res[1] {
	case 1:
		dec.Reason = ReasonCooldown
	case 2:
		dec.Reason = ReasonLimitExceeded
	}
	return dec, nil
}
