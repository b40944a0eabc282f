package quota

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript runs one token bucket step atomically.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = current unix time in seconds, microsecond precision
// Returns {allowed, wait_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
else
    wait_ms = math.ceil((1 - tokens) / rate * 1000)
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(last_refill))
redis.call("EXPIRE", key, math.ceil(capacity / rate) + 1)

return {allowed, wait_ms}
`)

// RedisConfig holds connection settings for RedisLimiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisLimiter is a token bucket limiter whose state lives in Redis, so
// every server instance shares one budget per owner.
type RedisLimiter struct {
	client   *redis.Client
	capacity int
	rate     float64
	prefix   string
}

// NewRedisLimiter connects to Redis and returns a limiter allowing rpm
// requests per minute per key.
func NewRedisLimiter(ctx context.Context, cfg RedisConfig, rpm int) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisLimiter{
		client:   client,
		capacity: rpm,
		rate:     float64(rpm) / 60.0,
		prefix:   "fragments:ratelimit:",
	}, nil
}

// Allow executes the token bucket script for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l.capacity <= 0 {
		return true, 0, nil
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, l.client, []string{l.prefix + key}, l.rate, l.capacity, now).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis limiter: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis limiter: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	wait := time.Duration(res[1]) * time.Millisecond
	return false, time.Duration(math.Max(float64(wait), float64(time.Millisecond))), nil
}

// Close closes the Redis client.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
