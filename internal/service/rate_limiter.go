package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	bfredis "github.com/Jlypx/BetterForward-enhance/internal/redis"
)

// rateLimitScript is a Lua script for sliding window rate limiting
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = now + window
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('PEXPIRE', key, window + 10000)
return {1, now + window}
`)

// FloodLimiter caps how many messages one external chat may relay per minute.
type FloodLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewFloodLimiter(client *redis.Client, perMinute int) *FloodLimiter {
	return &FloodLimiter{client: client, limit: perMinute, window: time.Minute}
}

// Allow fails open: when Redis is unreachable the message is relayed.
func (l *FloodLimiter) Allow(ctx context.Context, chatID int64) bool {
	allowed, _ := l.CheckLimit(ctx, bfredis.FloodKey(chatID), l.limit, l.window)
	return allowed
}

// CheckLimit checks if a request is allowed under the rate limit
func (l *FloodLimiter) CheckLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) (allowed bool, resetAt time.Time) {
	now := time.Now().UnixMilli()

	result, err := rateLimitScript.Run(
		ctx,
		l.client,
		[]string{key},
		now,
		window.Milliseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("flood limit check failed, allowing message")
		return true, time.Now().Add(window)
	}

	if len(result) != 2 {
		log.Warn().Str("key", key).Msg("unexpected flood limit result, allowing message")
		return true, time.Now().Add(window)
	}

	return result[0] == 1, time.UnixMilli(result[1])
}
