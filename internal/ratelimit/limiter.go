// Package ratelimit implements the sliding-window limiter that shields the
// external order-lookup backend. Three dimensions (caller IP, user key, order
// id) share one window, each with its own cap, and all three are checked and
// written atomically in a single Redis script so concurrent requests cannot
// slip past a boundary.
//
// The limiter fails open: when Redis is unreachable the lookup proceeds and
// the decision is marked degraded, because refusing legitimate order lookups
// is worse than briefly losing abuse protection.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lumakode/go-chatbot-backend/internal/config"
	"github.com/lumakode/go-chatbot-backend/internal/metrics"
)

// Dimension names a limited key space, in check priority order.
type Dimension string

const (
	DimensionIP    Dimension = "ip"
	DimensionUser  Dimension = "user"
	DimensionOrder Dimension = "order"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Degraded  bool      // nothing was enforced: Redis unavailable, unconfigured, or disabled
	BlockedBy Dimension // set only when Allowed is false
}

// slidingWindow evicts expired members from each dimension, rejects when any
// cap is met, and records the event in all three dimensions only when every
// check passes. Returns 0 for allowed, or the 1-based index of the first
// dimension over its cap.
const slidingWindow = `
local window = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local member = ARGV[3]
local cutoff = now - window
for i = 1, 3 do
  redis.call('ZREMRANGEBYSCORE', KEYS[i], 0, cutoff)
  if redis.call('ZCARD', KEYS[i]) >= tonumber(ARGV[3 + i]) then
    return i
  end
end
for i = 1, 3 do
  redis.call('ZADD', KEYS[i], now, member)
  redis.call('PEXPIRE', KEYS[i], window)
end
return 0
`

var dimensions = [3]Dimension{DimensionIP, DimensionUser, DimensionOrder}

// Limiter evaluates order-lookup attempts against the shared window.
type Limiter struct {
	rdb    redis.Scripter
	script *redis.Script
	cfg    config.RateLimitConfig
	log    zerolog.Logger

	warnOnce sync.Once
	now      func() time.Time
}

// New builds a Limiter from configuration. A disabled config or an empty
// Redis address yields a limiter that always allows.
func New(cfg config.RateLimitConfig, log zerolog.Logger) *Limiter {
	l := &Limiter{
		script: redis.NewScript(slidingWindow),
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
	if cfg.Enabled && cfg.RedisAddr != "" {
		l.rdb = redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			DB:          cfg.RedisDB,
			DialTimeout: 5 * time.Second,
		})
	}
	return l
}

// NewWithScripter builds a Limiter over an existing Redis scripting client.
func NewWithScripter(rdb redis.Scripter, cfg config.RateLimitConfig, log zerolog.Logger) *Limiter {
	return &Limiter{
		rdb:    rdb,
		script: redis.NewScript(slidingWindow),
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Allow checks every dimension and records the attempt atomically. The
// eventID distinguishes concurrent attempts landing on the same millisecond.
func (l *Limiter) Allow(ctx context.Context, ip, userKey, orderID, eventID string) Decision {
	if l.rdb == nil || !l.cfg.Enabled {
		if l.cfg.Enabled {
			l.warnOnce.Do(func() {
				l.log.Warn().Msg("rate limiter enabled without a redis address, allowing lookups without limits")
			})
		}
		metrics.RateLimitDegraded()
		return Decision{Allowed: true, Degraded: true}
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	keys := []string{
		"orderrl:ip:" + hashKey(ip),
		"orderrl:user:" + hashKey(userKey),
		"orderrl:order:" + hashKey(orderID),
	}
	nowMs := l.now().UnixMilli()
	res, err := l.script.Run(ctx, l.rdb, keys,
		l.cfg.Window.Milliseconds(), nowMs, eventID,
		l.cfg.MaxPerIP, l.cfg.MaxPerUsr, l.cfg.MaxPerOrd,
	).Int()
	if err != nil {
		l.warnOnce.Do(func() {
			l.log.Warn().Err(err).Msg("rate limiter degraded, allowing lookups without limits")
		})
		metrics.RateLimitDegraded()
		return Decision{Allowed: true, Degraded: true}
	}
	if res >= 1 && res <= len(dimensions) {
		dim := dimensions[res-1]
		metrics.RateLimitBlocked(string(dim))
		return Decision{Allowed: false, BlockedBy: dim}
	}
	return Decision{Allowed: true}
}

// hashKey keeps raw IPs, user identifiers and order ids out of Redis.
func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
