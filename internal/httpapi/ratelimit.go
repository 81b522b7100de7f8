package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// defaultRedisTimeout bounds every Redis rate-limit operation so a slow
// Redis cannot stall request handling.
const defaultRedisTimeout = 5 * time.Second

// KeyLimiter throttles translation requests per API key. A local token
// bucket always applies; when a Redis client is configured, a fixed-window
// counter shared across gateway instances applies on top. Redis failures
// degrade to local-only limiting rather than rejecting traffic.
type KeyLimiter struct {
	perSecond float64
	burst     int
	logger    *slog.Logger

	mu      sync.Mutex
	buckets map[string]*rate.Limiter

	redis        redis.Cmdable
	redisTimeout time.Duration
}

// NewKeyLimiter builds a limiter. redisClient may be nil for local-only
// operation.
func NewKeyLimiter(perSecond float64, burst int, redisClient redis.Cmdable, logger *slog.Logger) *KeyLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyLimiter{
		perSecond:    perSecond,
		burst:        burst,
		logger:       logger,
		buckets:      make(map[string]*rate.Limiter),
		redis:        redisClient,
		redisTimeout: defaultRedisTimeout,
	}
}

// Allow reports whether a request under the given API key may proceed.
func (l *KeyLimiter) Allow(ctx context.Context, apiKey string) bool {
	if !l.local(apiKey).Allow() {
		return false
	}
	if l.redis == nil {
		return true
	}
	return l.global(ctx, apiKey)
}

func (l *KeyLimiter) local(apiKey string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.buckets[apiKey]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.perSecond), l.burst)
		l.buckets[apiKey] = lim
	}
	return lim
}

// global applies a one-second fixed window in Redis so the limit holds
// across gateway replicas. Any Redis error degrades to allowing the request.
func (l *KeyLimiter) global(ctx context.Context, apiKey string) bool {
	ctx, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	window := time.Now().Unix()
	key := fmt.Sprintf("ratelimit:%s:%d", apiKey, window)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("redis rate limit unavailable, degrading to local", "error", err)
		return true
	}
	if count == 1 {
		l.redis.Expire(ctx, key, 2*time.Second)
	}
	return float64(count) <= l.perSecond+float64(l.burst)
}
