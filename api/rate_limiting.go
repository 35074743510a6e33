package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"foundry/config"
	"foundry/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	rateLimitKeyPrefix = "foundry:ratelimit:"
	limiterIdleTTL     = time.Hour
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per key. Without Redis each instance keeps a token bucket per key;
// with Redis all instances share a fixed window counter. Redis failures fall back to the local
// bucket.
type RateLimiter struct {
	limit  int
	window time.Duration
	burst  int

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	redis  *redis.Client
	logger *zap.SugaredLogger

	stopCh    chan struct{}
	cleanupWg sync.WaitGroup
	closeOnce sync.Once
}

// NewRateLimiter creates a limiter from configuration. A Redis client is created when
// cfg.RedisAddr is set; it is not contacted until the first request.
func NewRateLimiter(cfg config.RateLimitConfig, logger *zap.SugaredLogger) *RateLimiter {
	var client *redis.Client
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
	}
	return newRateLimiter(cfg.Requests, cfg.Window, cfg.Burst, client, logger)
}

func newRateLimiter(limit int, window time.Duration, burst int, client *redis.Client, logger *zap.SugaredLogger) *RateLimiter {
	if burst <= 0 {
		burst = limit
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	rl := &RateLimiter{
		limit:    limit,
		window:   window,
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		redis:    client,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	rl.cleanupWg.Add(1)
	go rl.cleanup()

	return rl
}

// Allow reports whether a request from key is within the limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	var allowed bool
	backend := "memory"
	if rl.redis != nil {
		backend = "redis"
		allowed = rl.allowRedis(ctx, key)
	} else {
		allowed = rl.allowMemory(key)
	}
	if !allowed {
		metrics.RateLimited.WithLabelValues(backend).Inc()
	}
	return allowed
}

func (rl *RateLimiter) allowMemory(key string) bool {
	rl.mu.Lock()
	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.limit)/rl.window.Seconds()), rl.burst),
		}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// allowRedis counts requests in a fixed window keyed by client and window start.
func (rl *RateLimiter) allowRedis(ctx context.Context, key string) bool {
	windowStart := time.Now().Truncate(rl.window).Unix()
	redisKey := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, key, windowStart)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warnf("Redis rate limit check failed, falling back to memory: %v", err)
		return rl.allowMemory(key)
	}
	return incr.Val() <= int64(rl.limit)
}

// cleanup periodically drops in-memory limiters that have been idle for an hour.
func (rl *RateLimiter) cleanup() {
	defer rl.cleanupWg.Done()
	ticker := time.NewTicker(limiterIdleTTL / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now().Add(-limiterIdleTTL))
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	evicted := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			evicted++
		}
	}
	return evicted
}

// Close stops the cleanup goroutine and closes the Redis client, if any.
func (rl *RateLimiter) Close() error {
	var err error
	rl.closeOnce.Do(func() {
		close(rl.stopCh)
		rl.cleanupWg.Wait()
		if rl.redis != nil {
			err = rl.redis.Close()
		}
	})
	return err
}

// writeRateLimitResponse writes a 429 Too Many Requests response with rate limit headers.
func (rl *RateLimiter) writeRateLimitResponse(w http.ResponseWriter) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rl.window).Unix(), 10))
	w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
	writeJSONError(w, http.StatusTooManyRequests, "too many requests")
}
