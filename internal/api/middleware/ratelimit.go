package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hugh/go-roster/internal/apperr"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, reset time.Time, err error)
	Limit() int
}

// MemoryLimiter is a per-process sliding window. Used when Redis is absent.
type MemoryLimiter struct {
	requests int
	window   time.Duration
	clients  map[string]*clientWindow
	mu       sync.Mutex
	now      func() time.Time
}

type clientWindow struct {
	timestamps []time.Time
}

func NewMemoryLimiter(requests int, windowSeconds int) *MemoryLimiter {
	requests, window := normalizeLimits(requests, windowSeconds)
	return &MemoryLimiter{
		requests: requests,
		window:   window,
		clients:  make(map[string]*clientWindow),
		now:      time.Now,
	}
}

func normalizeLimits(requests, windowSeconds int) (int, time.Duration) {
	if requests <= 0 {
		requests = 100
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	return requests, time.Duration(windowSeconds) * time.Second
}

func (rl *MemoryLimiter) Limit() int {
	return rl.requests
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, int, time.Time, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.window)

	client, ok := rl.clients[key]
	if !ok {
		client = &clientWindow{timestamps: make([]time.Time, 0, rl.requests)}
		rl.clients[key] = client
	}

	valid := client.timestamps[:0]
	for _, ts := range client.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	client.timestamps = valid

	if len(client.timestamps) >= rl.requests {
		return false, 0, client.timestamps[0].Add(rl.window), nil
	}

	client.timestamps = append(client.timestamps, now)
	rl.sweep(windowStart)
	return true, rl.requests - len(client.timestamps), now.Add(rl.window), nil
}

// sweep drops idle clients. Caller holds mu.
func (rl *MemoryLimiter) sweep(windowStart time.Time) {
	if len(rl.clients) < 1024 {
		return
	}
	for key, c := range rl.clients {
		if len(c.timestamps) == 0 || !c.timestamps[len(c.timestamps)-1].After(windowStart) {
			delete(rl.clients, key)
		}
	}
}

// RedisLimiter is a fixed window shared by every API instance.
type RedisLimiter struct {
	client   *redis.Client
	requests int
	window   time.Duration
}

func NewRedisLimiter(client *redis.Client, requests int, windowSeconds int) *RedisLimiter {
	requests, window := normalizeLimits(requests, windowSeconds)
	return &RedisLimiter{client: client, requests: requests, window: window}
}

func (rl *RedisLimiter) Limit() int {
	return rl.requests
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	bucket := time.Now().Truncate(rl.window)
	redisKey := "ratelimit:" + key + ":" + strconv.FormatInt(bucket.Unix(), 10)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, rl.requests, bucket.Add(rl.window), err
	}

	count := int(incr.Val())
	remaining := rl.requests - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.requests, remaining, bucket.Add(rl.window), nil
}

// RateLimit limits requests per client IP. Limiter errors fail open.
func RateLimit(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, resetTime, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(resetTime).Seconds())+1, 10))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", apperr.Kind("rate_limited"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if i := strings.LastIndex(ip, ":"); i >= 0 {
		return ip[:i]
	}
	return ip
}

var (
	_ Limiter = (*MemoryLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)
