package rate_limiter

import (
	"context"
	"sync"
	"time"
)

type windowCounter struct {
	count   int
	resetAt time.Time
}

// LocalRateLimiter 进程内固定窗口限流，单实例部署使用
type LocalRateLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	now      func() time.Time
}

// NewLocalRateLimiter 创建进程内限流器
func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
}

// CheckRateLimit 检查是否超过限流
func (l *LocalRateLimiter) CheckRateLimit(ctx context.Context, rules []RateLimitRule) (*RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	return checkRules(ctx, rules, func(_ context.Context, rule RateLimitRule) (*RateLimitResult, error) {
		key := buildRateLimitKey(rule, now)
		c, ok := l.counters[key]
		if !ok {
			window := int64(rule.TimeWindow)
			c = &windowCounter{resetAt: time.Unix((now.Unix()/window+1)*window, 0)}
			l.counters[key] = c
		}
		if c.count >= rule.MaxRequests {
			return newResult(rule, false, c.count, c.resetAt), nil
		}
		c.count++
		return newResult(rule, true, c.count, c.resetAt), nil
	})
}

func (l *LocalRateLimiter) prune(now time.Time) {
	for key, c := range l.counters {
		if !now.Before(c.resetAt) {
			delete(l.counters, key)
		}
	}
}
