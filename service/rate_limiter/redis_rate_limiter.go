/*
 * @module service/rate_limiter/redis_rate_limiter
 * @description 手动调用限流，防止单个发起人短时间内大量触发下游分析
 * @architecture 工具层 - 提供分布式限流能力
 * @documentReference DESIGN.md
 * @stateFlow 检查限流规则 -> 窗口计数 -> 判断是否超限
 * @rules Redis 使用 Lua 脚本原子完成 INCR 与 EXPIRE；未配置 Redis 时使用进程内计数
 * @dependencies github.com/go-redis/redis/v8
 * @refs api/controllers/intelligence_controller.go, service/init.go
 */

package rate_limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 限流范围
const (
	ScopeInitiator = "initiator"
	ScopePersona   = "persona"
)

const keyPrefix = "fieldops_insight:rate_limit"

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed   bool   `json:"allowed"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   int64  `json:"reset_at"` // Unix 秒
	Scope     string `json:"scope"`
	Message   string `json:"message"`
}

// RateLimitRule 限流规则
type RateLimitRule struct {
	Scope       string
	TargetID    string
	TimeWindow  int // 秒
	MaxRequests int
}

// Limiter 限流器
type Limiter interface {
	// CheckRateLimit 按顺序检查规则，任一规则超限即拒绝
	CheckRateLimit(ctx context.Context, rules []RateLimitRule) (*RateLimitResult, error)
}

const checkScript = `
	local key = KEYS[1]
	local max_requests = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	if current >= max_requests then
		local ttl = redis.call('TTL', key)
		if ttl < 0 then
			ttl = window
		end
		return {0, current, ttl}
	end

	local new_count = redis.call('INCR', key)
	if new_count == 1 then
		redis.call('EXPIRE', key, window)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end
	return {1, new_count, ttl}
`

// RedisRateLimiter Redis限流器，客户端由调用方管理
type RedisRateLimiter struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisRateLimiter 基于已有客户端创建限流器
func NewRedisRateLimiter(client redis.UniversalClient) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

// CheckRateLimit 检查是否超过限流
func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, rules []RateLimitRule) (*RateLimitResult, error) {
	return checkRules(ctx, rules, r.checkSingleRule)
}

func (r *RedisRateLimiter) checkSingleRule(ctx context.Context, rule RateLimitRule) (*RateLimitResult, error) {
	now := r.now()
	key := buildRateLimitKey(rule, now)

	result, err := r.client.Eval(ctx, checkScript, []string{key}, rule.MaxRequests, rule.TimeWindow).Result()
	if err != nil {
		return nil, fmt.Errorf("限流检查失败: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return nil, fmt.Errorf("限流脚本返回格式错误: %v", result)
	}
	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)
	ttl, _ := values[2].(int64)

	return newResult(rule, allowed == 1, int(count), now.Add(time.Duration(ttl)*time.Second)), nil
}

func checkRules(ctx context.Context, rules []RateLimitRule, check func(context.Context, RateLimitRule) (*RateLimitResult, error)) (*RateLimitResult, error) {
	var last *RateLimitResult
	for _, rule := range rules {
		if rule.MaxRequests <= 0 || rule.TimeWindow <= 0 {
			continue
		}
		result, err := check(ctx, rule)
		if err != nil {
			return nil, err
		}
		if !result.Allowed {
			return result, nil
		}
		last = result
	}

	if last == nil {
		return &RateLimitResult{Allowed: true, Limit: -1, Remaining: -1, Scope: "none", Message: "无限流规则"}, nil
	}
	return last, nil
}

func newResult(rule RateLimitRule, allowed bool, count int, resetAt time.Time) *RateLimitResult {
	remaining := rule.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	message := "允许请求"
	if !allowed {
		message = fmt.Sprintf("超过%s限流限制", scopeName(rule.Scope))
	}
	return &RateLimitResult{
		Allowed:   allowed,
		Limit:     rule.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt.Unix(),
		Scope:     rule.Scope,
		Message:   message,
	}
}

// buildRateLimitKey 键中包含窗口序号，窗口切换即自然失效
func buildRateLimitKey(rule RateLimitRule, now time.Time) string {
	window := now.Unix() / int64(rule.TimeWindow)
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, rule.Scope, rule.TargetID, window)
}

func scopeName(scope string) string {
	switch scope {
	case ScopeInitiator:
		return "发起人"
	case ScopePersona:
		return "分析角色"
	default:
		return "未知"
	}
}
