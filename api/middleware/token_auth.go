/*
 * @module api/middleware/token_auth
 * @description Token鉴权中间件，通过外部认证服务校验 Bearer Token 并注入操作人信息
 * @architecture 中间件模式 - HTTP请求拦截和验证
 * @documentReference DESIGN.md
 * @stateFlow Token提取 -> 缓存命中/远程校验 -> 上下文注入 -> 下一个处理器
 * @rules 仅在配置 AUTH_VERIFY_URL 时启用；健康检查、指标与文档路径免鉴权
 * @dependencies github.com/go-chi/render
 * @refs api/routes.go, api/controllers/intelligence_controller.go
 */

package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"
)

// ContextKey 上下文键类型
type ContextKey string

// UserInfoKey 用户信息在上下文中的键
const UserInfoKey ContextKey = "user_info"

// UserInfo 用户信息
type UserInfo struct {
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
}

type verifyResponse struct {
	Valid     bool       `json:"valid"`
	Message   string     `json:"message"`
	Username  string     `json:"username"`
	Roles     []string   `json:"roles"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type cacheEntry struct {
	userInfo  *UserInfo
	expiresAt time.Time
}

// TokenAuth Token鉴权中间件
type TokenAuth struct {
	verifyURL  string
	httpClient *http.Client

	cache      map[string]cacheEntry
	cacheMutex sync.RWMutex
	cacheTTL   time.Duration

	basePath       string
	whitelistPaths []string
}

// NewTokenAuthFromEnv AUTH_VERIFY_URL 未设置时返回 nil
func NewTokenAuthFromEnv() *TokenAuth {
	verifyURL := os.Getenv("AUTH_VERIFY_URL")
	if verifyURL == "" {
		return nil
	}
	auth := NewTokenAuth(verifyURL)
	auth.basePath = strings.TrimSuffix(os.Getenv("BASE_CONTEXT"), "/")
	return auth
}

// NewTokenAuth 创建鉴权中间件
func NewTokenAuth(verifyURL string) *TokenAuth {
	return &TokenAuth{
		verifyURL:  verifyURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      make(map[string]cacheEntry),
		cacheTTL:   5 * time.Minute,
		whitelistPaths: []string{
			"/health",
			"/ready",
			"/metrics",
			"/swagger",
		},
	}
}

// isWhitelisted 去掉 BASE_CONTEXT 后按完整路径段匹配，/health 不匹配 /intelligence/health
func (m *TokenAuth) isWhitelisted(path string) bool {
	if m.basePath != "" {
		rest, ok := strings.CutPrefix(path, m.basePath)
		if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
			return false
		}
		path = rest
	}
	for _, p := range m.whitelistPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Middleware 认证中间件处理函数
func (m *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isWhitelisted(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			respondUnauthorized(w, r, "缺少或无效的Authorization头")
			return
		}

		userInfo := m.getFromCache(token)
		if userInfo == nil {
			var err error
			userInfo, err = m.verifyToken(r.Context(), token)
			if err != nil {
				respondUnauthorized(w, r, fmt.Sprintf("Token验证失败: %v", err))
				return
			}
			m.saveToCache(token, userInfo)
		}

		ctx := context.WithValue(r.Context(), UserInfoKey, userInfo)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *TokenAuth) verifyToken(ctx context.Context, token string) (*UserInfo, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.verifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建验证请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("验证请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取验证响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("验证服务返回状态码 %d", resp.StatusCode)
	}

	var verified verifyResponse
	if err := json.Unmarshal(respBody, &verified); err != nil {
		return nil, fmt.Errorf("解析验证响应失败: %w", err)
	}
	if !verified.Valid {
		return nil, fmt.Errorf("Token无效: %s", verified.Message)
	}

	userInfo := &UserInfo{
		Username:  verified.Username,
		Roles:     verified.Roles,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if verified.ExpiresAt != nil {
		userInfo.ExpiresAt = *verified.ExpiresAt
	}
	return userInfo, nil
}

func (m *TokenAuth) getFromCache(token string) *UserInfo {
	m.cacheMutex.RLock()
	defer m.cacheMutex.RUnlock()

	entry, ok := m.cache[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.userInfo
}

// saveToCache 缓存有效期取 Token 过期时间与 TTL 的较小值
func (m *TokenAuth) saveToCache(token string, userInfo *UserInfo) {
	expiry := time.Now().Add(m.cacheTTL)
	if userInfo.ExpiresAt.Before(expiry) {
		expiry = userInfo.ExpiresAt
	}

	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	now := time.Now()
	for k, e := range m.cache {
		if now.After(e.expiresAt) {
			delete(m.cache, k)
		}
	}
	m.cache[token] = cacheEntry{userInfo: userInfo, expiresAt: expiry}
}

func respondUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]interface{}{
		"status": http.StatusUnauthorized,
		"msg":    message,
	})
}

// UsernameFromContext 获取当前操作人，未鉴权时返回空串
func UsernameFromContext(ctx context.Context) string {
	if userInfo, ok := ctx.Value(UserInfoKey).(*UserInfo); ok && userInfo != nil {
		return userInfo.Username
	}
	return ""
}
