package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newVerifyServer(t *testing.T, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["token"] == "good" {
			w.Write([]byte(`{"valid": true, "username": "alice", "roles": ["dispatcher"]}`))
			return
		}
		w.Write([]byte(`{"valid": false, "message": "expired"}`))
	}))
}

func TestTokenAuthInjectsUser(t *testing.T) {
	var calls int32
	server := newVerifyServer(t, &calls)
	defer server.Close()

	auth := NewTokenAuth(server.URL)
	var seen string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UsernameFromContext(r.Context())
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/intelligence/health", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, "alice", seen)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second request should hit the cache")
}

func TestTokenAuthRejects(t *testing.T) {
	var calls int32
	server := newVerifyServer(t, &calls)
	defer server.Close()

	handler := NewTokenAuth(server.URL).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/intelligence/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/intelligence/health", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenAuthWhitelist(t *testing.T) {
	reached := false
	handler := NewTokenAuth("http://127.0.0.1:1").Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, reached)
	assert.Equal(t, "", UsernameFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestTokenAuthWhitelistMatchesWholeSegments(t *testing.T) {
	tests := []struct {
		name     string
		basePath string
		path     string
		open     bool
	}{
		{name: "health", path: "/health", open: true},
		{name: "swagger asset", path: "/swagger/index.html", open: true},
		{name: "metrics", path: "/metrics", open: true},
		{name: "domain health report", path: "/intelligence/health", open: false},
		{name: "config key named health", path: "/config/health", open: false},
		{name: "config key named metrics", path: "/config/metrics", open: false},
		{name: "segment prefix only", path: "/healthz", open: false},
		{name: "mounted ready", basePath: "/insight", path: "/insight/ready", open: true},
		{name: "mounted report", basePath: "/insight", path: "/insight/intelligence/health", open: false},
		{name: "outside mount", basePath: "/insight", path: "/health", open: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := NewTokenAuth("http://127.0.0.1:1")
			auth.basePath = tt.basePath
			reached := false
			handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.open, reached)
			if !tt.open {
				assert.Equal(t, http.StatusUnauthorized, w.Code)
			}
		})
	}
}

func TestNewTokenAuthFromEnv(t *testing.T) {
	t.Setenv("AUTH_VERIFY_URL", "")
	assert.Nil(t, NewTokenAuthFromEnv())

	t.Setenv("AUTH_VERIFY_URL", "http://auth.local/verify")
	t.Setenv("BASE_CONTEXT", "/insight/")
	auth := NewTokenAuthFromEnv()
	assert.NotNil(t, auth)
	assert.Equal(t, "/insight", auth.basePath)
}
