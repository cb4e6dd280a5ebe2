package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"fieldops-insight-service/service/models"
)

// AnalysisRequest 下游分析请求
type AnalysisRequest struct {
	InsightID  string                      `json:"insight_id"`
	PersonaKey string                      `json:"persona_key"`
	Domain     string                      `json:"domain"`
	EntityType string                      `json:"entity_type"`
	EntityID   string                      `json:"entity_id"`
	Params     map[string]interface{}      `json:"params"`
	Quality    *models.EntityQualityResult `json:"context_quality"`
}

// AnalysisResult 下游分析结果
type AnalysisResult struct {
	Title            string                 `json:"title"`
	Summary          string                 `json:"summary"`
	StructuredOutput map[string]interface{} `json:"structured_output"`
	ConfidenceScore  *float64               `json:"confidence_score"`
	TokensUsed       int                    `json:"tokens_used"`
	CostUSD          float64                `json:"cost_usd"`
}

// Analyzer 下游分析（LLM 编排服务）接口
type Analyzer interface {
	Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error)
}

// HTTPAnalyzer 通过 HTTP 调用编排服务
type HTTPAnalyzer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPAnalyzer 创建 HTTP 分析客户端
func NewHTTPAnalyzer(baseURL string, timeout time.Duration) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// NewHTTPAnalyzerFromEnv 根据运行环境创建分析客户端
// 在 Dapr 环境中经 sidecar 服务调用，否则直连 ANALYZER_URL
func NewHTTPAnalyzerFromEnv() *HTTPAnalyzer {
	baseURL := getEnvWithDefault("ANALYZER_URL", "http://localhost:8090")
	if daprPort := os.Getenv("DAPR_HTTP_PORT"); daprPort != "" {
		appID := getEnvWithDefault("ANALYZER_APP_ID", "intelligence-orchestrator")
		baseURL = fmt.Sprintf("http://localhost:%s/v1.0/invoke/%s/method", daprPort, appID)
		slog.Info("分析服务使用Dapr服务调用", "app_id", appID)
	} else {
		slog.Info("分析服务使用直连地址", "base_url", baseURL)
	}

	timeout, err := time.ParseDuration(getEnvWithDefault("ANALYZER_TIMEOUT", "120s"))
	if err != nil {
		timeout = 120 * time.Second
	}
	return NewHTTPAnalyzer(baseURL, timeout)
}

// Analyze 调用 /analyze
func (a *HTTPAnalyzer) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化分析请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建分析请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("调用分析服务失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取分析响应失败: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("分析服务返回错误 [%d]: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var result AnalysisResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("解析分析响应失败: %w", err)
	}
	return &result, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
