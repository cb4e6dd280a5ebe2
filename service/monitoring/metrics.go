/*
 * @module service/monitoring/metrics
 * @description Prometheus 指标定义，覆盖质量门控决策、评分分布、评分耗时和批量筛选结果
 * @architecture 分层架构 - 监控层
 * @documentReference DESIGN.md
 * @stateFlow 业务埋点 -> 指标累加 -> /metrics 暴露
 * @rules 指标标签仅使用低基数字段（领域、决策、结果），不使用实体ID
 * @dependencies github.com/prometheus/client_golang
 * @refs main.go, service/intelligence/gate.go
 */

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldops_insight"

// 门控决策
const (
	DecisionSkipped   = "skipped"
	DecisionProceeded = "proceeded"
	DecisionError     = "error"
)

var (
	// GateDecisions 质量门控决策次数
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "质量门控决策次数",
	}, []string{"domain", "persona", "decision"})

	// ContextQualityScore 上下文质量评分分布
	ContextQualityScore = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "context_quality_score",
		Help:      "上下文质量评分分布",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	}, []string{"domain"})

	// ScorerDuration 评分器耗时
	ScorerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scorer_duration_seconds",
		Help:      "实体评分耗时（秒）",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"domain"})

	// AnalysisOutcomes 下游分析结果
	AnalysisOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_outcomes_total",
		Help:      "下游分析调用结果",
	}, []string{"domain", "status"})

	// BatchCandidates 批量候选筛选结果
	BatchCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_candidates_total",
		Help:      "批量扫描候选实体筛选结果",
	}, []string{"domain", "result"})

	// EventPublishFailures 洞察事件发布失败次数
	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_publish_failures_total",
		Help:      "洞察事件发布失败次数",
	}, []string{"sink"})
)
