/*
 * @module service/intelligence/gate
 * @description 上下文质量门控，在调用昂贵的下游分析之前评估实体数据是否充分
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 解析角色 -> 领域评分 -> 跳过(skipped) | 待处理(pending) -> 下游分析 -> completed|failed -> 发布事件
 * @rules 评分写入记录后不再修改；跳过路径不调用下游；评分器数据层错误直接返回且不落库；不修改调用方参数
 * @dependencies gorm.io/gorm, golang.org/x/text/cases, github.com/spf13/cast
 * @refs service/context_quality/scorer.go, service/intelligence/insight_store.go
 */

package intelligence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fieldops-insight-service/service/context_quality"
	"fieldops-insight-service/service/event"
	"fieldops-insight-service/service/models"
	"fieldops-insight-service/service/monitoring"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// SkipReasonInsufficientContext 跳过原因
const SkipReasonInsufficientContext = "insufficient_context"

// maxSummaryFields 跳过摘要中最多列出的缺失项
const maxSummaryFields = 5

// InvokeRequest 门控调用请求
type InvokeRequest struct {
	PersonaKey string                 `json:"persona_key"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Params     map[string]interface{} `json:"params"`
	Trigger    string                 `json:"trigger"`
	Initiator  string                 `json:"initiator"`
}

// Evaluation 门控评估结果
type Evaluation struct {
	Persona Persona                     `json:"persona"`
	Quality *models.EntityQualityResult `json:"quality"`
	Skip    bool                        `json:"skip"`
}

// QualityGate 上下文质量门控
type QualityGate struct {
	db        *gorm.DB
	personas  *PersonaRegistry
	scorers   *context_quality.Registry
	store     *InsightStore
	analyzer  Analyzer
	publisher event.Publisher
}

// NewQualityGate 创建质量门控
func NewQualityGate(db *gorm.DB, personas *PersonaRegistry, scorers *context_quality.Registry, analyzer Analyzer, publisher event.Publisher) *QualityGate {
	if publisher == nil {
		publisher = event.NoopPublisher{}
	}
	return &QualityGate{
		db:        db,
		personas:  personas,
		scorers:   scorers,
		store:     NewInsightStore(db),
		analyzer:  analyzer,
		publisher: publisher,
	}
}

// Personas 角色注册表
func (g *QualityGate) Personas() *PersonaRegistry {
	return g.personas
}

// Scorers 评分器注册表
func (g *QualityGate) Scorers() *context_quality.Registry {
	return g.scorers
}

// Store 洞察记录存储
func (g *QualityGate) Store() *InsightStore {
	return g.store
}

// Evaluate 仅评分，不落库也不调用下游
func (g *QualityGate) Evaluate(ctx context.Context, personaKey string, params map[string]interface{}) (*Evaluation, error) {
	persona, err := g.personas.Get(personaKey)
	if err != nil {
		return nil, err
	}

	scorer, err := g.scorers.Get(persona.Domain)
	if err != nil {
		return nil, err
	}

	scoringParams := copyParams(params)
	scoringParams[context_quality.ThresholdParamKey] = persona.MinContextQuality

	quality, err := scorer.Score(ctx, g.db, scoringParams)
	if err != nil {
		return nil, err
	}
	monitoring.ContextQualityScore.WithLabelValues(persona.Domain).Observe(quality.Score)

	return &Evaluation{
		Persona: persona,
		Quality: quality,
		Skip:    !quality.Sufficient && persona.SkipOnLowQuality,
	}, nil
}

// Invoke 门控调用：评分、落库，并在数据充分（或角色不跳过）时调用下游分析
// 下游失败时返回 failed 记录与错误
func (g *QualityGate) Invoke(ctx context.Context, req InvokeRequest) (*models.InsightRecord, error) {
	eval, err := g.Evaluate(ctx, req.PersonaKey, req.Params)
	if err != nil {
		if !errors.Is(err, ErrUnknownPersona) {
			monitoring.GateDecisions.WithLabelValues(g.domainOf(req.PersonaKey), req.PersonaKey, monitoring.DecisionError).Inc()
		}
		return nil, err
	}

	persona := eval.Persona
	scorer, _ := g.scorers.Get(persona.Domain)
	def := scorer.Definition()

	record := &models.InsightRecord{
		Domain:              persona.Domain,
		PersonaKey:          persona.Key,
		EntityType:          req.EntityType,
		EntityID:            req.EntityID,
		Trigger:             req.Trigger,
		Initiator:           req.Initiator,
		ContextQualityScore: floatPtr(eval.Quality.Score),
	}
	if record.EntityType == "" {
		record.EntityType = def.EntityType
	}
	if record.EntityID == "" {
		record.EntityID = cast.ToString(req.Params[def.IDKey])
	}
	if record.Trigger == "" {
		record.Trigger = models.TriggerManual
	}

	if eval.Skip {
		return g.skip(ctx, record, eval)
	}
	return g.proceed(ctx, record, eval, req.Params)
}

// skip 单事务写入 skipped 记录
func (g *QualityGate) skip(ctx context.Context, record *models.InsightRecord, eval *Evaluation) (*models.InsightRecord, error) {
	quality := eval.Quality
	record.Status = models.InsightStatusSkipped
	record.Title = fmt.Sprintf("%s：上下文不足", eval.Persona.DisplayName)
	record.Summary = skipSummary(quality)
	record.StructuredOutput = models.JSONB{
		"reason":         SkipReasonInsufficientContext,
		"score":          quality.Score,
		"threshold":      quality.Threshold,
		"field_scores":   quality.FieldScores,
		"missing_fields": quality.MissingFields,
	}
	record.TokensUsed = 0
	record.CostUSD = 0
	record.DurationMS = 0

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return g.store.Create(ctx, tx, record)
	})
	if err != nil {
		monitoring.GateDecisions.WithLabelValues(record.Domain, record.PersonaKey, monitoring.DecisionError).Inc()
		return nil, err
	}

	monitoring.GateDecisions.WithLabelValues(record.Domain, record.PersonaKey, monitoring.DecisionSkipped).Inc()
	slog.Info("上下文不足，跳过分析",
		"persona", record.PersonaKey,
		"domain", record.Domain,
		"entity_id", record.EntityID,
		"score", quality.Score,
		"threshold", quality.Threshold,
		"missing_fields", quality.MissingFields)

	g.publish(ctx, record)
	return record, nil
}

// proceed 写入 pending 记录后调用下游，并据结果终结该记录
func (g *QualityGate) proceed(ctx context.Context, record *models.InsightRecord, eval *Evaluation, params map[string]interface{}) (*models.InsightRecord, error) {
	record.Status = models.InsightStatusPending
	if err := g.store.Create(ctx, nil, record); err != nil {
		monitoring.GateDecisions.WithLabelValues(record.Domain, record.PersonaKey, monitoring.DecisionError).Inc()
		return nil, err
	}
	monitoring.GateDecisions.WithLabelValues(record.Domain, record.PersonaKey, monitoring.DecisionProceeded).Inc()

	if !eval.Quality.Sufficient {
		slog.Info("上下文不足但角色策略要求继续分析",
			"persona", record.PersonaKey,
			"entity_id", record.EntityID,
			"score", eval.Quality.Score)
	}

	if g.analyzer == nil {
		failed, err := g.store.MarkFailed(ctx, record.ID, errors.New("未配置分析服务"), 0)
		if err != nil {
			return nil, err
		}
		g.publish(ctx, failed)
		return failed, errors.New("未配置分析服务")
	}

	start := time.Now()
	result, analyzeErr := g.analyzer.Analyze(ctx, &AnalysisRequest{
		InsightID:  record.ID,
		PersonaKey: record.PersonaKey,
		Domain:     record.Domain,
		EntityType: record.EntityType,
		EntityID:   record.EntityID,
		Params:     copyParams(params),
		Quality:    eval.Quality,
	})
	elapsed := time.Since(start)

	if analyzeErr == nil && result == nil {
		analyzeErr = errors.New("分析服务返回空结果")
	}

	if analyzeErr != nil {
		monitoring.AnalysisOutcomes.WithLabelValues(record.Domain, models.InsightStatusFailed).Inc()
		slog.Error("下游分析失败",
			"insight_id", record.ID,
			"persona", record.PersonaKey,
			"entity_id", record.EntityID,
			"error", analyzeErr)

		// 调用方上下文可能已取消，终结记录使用独立上下文
		failed, err := g.store.MarkFailed(context.WithoutCancel(ctx), record.ID, analyzeErr, elapsed)
		if err != nil {
			return nil, fmt.Errorf("下游分析失败: %v; 更新记录失败: %w", analyzeErr, err)
		}
		g.publish(ctx, failed)
		return failed, fmt.Errorf("下游分析失败: %w", analyzeErr)
	}

	completed, err := g.store.MarkCompleted(context.WithoutCancel(ctx), record.ID, result, elapsed)
	if err != nil {
		return nil, err
	}
	monitoring.AnalysisOutcomes.WithLabelValues(record.Domain, models.InsightStatusCompleted).Inc()
	slog.Info("洞察分析完成",
		"insight_id", completed.ID,
		"persona", completed.PersonaKey,
		"score", eval.Quality.Score,
		"duration_ms", completed.DurationMS)

	g.publish(ctx, completed)
	return completed, nil
}

// publish 尽力发布事件，失败只记录日志
func (g *QualityGate) publish(ctx context.Context, record *models.InsightRecord) {
	if err := g.publisher.Publish(context.WithoutCancel(ctx), models.NewInsightEvent(record)); err != nil {
		slog.Warn("洞察事件发布失败", "insight_id", record.ID, "status", record.Status, "error", err)
	}
}

func (g *QualityGate) domainOf(personaKey string) string {
	if p, err := g.personas.Get(personaKey); err == nil {
		return p.Domain
	}
	return "unknown"
}

// skipSummary 生成跳过摘要，最多列出 5 个缺失项
func skipSummary(quality *models.EntityQualityResult) string {
	labels := make([]string, 0, maxSummaryFields)
	for i, field := range quality.MissingFields {
		if i >= maxSummaryFields {
			break
		}
		labels = append(labels, humanizeField(field))
	}

	summary := fmt.Sprintf("上下文质量 %.2f 低于阈值 %.2f", quality.Score, quality.Threshold)
	if len(labels) > 0 {
		summary += "，缺少: " + strings.Join(labels, ", ")
		if extra := len(quality.MissingFields) - len(labels); extra > 0 {
			summary += fmt.Sprintf(" 等，另有 %d 项", extra)
		}
	}
	return summary
}

// humanizeField 将信号名转为展示标签，如 sla_events -> Sla Events
func humanizeField(field string) string {
	caser := cases.Title(language.English)
	return caser.String(strings.ReplaceAll(field, "_", " "))
}

func copyParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	return out
}

func floatPtr(v float64) *float64 {
	return &v
}
