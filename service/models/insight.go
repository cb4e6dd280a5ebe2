/*
 * @module service/models/insight
 * @description 洞察记录模型与上下文质量相关结构，记录每次分析调用的结果及其使用的上下文质量评分
 * @architecture 数据模型层
 * @documentReference DESIGN.md
 * @stateFlow 质量门控创建 -> 下游分析更新一次 -> 确认/处理/过期
 * @rules 记录只追加不删除；context_quality_score 一经写入不再清空
 * @dependencies gorm.io/gorm
 * @refs service/intelligence, service/domain_health
 */

package models

import (
	"time"
)

// 领域
const (
	DomainTickets     = "tickets"
	DomainInbox       = "inbox"
	DomainProjects    = "projects"
	DomainCampaigns   = "campaigns"
	DomainDispatch    = "dispatch"
	DomainVendors     = "vendors"
	DomainPerformance = "performance"
	DomainCustomers   = "customers"
)

// AllDomains 固定领域列表，顺序即报表输出顺序
var AllDomains = []string{
	DomainTickets,
	DomainInbox,
	DomainProjects,
	DomainCampaigns,
	DomainDispatch,
	DomainVendors,
	DomainPerformance,
	DomainCustomers,
}

// IsValidDomain 判断领域是否合法
func IsValidDomain(domain string) bool {
	for _, d := range AllDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// 洞察状态
const (
	InsightStatusCompleted    = "completed"
	InsightStatusFailed       = "failed"
	InsightStatusSkipped      = "skipped"
	InsightStatusPending      = "pending"
	InsightStatusAcknowledged = "acknowledged"
	InsightStatusActioned     = "actioned"
	InsightStatusExpired      = "expired"
)

// 触发方式
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerEvent     = "event"
)

// InsightRecord 洞察记录
type InsightRecord struct {
	ID                  string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Domain              string     `gorm:"type:varchar(30);not null;index:idx_insight_domain_created" json:"domain"`
	PersonaKey          string     `gorm:"type:varchar(50);not null;index" json:"persona_key"`
	EntityType          string     `gorm:"type:varchar(50);not null;index:idx_insight_entity" json:"entity_type"`
	EntityID            string     `gorm:"type:varchar(64);not null;index:idx_insight_entity" json:"entity_id"`
	Status              string     `gorm:"type:varchar(20);not null;index" json:"status"`
	Trigger             string     `gorm:"type:varchar(20)" json:"trigger"`
	Initiator           string     `gorm:"type:varchar(100)" json:"initiator"`
	Title               string     `gorm:"type:varchar(255)" json:"title"`
	Summary             string     `gorm:"type:text" json:"summary"`
	ContextQualityScore *float64   `json:"context_quality_score"`
	StructuredOutput    JSONB      `gorm:"type:jsonb" json:"structured_output"`
	ConfidenceScore     *float64   `json:"confidence_score"`
	TokensUsed          int        `gorm:"default:0" json:"tokens_used"`
	CostUSD             float64    `gorm:"default:0" json:"cost_usd"`
	DurationMS          int64      `gorm:"default:0" json:"duration_ms"`
	ErrorMessage        string     `gorm:"type:text" json:"error_message,omitempty"`
	AcknowledgedAt      *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy      string     `gorm:"type:varchar(100)" json:"acknowledged_by,omitempty"`
	ActionedAt          *time.Time `json:"actioned_at,omitempty"`
	ActionedBy          string     `gorm:"type:varchar(100)" json:"actioned_by,omitempty"`
	CreatedAt           time.Time  `gorm:"not null;index:idx_insight_domain_created" json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (InsightRecord) TableName() string {
	return "insight_records"
}

// EntityQualityResult 实体上下文质量评分结果（不落库）
type EntityQualityResult struct {
	Domain        string             `json:"domain"`
	Score         float64            `json:"score"`
	FieldScores   map[string]float64 `json:"field_scores"`
	MissingFields []string           `json:"missing_fields"`
	Sufficient    bool               `json:"sufficient"`
	Threshold     float64            `json:"threshold"`
}

// DomainHealthReport 领域健康报告，字段名为对外报表契约，不可更改
type DomainHealthReport struct {
	Domain                string   `json:"domain"`
	TotalEntitiesScanned  int64    `json:"total_entities_scanned"`
	AvgContextQuality     float64  `json:"avg_context_quality"`
	PctAboveThreshold     float64  `json:"pct_above_threshold"`
	CommonMissingFields   []string `json:"common_missing_fields"`
	InsightCountCompleted int64    `json:"insight_count_completed"`
	InsightCountSkipped   int64    `json:"insight_count_skipped"`
	AvgConfidenceScore    *float64 `json:"avg_confidence_score"`
	WindowDays            int      `json:"window_days"`
	ReportingThreshold    float64  `json:"reporting_threshold"`
}

// Candidate 批量扫描候选实体
type Candidate struct {
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Params     map[string]interface{} `json:"params"`
}

// InsightEvent 洞察事件，记录到达终态后对外发布
type InsightEvent struct {
	EventType           string    `json:"event_type"` // insight.completed, insight.skipped, insight.failed
	InsightID           string    `json:"insight_id"`
	Domain              string    `json:"domain"`
	PersonaKey          string    `json:"persona_key"`
	EntityType          string    `json:"entity_type"`
	EntityID            string    `json:"entity_id"`
	Status              string    `json:"status"`
	ContextQualityScore *float64  `json:"context_quality_score"`
	Timestamp           time.Time `json:"timestamp"`
}

// NewInsightEvent 根据洞察记录构建事件
func NewInsightEvent(record *InsightRecord) *InsightEvent {
	return &InsightEvent{
		EventType:           "insight." + record.Status,
		InsightID:           record.ID,
		Domain:              record.Domain,
		PersonaKey:          record.PersonaKey,
		EntityType:          record.EntityType,
		EntityID:            record.EntityID,
		Status:              record.Status,
		ContextQualityScore: record.ContextQualityScore,
		Timestamp:           time.Now(),
	}
}
