/*
 * @module service/intelligence/insight_store
 * @description 洞察记录存储，负责记录创建与状态流转（完成、失败、确认、处置、过期）
 * @architecture 分层架构 - 数据访问层
 * @documentReference DESIGN.md
 * @stateFlow pending -> completed|failed|expired；completed -> acknowledged -> actioned；skipped 为终态
 * @rules 记录永不删除；状态更新带前置状态条件，保证每条待处理记录只被终结一次；质量评分一经写入不再变更
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/intelligence/gate.go, service/cleanup/insight_expiry_service.go
 */

package intelligence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldops-insight-service/service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrInsightNotFound 洞察记录不存在
	ErrInsightNotFound = errors.New("洞察记录不存在")
	// ErrInvalidTransition 非法的状态流转
	ErrInvalidTransition = errors.New("洞察记录状态不允许该操作")
)

// InsightFilter 洞察记录查询条件
type InsightFilter struct {
	Domain     string
	Status     string
	PersonaKey string
	EntityType string
	EntityID   string
}

// InsightStore 洞察记录存储
type InsightStore struct {
	db *gorm.DB
}

// NewInsightStore 创建洞察记录存储
func NewInsightStore(db *gorm.DB) *InsightStore {
	return &InsightStore{db: db}
}

// DB 返回底层连接
func (s *InsightStore) DB() *gorm.DB {
	return s.db
}

// Create 在给定事务中创建记录，tx 为 nil 时使用默认连接
func (s *InsightStore) Create(ctx context.Context, tx *gorm.DB, record *models.InsightRecord) error {
	if tx == nil {
		tx = s.db
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Status == "" {
		record.Status = models.InsightStatusPending
	}
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("创建洞察记录失败: %w", err)
	}
	return nil
}

// MarkCompleted 将待处理记录标记为完成
func (s *InsightStore) MarkCompleted(ctx context.Context, id string, result *AnalysisResult, duration time.Duration) (*models.InsightRecord, error) {
	updates := map[string]interface{}{
		"status":            models.InsightStatusCompleted,
		"title":             result.Title,
		"summary":           result.Summary,
		"structured_output": models.JSONB(result.StructuredOutput),
		"confidence_score":  result.ConfidenceScore,
		"tokens_used":       result.TokensUsed,
		"cost_usd":          result.CostUSD,
		"duration_ms":       duration.Milliseconds(),
	}
	return s.transition(ctx, id, []string{models.InsightStatusPending}, updates)
}

// MarkFailed 将待处理记录标记为失败
func (s *InsightStore) MarkFailed(ctx context.Context, id string, cause error, duration time.Duration) (*models.InsightRecord, error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	updates := map[string]interface{}{
		"status":        models.InsightStatusFailed,
		"error_message": message,
		"duration_ms":   duration.Milliseconds(),
	}
	return s.transition(ctx, id, []string{models.InsightStatusPending}, updates)
}

// Acknowledge 确认已完成的洞察
func (s *InsightStore) Acknowledge(ctx context.Context, id, by string) (*models.InsightRecord, error) {
	updates := map[string]interface{}{
		"status":          models.InsightStatusAcknowledged,
		"acknowledged_at": time.Now(),
		"acknowledged_by": by,
	}
	return s.transition(ctx, id, []string{models.InsightStatusCompleted}, updates)
}

// MarkActioned 标记洞察已处置
func (s *InsightStore) MarkActioned(ctx context.Context, id, by string) (*models.InsightRecord, error) {
	updates := map[string]interface{}{
		"status":      models.InsightStatusActioned,
		"actioned_at": time.Now(),
		"actioned_by": by,
	}
	return s.transition(ctx, id, []string{models.InsightStatusCompleted, models.InsightStatusAcknowledged}, updates)
}

// ExpireStalePending 将超时未完成的待处理记录标记为过期，返回处理条数
func (s *InsightStore) ExpireStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := s.db.WithContext(ctx).
		Model(&models.InsightRecord{}).
		Where("status = ? AND created_at < ?", models.InsightStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":        models.InsightStatusExpired,
			"error_message": "分析超时未完成",
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("过期待处理洞察失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Get 获取洞察记录
func (s *InsightStore) Get(ctx context.Context, id string) (*models.InsightRecord, error) {
	var record models.InsightRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInsightNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询洞察记录失败: %w", err)
	}
	return &record, nil
}

// List 分页查询洞察记录，按创建时间倒序
func (s *InsightStore) List(ctx context.Context, filter InsightFilter, page, size int) ([]models.InsightRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	query := s.db.WithContext(ctx).Model(&models.InsightRecord{})
	if filter.Domain != "" {
		query = query.Where("domain = ?", filter.Domain)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PersonaKey != "" {
		query = query.Where("persona_key = ?", filter.PersonaKey)
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		query = query.Where("entity_id = ?", filter.EntityID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计洞察记录失败: %w", err)
	}

	records := make([]models.InsightRecord, 0)
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询洞察记录失败: %w", err)
	}
	return records, total, nil
}

// transition 条件更新，前置状态不符时区分不存在与非法流转
func (s *InsightStore) transition(ctx context.Context, id string, from []string, updates map[string]interface{}) (*models.InsightRecord, error) {
	updates["updated_at"] = time.Now()

	result := s.db.WithContext(ctx).
		Model(&models.InsightRecord{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("更新洞察记录失败: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, updates["status"])
	}
	return s.Get(ctx, id)
}
