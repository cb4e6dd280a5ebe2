package batch_scan

import (
	"context"
	"fmt"
	"time"

	"fieldops-insight-service/service/context_quality"
	"fieldops-insight-service/service/models"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// DiscoverCandidates 列出领域主表中回溯窗口内有更新的实体，按更新时间倒序
func DiscoverCandidates(ctx context.Context, db *gorm.DB, def *context_quality.DomainDefinition, since time.Time, limit int) ([]models.Candidate, error) {
	if def.Table == "" {
		return nil, fmt.Errorf("领域 %s 未定义主表", def.Domain)
	}

	var ids []int64
	query := db.WithContext(ctx).
		Table(def.Table).
		Where("deleted_at IS NULL AND updated_at >= ?", since).
		Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("查询领域 %s 候选实体失败: %w", def.Domain, err)
	}

	candidates := make([]models.Candidate, 0, len(ids))
	for _, id := range ids {
		entityID := cast.ToString(id)
		candidates = append(candidates, models.Candidate{
			EntityType: def.EntityType,
			EntityID:   entityID,
			Params:     map[string]interface{}{def.IDKey: id},
		})
	}
	return candidates, nil
}
