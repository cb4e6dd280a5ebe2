/*
 * @module service/batch_scan/filter
 * @description 批量候选筛选，在组装完整分析上下文之前用领域评分器剔除数据不足的候选实体
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 候选列表 -> 逐个评分 -> 保留充分的候选
 * @rules 候选原有顺序保持不变；不修改候选参数；遇到数据层错误立即返回
 * @dependencies gorm.io/gorm
 * @refs service/context_quality/scorer.go, service/batch_scan/scanner.go
 */

package batch_scan

import (
	"context"
	"fmt"

	"fieldops-insight-service/service/context_quality"
	"fieldops-insight-service/service/models"
	"fieldops-insight-service/service/monitoring"

	"gorm.io/gorm"
)

// FilterCandidates 保留评分充分的候选实体
// 候选参数缺少实体ID时使用 EntityID 补齐
func FilterCandidates(ctx context.Context, db *gorm.DB, scorer *context_quality.Scorer, candidates []models.Candidate, threshold float64) ([]models.Candidate, error) {
	def := scorer.Definition()
	retained := make([]models.Candidate, 0, len(candidates))

	for _, candidate := range candidates {
		params := make(map[string]interface{}, len(candidate.Params)+2)
		for k, v := range candidate.Params {
			params[k] = v
		}
		if _, ok := params[def.IDKey]; !ok && candidate.EntityID != "" {
			params[def.IDKey] = candidate.EntityID
		}
		params[context_quality.ThresholdParamKey] = threshold

		result, err := scorer.Score(ctx, db, params)
		if err != nil {
			return nil, fmt.Errorf("筛选候选 %s/%s 失败: %w", candidate.EntityType, candidate.EntityID, err)
		}

		if result.Sufficient {
			monitoring.BatchCandidates.WithLabelValues(def.Domain, "retained").Inc()
			retained = append(retained, candidate)
		} else {
			monitoring.BatchCandidates.WithLabelValues(def.Domain, "dropped").Inc()
		}
	}
	return retained, nil
}
