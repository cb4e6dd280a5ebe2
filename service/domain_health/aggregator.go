/*
 * @module service/domain_health/aggregator
 * @description 领域健康聚合，按时间窗口汇总洞察记录的上下文质量、分析结果与常见缺失字段
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 窗口裁剪 -> 聚合查询 -> 跳过记录缺失字段统计 -> 报告
 * @rules 只统计质量评分非空的记录；空窗口返回零值且平均置信度为 null；窗口天数限制在 [1, 90]
 * @dependencies gorm.io/gorm
 * @refs service/models/insight.go, api/controllers/intelligence_controller.go
 */

package domain_health

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"fieldops-insight-service/service/models"

	"gorm.io/gorm"
)

const (
	// DefaultWindowDays 默认统计窗口
	DefaultWindowDays = 30
	// MaxWindowDays 最大统计窗口
	MaxWindowDays = 90
	// DefaultReportingThreshold 统一报表阈值，仅用于跨领域比较
	DefaultReportingThreshold = 0.50

	missingFieldSampleSize = 200
	topMissingFields       = 5
)

// ThresholdSource 报表阈值来源
type ThresholdSource interface {
	GetReportingThreshold() float64
}

// Aggregator 领域健康聚合器
type Aggregator struct {
	db         *gorm.DB
	thresholds ThresholdSource
	now        func() time.Time
}

// NewAggregator 创建聚合器，thresholds 为 nil 时使用默认阈值
func NewAggregator(db *gorm.DB, thresholds ThresholdSource) *Aggregator {
	return &Aggregator{db: db, thresholds: thresholds, now: time.Now}
}

// ClampWindowDays 将窗口天数限制在 [1, 90]，非正数取默认值
func ClampWindowDays(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	if days > MaxWindowDays {
		return MaxWindowDays
	}
	return days
}

type aggregateRow struct {
	Total         int64
	AvgScore      *float64
	AboveCount    int64
	Completed     int64
	Skipped       int64
	AvgConfidence *float64
}

// DomainReport 单领域健康报告
func (a *Aggregator) DomainReport(ctx context.Context, domain string, windowDays int) (*models.DomainHealthReport, error) {
	if !models.IsValidDomain(domain) {
		return nil, fmt.Errorf("未知的领域: %s", domain)
	}

	windowDays = ClampWindowDays(windowDays)
	threshold := a.reportingThreshold()
	since := a.now().Add(-time.Duration(windowDays) * 24 * time.Hour)

	var row aggregateRow
	err := a.windowQuery(ctx, domain, since).
		Select(`COUNT(*) AS total,
			AVG(context_quality_score) AS avg_score,
			COALESCE(SUM(CASE WHEN context_quality_score >= ? THEN 1 ELSE 0 END), 0) AS above_count,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS skipped,
			AVG(CASE WHEN status = ? THEN confidence_score END) AS avg_confidence`,
			threshold, models.InsightStatusCompleted, models.InsightStatusSkipped, models.InsightStatusCompleted).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("聚合领域 %s 洞察记录失败: %w", domain, err)
	}

	report := &models.DomainHealthReport{
		Domain:                domain,
		TotalEntitiesScanned:  row.Total,
		CommonMissingFields:   []string{},
		InsightCountCompleted: row.Completed,
		InsightCountSkipped:   row.Skipped,
		WindowDays:            windowDays,
		ReportingThreshold:    threshold,
	}
	if row.Total > 0 {
		if row.AvgScore != nil {
			report.AvgContextQuality = round(*row.AvgScore, 4)
		}
		report.PctAboveThreshold = round(float64(row.AboveCount)*100/float64(row.Total), 1)
	}
	if row.Completed > 0 && row.AvgConfidence != nil {
		v := round(*row.AvgConfidence, 4)
		report.AvgConfidenceScore = &v
	}

	missing, err := a.commonMissingFields(ctx, domain, since)
	if err != nil {
		return nil, err
	}
	report.CommonMissingFields = missing
	return report, nil
}

// AllDomainsReport 全部领域健康报告，按固定领域顺序
func (a *Aggregator) AllDomainsReport(ctx context.Context, windowDays int) ([]*models.DomainHealthReport, error) {
	reports := make([]*models.DomainHealthReport, 0, len(models.AllDomains))
	for _, domain := range models.AllDomains {
		report, err := a.DomainReport(ctx, domain, windowDays)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// commonMissingFields 统计最近跳过记录中的缺失字段，频次相同按首次出现顺序
func (a *Aggregator) commonMissingFields(ctx context.Context, domain string, since time.Time) ([]string, error) {
	var records []models.InsightRecord
	err := a.windowQuery(ctx, domain, since).
		Select("id", "structured_output", "created_at").
		Where("status = ?", models.InsightStatusSkipped).
		Order("created_at DESC").
		Limit(missingFieldSampleSize).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询领域 %s 跳过记录失败: %w", domain, err)
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, r := range records {
		for _, field := range r.StructuredOutput.StringSlice("missing_fields") {
			if _, seen := counts[field]; !seen {
				order = append(order, field)
			}
			counts[field]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > topMissingFields {
		order = order[:topMissingFields]
	}
	return order, nil
}

func (a *Aggregator) windowQuery(ctx context.Context, domain string, since time.Time) *gorm.DB {
	return a.db.WithContext(ctx).
		Model(&models.InsightRecord{}).
		Where("domain = ? AND created_at >= ? AND context_quality_score IS NOT NULL", domain, since)
}

func (a *Aggregator) reportingThreshold() float64 {
	if a.thresholds == nil {
		return DefaultReportingThreshold
	}
	return a.thresholds.GetReportingThreshold()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
