package context_quality

import (
	"context"
	"time"

	"fieldops-insight-service/service/models"

	"gorm.io/gorm"
)

// recentScoreWindow 近期评分的时间窗口
const recentScoreWindow = 90 * 24 * time.Hour

// performanceDefinition 员工绩效，离职（停用）人员视为不存在
func performanceDefinition() *DomainDefinition {
	return &DomainDefinition{
		Domain:           models.DomainPerformance,
		IDKey:            "person_id",
		EntityNoun:       "person",
		EntityType:       "person",
		Table:            "people",
		DefaultThreshold: 0.30,
		Load:             loadByID[models.Person]("is_active = ?", true),
		Signals: []Signal{
			presence("name", 100, func(p *models.Person) bool { return hasText(p.FullName) }),
			presence("job_title", 100, func(p *models.Person) bool { return hasText(p.JobTitle) }),
			presence("manager", 100, func(p *models.Person) bool { return p.ManagerID != nil }),
			related("scores", 350, 3, &models.PerformanceScore{}, "person_id = ?"),
			relatedFunc("recent_score", 250, 1, func(ctx context.Context, db *gorm.DB, id int64) (int64, error) {
				var count int64
				since := time.Now().Add(-recentScoreWindow)
				err := db.WithContext(ctx).Model(&models.PerformanceScore{}).
					Where("person_id = ? AND recorded_at >= ?", id, since).
					Count(&count).Error
				return count, err
			}),
			relatedFunc("metric_coverage", 100, 3, func(ctx context.Context, db *gorm.DB, id int64) (int64, error) {
				var count int64
				err := db.WithContext(ctx).Model(&models.PerformanceScore{}).
					Where("person_id = ?", id).
					Distinct("metric").
					Count(&count).Error
				return count, err
			}),
		},
	}
}
