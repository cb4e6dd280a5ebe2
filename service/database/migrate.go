/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新洞察引擎自有表结构及索引
 * @architecture 数据访问层 - 迁移管理
 * @documentReference DESIGN.md
 * @stateFlow 应用启动时执行数据库迁移
 * @rules 业务实体表由外围系统维护，仅在显式开启时迁移（本地开发/测试）
 * @dependencies fieldops-insight-service/service/models, gorm.io/gorm
 * @refs service/init.go, testutil/test_helper.go
 */

package database

import (
	"fmt"
	"log/slog"

	"fieldops-insight-service/service/models"

	"gorm.io/gorm"
)

// OwnedModels 本服务拥有的表
func OwnedModels() []interface{} {
	return []interface{}{
		&models.InsightRecord{},
		&models.SystemConfig{},
	}
}

// EntityModels 外围业务系统的实体表
func EntityModels() []interface{} {
	return []interface{}{
		&models.Ticket{},
		&models.TicketComment{},
		&models.TicketSLAEvent{},
		&models.Conversation{},
		&models.ConversationMessage{},
		&models.Project{},
		&models.ProjectTask{},
		&models.MessageTemplate{},
		&models.Campaign{},
		&models.CampaignRecipient{},
		&models.Technician{},
		&models.WorkOrder{},
		&models.WorkOrderSchedule{},
		&models.Vendor{},
		&models.VendorQuote{},
		&models.Person{},
		&models.PerformanceScore{},
		&models.Contact{},
		&models.Subscription{},
	}
}

// AutoMigrate 自动迁移本服务的表结构
func AutoMigrate(db *gorm.DB) error {
	slog.Info("开始数据库迁移...")

	if err := db.AutoMigrate(OwnedModels()...); err != nil {
		return fmt.Errorf("迁移洞察相关表失败: %w", err)
	}
	if err := CreateInsightIndexes(db); err != nil {
		return err
	}

	slog.Info("数据库迁移完成")
	return nil
}

// AutoMigrateEntities 迁移业务实体表
func AutoMigrateEntities(db *gorm.DB) error {
	if err := db.AutoMigrate(EntityModels()...); err != nil {
		return fmt.Errorf("迁移业务实体表失败: %w", err)
	}
	slog.Info("业务实体表迁移完成")
	return nil
}

// CreateInsightIndexes 创建洞察记录的查询索引
func CreateInsightIndexes(db *gorm.DB) error {
	indexQueries := []string{
		"CREATE INDEX IF NOT EXISTS idx_insight_domain_status_created ON insight_records(domain, status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_insight_pending_created ON insight_records(created_at) WHERE status = 'pending'",
	}

	for _, query := range indexQueries {
		if err := db.Exec(query).Error; err != nil {
			slog.Error("创建洞察记录索引失败", "query", query, "error", err)
			return fmt.Errorf("创建洞察记录索引失败: %w", err)
		}
	}
	return nil
}
