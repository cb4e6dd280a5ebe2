/*
 * @module service/models/system_config
 * @description 系统配置模型，存储可在运行时调整的洞察引擎参数（角色策略覆盖、报表阈值、批量扫描参数）
 * @architecture 数据模型层
 * @documentReference DESIGN.md
 * @stateFlow 配置存储 -> 配置读取 -> 配置更新
 * @rules 同一环境下配置键唯一；配置值统一以文本存储，读取时按需转换类型
 * @dependencies gorm.io/gorm
 * @refs service/config/config_service.go
 */

package models

import (
	"time"

	"gorm.io/gorm"
)

// SystemConfig 系统配置模型
type SystemConfig struct {
	ID          string         `gorm:"type:varchar(50);primaryKey" json:"id"`
	Key         string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_config_key_env" json:"key"`
	Value       string         `gorm:"type:text;not null" json:"value"`
	Environment string         `gorm:"type:varchar(20);not null;uniqueIndex:idx_config_key_env" json:"environment"`
	Version     string         `gorm:"type:varchar(20)" json:"version"`
	Description string         `gorm:"type:text" json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty" swaggertype:"string"`
}

// TableName 指定表名
func (SystemConfig) TableName() string {
	return "system_configs"
}

// SystemConfigItem 对外展示的配置项
type SystemConfigItem struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
	ValueType   string `json:"value_type"`
	Source      string `json:"source"`
}
