/*
 * @module service/config/config_service
 * @description 配置服务，为洞察引擎提供类型化的运行时参数读取
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 服务调用 -> 配置管理器 -> 数据库/配置文件/默认值
 * @rules 配置缺失或格式错误时回退默认值并记录告警，不向调用方返回错误
 * @dependencies fieldops-insight-service/service/models, gorm.io/gorm, github.com/spf13/cast
 * @refs service/config/config_manager.go, service/intelligence/persona.go
 */

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"fieldops-insight-service/service/models"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// 配置键
const (
	ConfigKeyReportingThreshold   = "intelligence.reporting_threshold"
	ConfigKeyBatchConcurrency     = "intelligence.batch.concurrency"
	ConfigKeyBatchLookbackDays    = "intelligence.batch.lookback_days"
	ConfigKeyPendingExpiryMinutes = "intelligence.pending_expiry_minutes"
	ConfigKeyInvokeRateLimit      = "intelligence.invoke.rate_limit"
	ConfigKeyInvokeRateWindow     = "intelligence.invoke.rate_window_seconds"
	ConfigKeyInvokePersonaLimit   = "intelligence.invoke.persona_rate_limit"

	personaKeyPrefix = "persona."
)

// 默认值
const (
	DefaultReportingThreshold   = 0.50
	DefaultBatchConcurrency     = 4
	DefaultBatchLookbackDays    = 7
	DefaultPendingExpiryMinutes = 60
	DefaultInvokeRateLimit      = 30
	DefaultInvokeRateWindow     = 60
	DefaultInvokePersonaLimit   = 0
)

// PersonaOverride 角色策略覆盖项，nil 表示未覆盖
type PersonaOverride struct {
	MinContextQuality *float64
	SkipOnLowQuality  *bool
	ScanSchedule      *string
	ScanLimit         *int
}

// IsEmpty 是否没有任何覆盖
func (o PersonaOverride) IsEmpty() bool {
	return o.MinContextQuality == nil && o.SkipOnLowQuality == nil && o.ScanSchedule == nil && o.ScanLimit == nil
}

// ConfigService 配置服务
type ConfigService struct {
	db      *gorm.DB
	manager *ConfigManager
}

// NewConfigService 创建配置服务实例
func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{
		db:      db,
		manager: NewConfigManager(db),
	}
}

// Manager 返回底层配置管理器
func (s *ConfigService) Manager() *ConfigManager {
	return s.manager
}

// GetSystemConfig 获取系统配置
func (s *ConfigService) GetSystemConfig(key string) (string, error) {
	return s.manager.GetConfig(key)
}

// SetSystemConfig 设置系统配置
func (s *ConfigService) SetSystemConfig(key, value, description string) error {
	return s.manager.SetConfig(key, value, description)
}

// GetAllSystemConfigs 获取所有系统配置，未存储的内置项以默认值补齐
func (s *ConfigService) GetAllSystemConfigs() ([]models.SystemConfigItem, error) {
	stored, err := s.manager.ListStored()
	if err != nil {
		return nil, err
	}

	items := make([]models.SystemConfigItem, 0, len(stored)+7)
	existingKeys := make(map[string]bool, len(stored))
	for _, c := range stored {
		items = append(items, models.SystemConfigItem{
			Key:         c.Key,
			Value:       c.Value,
			Description: c.Description,
			ValueType:   "string",
			Source:      "database",
		})
		existingKeys[c.Key] = true
	}

	defaults := []models.SystemConfigItem{
		{Key: ConfigKeyReportingThreshold, Value: cast.ToString(DefaultReportingThreshold), Description: "领域健康报表的统一质量阈值", ValueType: "float"},
		{Key: ConfigKeyBatchConcurrency, Value: cast.ToString(DefaultBatchConcurrency), Description: "批量扫描并发调用数", ValueType: "int"},
		{Key: ConfigKeyBatchLookbackDays, Value: cast.ToString(DefaultBatchLookbackDays), Description: "批量扫描候选实体回溯天数", ValueType: "int"},
		{Key: ConfigKeyPendingExpiryMinutes, Value: cast.ToString(DefaultPendingExpiryMinutes), Description: "待处理洞察超时过期分钟数", ValueType: "int"},
		{Key: ConfigKeyInvokeRateLimit, Value: cast.ToString(DefaultInvokeRateLimit), Description: "单个发起人在窗口内的手动调用上限，0 表示不限流", ValueType: "int"},
		{Key: ConfigKeyInvokeRateWindow, Value: cast.ToString(DefaultInvokeRateWindow), Description: "手动调用限流窗口秒数", ValueType: "int"},
		{Key: ConfigKeyInvokePersonaLimit, Value: cast.ToString(DefaultInvokePersonaLimit), Description: "单个分析角色在窗口内的手动调用总上限，0 表示不限流", ValueType: "int"},
	}
	for _, d := range defaults {
		if !existingKeys[d.Key] {
			d.Source = "default"
			items = append(items, d)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

// GetReportingThreshold 获取领域健康报表阈值
func (s *ConfigService) GetReportingThreshold() float64 {
	v := s.getFloat(ConfigKeyReportingThreshold, DefaultReportingThreshold)
	if v < 0 || v > 1 {
		slog.Warn("报表阈值超出范围，使用默认值", "value", v)
		return DefaultReportingThreshold
	}
	return v
}

// GetBatchConcurrency 获取批量扫描并发数
func (s *ConfigService) GetBatchConcurrency() int {
	v := s.getInt(ConfigKeyBatchConcurrency, DefaultBatchConcurrency)
	if v < 1 {
		return DefaultBatchConcurrency
	}
	return v
}

// GetBatchLookbackDays 获取批量扫描回溯天数
func (s *ConfigService) GetBatchLookbackDays() int {
	v := s.getInt(ConfigKeyBatchLookbackDays, DefaultBatchLookbackDays)
	if v < 1 {
		return DefaultBatchLookbackDays
	}
	return v
}

// GetPendingExpiryMinutes 获取待处理洞察过期时间
func (s *ConfigService) GetPendingExpiryMinutes() int {
	v := s.getInt(ConfigKeyPendingExpiryMinutes, DefaultPendingExpiryMinutes)
	if v < 1 {
		return DefaultPendingExpiryMinutes
	}
	return v
}

// InvokeRateLimit 手动调用限流参数，上限为 0 表示该维度不限流
type InvokeRateLimit struct {
	PerInitiator int
	PerPersona   int
	Window       time.Duration
}

// GetInvokeRateLimit 获取手动调用限流参数
func (s *ConfigService) GetInvokeRateLimit() InvokeRateLimit {
	limits := InvokeRateLimit{
		PerInitiator: s.getInt(ConfigKeyInvokeRateLimit, DefaultInvokeRateLimit),
		PerPersona:   s.getInt(ConfigKeyInvokePersonaLimit, DefaultInvokePersonaLimit),
	}
	if limits.PerInitiator < 0 {
		limits.PerInitiator = DefaultInvokeRateLimit
	}
	if limits.PerPersona < 0 {
		limits.PerPersona = DefaultInvokePersonaLimit
	}
	window := s.getInt(ConfigKeyInvokeRateWindow, DefaultInvokeRateWindow)
	if window < 1 {
		window = DefaultInvokeRateWindow
	}
	limits.Window = time.Duration(window) * time.Second
	return limits
}

// GetPersonaPolicyOverride 读取 persona.<key>.* 形式的角色策略覆盖
func (s *ConfigService) GetPersonaPolicyOverride(personaKey string) PersonaOverride {
	var override PersonaOverride
	prefix := personaKeyPrefix + personaKey + "."

	if raw, ok := s.lookup(prefix + "min_context_quality"); ok {
		if v, err := cast.ToFloat64E(raw); err == nil && v >= 0 && v <= 1 {
			override.MinContextQuality = &v
		} else {
			slog.Warn("角色阈值配置无效，已忽略", "persona", personaKey, "value", raw)
		}
	}
	if raw, ok := s.lookup(prefix + "skip_on_low_quality"); ok {
		if v, err := cast.ToBoolE(raw); err == nil {
			override.SkipOnLowQuality = &v
		} else {
			slog.Warn("角色跳过策略配置无效，已忽略", "persona", personaKey, "value", raw)
		}
	}
	if raw, ok := s.lookup(prefix + "scan_schedule"); ok && raw != "" {
		override.ScanSchedule = &raw
	}
	if raw, ok := s.lookup(prefix + "scan_limit"); ok {
		if v, err := cast.ToIntE(raw); err == nil && v > 0 {
			override.ScanLimit = &v
		} else {
			slog.Warn("角色扫描上限配置无效，已忽略", "persona", personaKey, "value", raw)
		}
	}
	return override
}

// SetPersonaPolicy 写入角色策略字段
func (s *ConfigService) SetPersonaPolicy(personaKey, field string, value interface{}) error {
	switch field {
	case "min_context_quality", "skip_on_low_quality", "scan_schedule", "scan_limit":
	default:
		return fmt.Errorf("不支持的角色策略字段: %s", field)
	}
	return s.manager.SetConfig(personaKeyPrefix+personaKey+"."+field, cast.ToString(value), "角色策略覆盖")
}

// ClearCache 清除配置缓存
func (s *ConfigService) ClearCache() {
	s.manager.ClearCache()
}

func (s *ConfigService) lookup(key string) (string, bool) {
	value, err := s.manager.GetConfig(key)
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			slog.Warn("读取配置失败", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

func (s *ConfigService) getFloat(key string, def float64) float64 {
	raw, ok := s.lookup(key)
	if !ok {
		return def
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		slog.Warn("配置值格式错误，使用默认值", "key", key, "value", raw)
		return def
	}
	return v
}

func (s *ConfigService) getInt(key string, def int) int {
	raw, ok := s.lookup(key)
	if !ok {
		return def
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		slog.Warn("配置值格式错误，使用默认值", "key", key, "value", raw)
		return def
	}
	return v
}
