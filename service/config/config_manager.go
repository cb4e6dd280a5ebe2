/*
 * @module service/config/config_manager
 * @description 配置管理器，按 数据库 > 配置文件 的优先级解析配置键，并对读取结果做短期缓存
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 配置文件加载 -> 数据库查询 -> 缓存 -> 返回
 * @rules 数据库中的配置始终覆盖文件配置；写入后立即失效对应缓存
 * @dependencies fieldops-insight-service/service/models, gorm.io/gorm, gopkg.in/yaml.v3
 * @refs service/config/config_service.go
 */

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fieldops-insight-service/service/models"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// DefaultEnvironment 默认配置环境
const DefaultEnvironment = "default"

// ErrConfigNotFound 配置项不存在
var ErrConfigNotFound = errors.New("配置项不存在")

type cacheEntry struct {
	value     string
	source    string
	missing   bool
	expiresAt time.Time
}

// ConfigManager 配置管理器
type ConfigManager struct {
	db          *gorm.DB
	environment string

	// 配置文件中的扁平化键值
	fileValues map[string]string
	fileLock   sync.RWMutex

	// 缓存
	configCache map[string]cacheEntry
	cacheLock   sync.RWMutex
	cacheExpiry time.Duration
}

// NewConfigManager 创建配置管理器实例
func NewConfigManager(db *gorm.DB) *ConfigManager {
	return &ConfigManager{
		db:          db,
		environment: DefaultEnvironment,
		fileValues:  make(map[string]string),
		configCache: make(map[string]cacheEntry),
		cacheExpiry: time.Minute,
	}
}

// SetCacheExpiry 设置缓存有效期，0 表示不缓存
func (c *ConfigManager) SetCacheExpiry(d time.Duration) {
	c.cacheExpiry = d
}

// LoadFile 加载配置文件（yaml/json），嵌套键展开为点分形式
// 例如 persona.ticket_analyst.min_context_quality
func (c *ConfigManager) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	raw := make(map[string]interface{})
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".json":
		err = json.Unmarshal(data, &raw)
	default:
		return fmt.Errorf("不支持的配置文件格式: %s", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	values := make(map[string]string)
	flatten("", raw, values)

	c.fileLock.Lock()
	c.fileValues = values
	c.fileLock.Unlock()
	c.ClearCache()

	slog.Info("配置文件加载完成", "path", path, "keys", len(values))
	return nil
}

// GetConfig 获取配置值
func (c *ConfigManager) GetConfig(key string) (string, error) {
	value, _, err := c.lookup(key)
	return value, err
}

// lookup 返回配置值及其来源（database/file）
func (c *ConfigManager) lookup(key string) (string, string, error) {
	if c.cacheExpiry > 0 {
		c.cacheLock.RLock()
		entry, ok := c.configCache[key]
		c.cacheLock.RUnlock()
		if ok && time.Now().Before(entry.expiresAt) {
			if entry.missing {
				return "", "", fmt.Errorf("%w: %s", ErrConfigNotFound, key)
			}
			return entry.value, entry.source, nil
		}
	}

	value, source, err := c.resolve(key)
	missing := errors.Is(err, ErrConfigNotFound)
	if err != nil && !missing {
		return "", "", err
	}

	// 未配置的键同样缓存，避免每次请求都回查数据库
	if c.cacheExpiry > 0 {
		c.cacheLock.Lock()
		c.configCache[key] = cacheEntry{value: value, source: source, missing: missing, expiresAt: time.Now().Add(c.cacheExpiry)}
		c.cacheLock.Unlock()
	}
	if missing {
		return "", "", err
	}
	return value, source, nil
}

func (c *ConfigManager) resolve(key string) (string, string, error) {
	if c.db != nil {
		var record models.SystemConfig
		err := c.db.Where("key = ? AND environment = ?", key, c.environment).First(&record).Error
		if err == nil {
			return record.Value, "database", nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", fmt.Errorf("查询配置失败: %w", err)
		}
	}

	c.fileLock.RLock()
	value, ok := c.fileValues[key]
	c.fileLock.RUnlock()
	if ok {
		return value, "file", nil
	}

	return "", "", fmt.Errorf("%w: %s", ErrConfigNotFound, key)
}

// SetConfig 写入或更新配置
func (c *ConfigManager) SetConfig(key, value, description string) error {
	if c.db == nil {
		return errors.New("配置数据库未初始化")
	}

	err := c.db.Transaction(func(tx *gorm.DB) error {
		var record models.SystemConfig
		err := tx.Where("key = ? AND environment = ?", key, c.environment).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.SystemConfig{
				ID:          uuid.New().String(),
				Key:         key,
				Value:       value,
				Environment: c.environment,
				Version:     "1",
				Description: description,
			}).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"value":   value,
			"version": cast.ToString(cast.ToInt(record.Version) + 1),
		}
		if description != "" {
			updates["description"] = description
		}
		return tx.Model(&record).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}

	c.cacheLock.Lock()
	delete(c.configCache, key)
	c.cacheLock.Unlock()

	slog.Info("配置已更新", "key", key, "value", value)
	return nil
}

// ListStored 列出数据库中当前环境的配置
func (c *ConfigManager) ListStored() ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if c.db == nil {
		return configs, nil
	}
	if err := c.db.Where("environment = ?", c.environment).Order("key").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("查询配置失败: %w", err)
	}
	return configs, nil
}

// ClearCache 清除配置缓存
func (c *ConfigManager) ClearCache() {
	c.cacheLock.Lock()
	c.configCache = make(map[string]cacheEntry)
	c.cacheLock.Unlock()
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch typed := v.(type) {
		case map[string]interface{}:
			flatten(key, typed, out)
		default:
			out[key] = cast.ToString(typed)
		}
	}
}
