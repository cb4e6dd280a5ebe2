/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、配置加载以及洞察引擎各组件的装配
 * @architecture 分层架构 - 服务层
 * @documentReference DESIGN.md
 * @stateFlow 数据库连接 -> 迁移 -> 配置 -> 角色/评分器 -> 事件通道 -> 限流 -> 门控 -> 聚合/扫描/过期任务 -> 实体变更监听
 * @rules 组件显式构建并通过 Services 传递，不使用包级全局变量；任一必需组件失败则启动失败
 * @dependencies gorm.io/gorm, fieldops-insight-service/service/*
 * @refs main.go, api/routes.go
 */

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fieldops-insight-service/service/batch_scan"
	"fieldops-insight-service/service/cleanup"
	"fieldops-insight-service/service/config"
	"fieldops-insight-service/service/context_quality"
	"fieldops-insight-service/service/database"
	"fieldops-insight-service/service/distributed_lock"
	"fieldops-insight-service/service/domain_health"
	"fieldops-insight-service/service/entity_change"
	"fieldops-insight-service/service/event"
	"fieldops-insight-service/service/intelligence"
	"fieldops-insight-service/service/rate_limiter"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// Services 洞察引擎组件集合
type Services struct {
	DB         *gorm.DB
	Config     *config.ConfigService
	Personas   *intelligence.PersonaRegistry
	Scorers    *context_quality.Registry
	Publisher  event.Publisher
	Gate       *intelligence.QualityGate
	Aggregator *domain_health.Aggregator
	Scanner    *batch_scan.Scanner
	Expiry     *cleanup.InsightExpiryService
	Limiter    rate_limiter.Limiter
	// Changes 仅在 ENTITY_CHANGE_LISTEN=true 时创建
	Changes *entity_change.Listener

	redisLock *distributed_lock.RedisLock
	started   bool
}

// Options 组件装配参数
type Options struct {
	Analyzer  intelligence.Analyzer
	Publisher event.Publisher
	Lock      distributed_lock.DistributedLock
	Limiter   rate_limiter.Limiter
}

// Initialize 按环境变量完成生产环境装配
func Initialize(ctx context.Context) (*Services, error) {
	db, err := database.OpenPostgres(database.PostgresDSNFromEnv())
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(db, os.Getenv("DB_SCHEMA")); err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	if os.Getenv("MIGRATE_ENTITY_TABLES") == "true" {
		if err := database.AutoMigrateEntities(db); err != nil {
			return nil, err
		}
	}

	cfg := config.NewConfigService(db)
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.Manager().LoadFile(path); err != nil {
			return nil, err
		}
	}

	redisLock, err := distributed_lock.NewRedisLockFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	var lock distributed_lock.DistributedLock
	var limiter rate_limiter.Limiter
	if redisLock != nil {
		lock = redisLock
		limiter = rate_limiter.NewRedisRateLimiter(redisLock.Client())
	} else {
		slog.Info("未配置Redis，批量扫描与调用限流使用进程内实现")
	}

	publisher, err := publishersFromEnv()
	if err != nil {
		if redisLock != nil {
			redisLock.Close()
		}
		return nil, err
	}

	services, err := NewServices(db, cfg, Options{
		Analyzer:  intelligence.NewHTTPAnalyzerFromEnv(),
		Publisher: publisher,
		Lock:      lock,
		Limiter:   limiter,
	})
	if err != nil {
		publisher.Close()
		if redisLock != nil {
			redisLock.Close()
		}
		return nil, err
	}
	services.redisLock = redisLock

	if os.Getenv("ENTITY_CHANGE_LISTEN") == "true" {
		if os.Getenv("ENTITY_CHANGE_TRIGGERS") == "true" {
			if err := entity_change.EnsureTriggers(db, services.Scorers); err != nil {
				services.Close()
				return nil, err
			}
		}
		cooldown := time.Duration(cast.ToInt(os.Getenv("ENTITY_CHANGE_COOLDOWN_SECONDS"))) * time.Second
		services.Changes = entity_change.NewListener(services.Gate, database.PostgresDSNFromEnv(), cooldown)
	}
	return services, nil
}

// NewServices 基于已有数据库与配置装配组件
func NewServices(db *gorm.DB, cfg *config.ConfigService, opts Options) (*Services, error) {
	base, err := intelligence.NewPersonaRegistry()
	if err != nil {
		return nil, err
	}
	personas, err := base.WithOverrides(cfg)
	if err != nil {
		return nil, fmt.Errorf("应用角色策略覆盖失败: %w", err)
	}

	scorers, err := context_quality.NewRegistry()
	if err != nil {
		return nil, err
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher = event.NoopPublisher{}
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate_limiter.NewLocalRateLimiter()
	}

	gate := intelligence.NewQualityGate(db, personas, scorers, opts.Analyzer, publisher)

	services := &Services{
		DB:         db,
		Config:     cfg,
		Personas:   personas,
		Scorers:    scorers,
		Publisher:  publisher,
		Gate:       gate,
		Aggregator: domain_health.NewAggregator(db, cfg),
		Scanner:    batch_scan.NewScanner(db, gate, cfg, opts.Lock),
		Expiry:     cleanup.NewInsightExpiryService(gate.Store(), cfg, opts.Lock),
		Limiter:    limiter,
	}

	slog.Info("洞察引擎组件初始化完成",
		"personas", len(personas.List()),
		"domains", len(scorers.Domains()),
		"publisher", publisher.Name())
	return services, nil
}

// Start 启动定时任务
func (s *Services) Start() error {
	if err := s.Scanner.Start(); err != nil {
		return err
	}
	if err := s.Expiry.StartScheduledExpiry(os.Getenv("INSIGHT_EXPIRY_SCHEDULE")); err != nil {
		s.Scanner.Stop()
		return err
	}
	if s.Changes != nil {
		if err := s.Changes.Start(); err != nil {
			s.Scanner.Stop()
			s.Expiry.StopScheduledExpiry()
			return err
		}
	}
	s.started = true
	return nil
}

// Close 停止定时任务并释放外部连接
func (s *Services) Close() error {
	if s.started {
		s.Scanner.Stop()
		s.Expiry.StopScheduledExpiry()
		if s.Changes != nil {
			s.Changes.Stop()
		}
		s.started = false
	}

	var errs []error
	if err := s.Publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.redisLock != nil {
		if err := s.redisLock.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ping 检查数据库连通性
func (s *Services) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// publishersFromEnv 根据 KAFKA_BROKERS / MQTT_BROKER 组装事件通道
func publishersFromEnv() (event.Publisher, error) {
	publishers := make([]event.Publisher, 0, 2)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		publishers = append(publishers, event.NewKafkaPublisher(brokers, os.Getenv("KAFKA_INSIGHT_TOPIC")))
	}

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		clientID := getEnvWithDefault("MQTT_CLIENT_ID", "fieldops-insight-"+uuid.New().String()[:8])
		p, err := event.NewMQTTPublisher(broker, clientID,
			os.Getenv("MQTT_USERNAME"), os.Getenv("MQTT_PASSWORD"), os.Getenv("MQTT_TOPIC_PREFIX"))
		if err != nil {
			for _, opened := range publishers {
				opened.Close()
			}
			return nil, err
		}
		publishers = append(publishers, p)
	}

	if len(publishers) == 0 {
		return event.NoopPublisher{}, nil
	}
	multi := event.NewMultiPublisher(publishers...)
	slog.Info("洞察事件发布已启用", "sinks", multi.Len())
	return multi, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
