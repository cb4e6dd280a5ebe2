package database

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cast"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresDSNFromEnv 优先使用 DATABASE_URL，否则由 DB_* 环境变量拼接
func PostgresDSNFromEnv() string {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=%s",
		getEnvWithDefault("DB_HOST", "localhost"),
		getEnvWithDefault("DB_PORT", "5432"),
		getEnvWithDefault("DB_USER", "postgres"),
		getEnvWithDefault("DB_PASSWORD", "postgres"),
		getEnvWithDefault("DB_NAME", "postgres"),
		getEnvWithDefault("DB_SSLMODE", "disable"),
		getEnvWithDefault("DB_SCHEMA", "public"),
		getEnvWithDefault("DB_TIMEZONE", "UTC"))
}

// OpenPostgres 打开数据库连接并设置连接池
func OpenPostgres(dsn string) (*gorm.DB, error) {
	logLevel := logger.Warn
	if os.Getenv("DB_DEBUG") == "true" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(cast.ToInt(getEnvWithDefault("DB_MAX_OPEN_CONNS", "20")))
	sqlDB.SetMaxIdleConns(cast.ToInt(getEnvWithDefault("DB_MAX_IDLE_CONNS", "5")))
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	slog.Info("数据库连接成功")
	return db, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
