package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Trigger
	CronSecret    string
	AdminAPIToken string

	// Publish
	PublishTimeout       time.Duration
	PublishMaxBodySize   int64
	PublishMaxConcurrent int
	PublishBatchLimit    int
	PublishMaxAttempts   int
	PublishClaimGrace    time.Duration
	PublishInterval      time.Duration
	SiteRatePerMinute    int

	// Cleanup
	PostRetentionDays int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.CronSecret = os.Getenv("CRON_SECRET")
	if cfg.CronSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}

	cfg.AdminAPIToken = os.Getenv("ADMIN_API_TOKEN")
	if cfg.AdminAPIToken == "" {
		missing = append(missing, "ADMIN_API_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.PublishTimeout = getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second)
	cfg.PublishMaxBodySize = getEnvInt64("PUBLISH_MAX_BODY_SIZE", 10485760)
	cfg.PublishMaxConcurrent = getEnvInt("PUBLISH_MAX_CONCURRENT", 4)
	cfg.PublishBatchLimit = getEnvInt("PUBLISH_BATCH_LIMIT", 50)
	cfg.PublishMaxAttempts = getEnvInt("PUBLISH_MAX_ATTEMPTS", 1)
	cfg.PublishClaimGrace = getEnvDuration("PUBLISH_CLAIM_GRACE", 15*time.Minute)
	cfg.PublishInterval = getEnvDuration("PUBLISH_INTERVAL", time.Minute)
	cfg.SiteRatePerMinute = getEnvInt("SITE_RATE_PER_MINUTE", 10)
	cfg.PostRetentionDays = getEnvInt("POST_RETENTION_DAYS", 180)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
