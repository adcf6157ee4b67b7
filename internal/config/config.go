package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderCredentials は1プロバイダー分のOAuth設定。
// エンドポイントURLが空の場合はアダプター側のデフォルトを使用する。
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	APIBase      string
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Provider OAuth
	Garmin ProviderCredentials
	Oura   ProviderCredentials
	Whoop  ProviderCredentials

	// Sync
	SyncMinInterval   time.Duration
	SyncMaxConcurrent int
	FetchTimeout      time.Duration

	// Internal auth（同期エンドポイント用）
	SyncAPIKey       string
	SyncAuthAudience string

	// Task queue
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SyncQueueName string

	// Rate Limit
	RateLimitGeneral int
	RateLimitIngest  int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// プロバイダー認証情報は任意（未設定のプロバイダーは未構成として扱われる）。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.Garmin = loadProviderCredentials("GARMIN")
	cfg.Oura = loadProviderCredentials("OURA")
	cfg.Whoop = loadProviderCredentials("WHOOP")

	// Optional fields with defaults
	cfg.SyncMinInterval = time.Duration(getEnvInt("SYNC_MIN_INTERVAL_MINUTES", 60)) * time.Minute
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 10)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 20*time.Second)
	cfg.SyncAPIKey = os.Getenv("SYNC_API_KEY")
	cfg.SyncAuthAudience = os.Getenv("SYNC_AUTH_AUDIENCE")
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.SyncQueueName = getEnvString("SYNC_QUEUE_NAME", "vitalsync:sync")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitIngest = getEnvInt("RATE_LIMIT_INGEST", 60)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// loadProviderCredentials は接頭辞（GARMIN等）付きの環境変数から
// 1プロバイダー分のOAuth設定を読み込む。
func loadProviderCredentials(prefix string) ProviderCredentials {
	return ProviderCredentials{
		ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
		ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		RedirectURI:  os.Getenv(prefix + "_REDIRECT_URI"),
		AuthURL:      os.Getenv(prefix + "_AUTH_URL"),
		TokenURL:     os.Getenv(prefix + "_TOKEN_URL"),
		APIBase:      os.Getenv(prefix + "_API_BASE"),
	}
}

// InternalAuthConfigured は同期エンドポイントの内部認証が構成済みかを返す。
// 未構成の場合、同期エンドポイントはすべて拒否される。
func (c *Config) InternalAuthConfigured() bool {
	return c.SyncAPIKey != "" || c.SyncAuthAudience != ""
}

// QueueConfigured はRedisタスクキューが構成済みかを返す。
func (c *Config) QueueConfigured() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
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
