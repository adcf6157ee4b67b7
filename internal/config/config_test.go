package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/vitalsync")
	t.Setenv("BASE_URL", "https://api.example.com")
}

func TestLoad_RequiredVariables(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("必須環境変数の欠落はエラーになるべきです")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.SyncMinInterval != 60*time.Minute {
		t.Errorf("同期最小間隔のデフォルトが一致しません: %v", cfg.SyncMinInterval)
	}
	if cfg.SyncMaxConcurrent != 10 {
		t.Errorf("最大並列数のデフォルトが一致しません: %d", cfg.SyncMaxConcurrent)
	}
	if cfg.FetchTimeout != 20*time.Second {
		t.Errorf("取得タイムアウトのデフォルトが一致しません: %v", cfg.FetchTimeout)
	}
	if cfg.SyncQueueName != "vitalsync:sync" {
		t.Errorf("キュー名のデフォルトが一致しません: %s", cfg.SyncQueueName)
	}
	if cfg.RateLimitGeneral != 120 || cfg.RateLimitIngest != 60 {
		t.Errorf("レート制限のデフォルトが一致しません: %d / %d", cfg.RateLimitGeneral, cfg.RateLimitIngest)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ポートのデフォルトが一致しません: %s", cfg.ServerPort)
	}
}

func TestLoad_ProviderCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OURA_CLIENT_ID", "oura-id")
	t.Setenv("OURA_CLIENT_SECRET", "oura-secret")
	t.Setenv("OURA_REDIRECT_URI", "https://api.example.com/wearables/oura/callback")
	t.Setenv("WHOOP_API_BASE", "https://api.prod.whoop.com/developer")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Oura.ClientID != "oura-id" || cfg.Oura.ClientSecret != "oura-secret" {
		t.Errorf("Ouraの認証情報が一致しません: %+v", cfg.Oura)
	}
	if cfg.Whoop.APIBase != "https://api.prod.whoop.com/developer" {
		t.Errorf("WhoopのAPIベースURLが一致しません: %s", cfg.Whoop.APIBase)
	}
	// 未設定のプロバイダーは空のまま
	if cfg.Garmin.ClientID != "" {
		t.Errorf("Garminは未設定のはずです: %+v", cfg.Garmin)
	}
}

func TestLoad_SyncIntervalOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_MIN_INTERVAL_MINUTES", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if cfg.SyncMinInterval != 15*time.Minute {
		t.Errorf("同期最小間隔が一致しません: %v", cfg.SyncMinInterval)
	}
}

func TestInternalAuthConfigured(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		audience string
		want     bool
	}{
		{"両方未設定", "", "", false},
		{"APIキーのみ", "key", "", true},
		{"Audienceのみ", "", "aud", true},
		{"両方設定", "key", "aud", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{SyncAPIKey: tt.apiKey, SyncAuthAudience: tt.audience}
			if got := cfg.InternalAuthConfigured(); got != tt.want {
				t.Errorf("InternalAuthConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueueConfigured(t *testing.T) {
	cfg := &Config{}
	if cfg.QueueConfigured() {
		t.Error("RedisAddr未設定のキューは未構成のはずです")
	}
	cfg.RedisAddr = "localhost:6379"
	if !cfg.QueueConfigured() {
		t.Error("RedisAddr設定済みのキューは構成済みのはずです")
	}
	cfg.RedisAddr = "   "
	if cfg.QueueConfigured() {
		t.Error("空白のみのRedisAddrは未構成のはずです")
	}
}
