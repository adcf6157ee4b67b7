package provider

import (
	"time"

	"github.com/hitoshi/vitalsync/internal/model"
)

// AppleHealthBridge はApple Health（HealthKit）向けのプロバイダーアダプター。
// AppleにはOAuthフローが無く、クライアント端末からの直接プッシュで取り込む。
// そのため認証・プル同期のケイパビリティは持たない。
type AppleHealthBridge struct{}

// NewAppleHealthBridge はAppleHealthBridgeを生成する。
func NewAppleHealthBridge() *AppleHealthBridge {
	return &AppleHealthBridge{}
}

// Provider はプロバイダー識別子を返す。
func (b *AppleHealthBridge) Provider() model.Provider { return model.ProviderApple }

// Configured は常にtrueを返す。直接プッシュに設定は不要。
func (b *AppleHealthBridge) Configured() bool { return true }

// SupportsOAuth はOAuth非対応を示す。
func (b *AppleHealthBridge) SupportsOAuth() bool { return false }

// SupportsPullSync はプル同期非対応を示す。
func (b *AppleHealthBridge) SupportsPullSync() bool { return false }

// Normalize はHealthKit形式のキー付きペイロードを正準メトリクスに変換する。
// 睡眠分析は秒単位で届くため3600で割って時間に換算する。
// 欠落・非数値フィールドはnilに落とし、エラーにはしない。
func (b *AppleHealthBridge) Normalize(payload []byte, userID string) []*model.WearableMetrics {
	body := decodeObject(payload)

	dataDate := model.FallbackDataDate(time.Now())
	if dateStr := stringValue(body, "date"); dateStr != "" {
		if parsed, err := parseAppleDate(dateStr); err == nil {
			dataDate = model.DateOf(parsed)
		}
	}

	return []*model.WearableMetrics{{
		UserID:         userID,
		Provider:       model.ProviderApple,
		DataDate:       dataDate,
		HRVSDNN:        floatField(body, "HKQuantityTypeIdentifierHeartRateVariabilitySDNN"),
		RestingHR:      intField(body, "HKQuantityTypeIdentifierRestingHeartRate"),
		Steps:          intField(body, "HKQuantityTypeIdentifierStepCount"),
		SleepHours:     scaledFloat(body, 3600, "HKCategoryTypeIdentifierSleepAnalysis"),
		ActiveCalories: intField(body, "HKQuantityTypeIdentifierActiveEnergyBurned"),
	}}
}

// parseAppleDate はISO 8601の日付または日時文字列をパースする。
func parseAppleDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// compile-time interface check
var _ Client = (*AppleHealthBridge)(nil)
