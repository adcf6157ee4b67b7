// Package model はドメインモデルを定義する。
package model

import "time"

// Provider はウェアラブルプロバイダーの識別子を表す。
type Provider string

const (
	// ProviderGarmin はGarmin Connectを示す。
	ProviderGarmin Provider = "garmin"
	// ProviderOura はOura Ringを示す。
	ProviderOura Provider = "oura"
	// ProviderWhoop はWhoopを示す。
	ProviderWhoop Provider = "whoop"
	// ProviderApple はApple Health（HealthKit直接連携）を示す。
	ProviderApple Provider = "apple"
)

// AllProviders はサポートする全プロバイダーの一覧。
var AllProviders = []Provider{ProviderGarmin, ProviderOura, ProviderWhoop, ProviderApple}

// ParseProvider は文字列をProviderに変換する。未知の場合はfalseを返す。
func ParseProvider(s string) (Provider, bool) {
	for _, p := range AllProviders {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// WearableTokens は1つの（ユーザー, プロバイダー）ペアのOAuth認証情報バンドルを表す。
// 認可コード交換で生成され、リフレッシュ時には全体が置き換えられる。
// 部分的な変更は行わない。
type WearableTokens struct {
	AccessToken    string
	RefreshToken   string     // リフレッシュフローを持たないプロバイダーでは空
	ExpiresAt      *time.Time // nilの場合は無期限（ただし失効可能）として扱う
	Scopes         []string
	ProviderUserID string // プロバイダー側のユーザーID。Webhookのユーザー解決に使用する
}

// WearableMetrics は（ユーザー, プロバイダー, 日付）ごとの生体データスナップショットを表す。
// プロバイダーごとに供給されるシグナルが異なるため、シグナルフィールドはすべてnil許容。
// (UserID, Provider, DataDate) が自然キーであり、同一キーへの書き込みはUPSERTで統合される。
type WearableMetrics struct {
	UserID   string
	Provider Provider
	DataDate time.Time // カレンダー日付（UTC、時刻成分はゼロ）

	HRVRMSSD          *float64 // ms（Whoopのみミリ単位のまま格納。whoop.goを参照）
	HRVSDNN           *float64 // ms
	RestingHR         *int     // bpm
	SleepScore        *float64 // 0-100
	SleepHours        *float64
	DeepSleepMinutes  *int
	RemSleepMinutes   *int
	LightSleepMinutes *int
	AwakeMinutes      *int
	RecoveryScore     *float64 // 0-100（プロバイダー算出）
	ReadinessScore    *float64 // 0-100。常に本システムが導出し、取り込み値は上書きされる
	StressLevel       *int
	BodyBattery       *int     // 0-100
	Strain            *float64 // 0-21スケール
	Steps             *int
	ActiveCalories    *int
	TotalCalories     *int
	ActiveMinutes     *int

	SyncedAt  *time.Time
	RawDataID string
}

// ConnectionStatus はウェアラブル接続の状態を表す。
type ConnectionStatus string

const (
	// ConnectionStatusActive は同期対象のアクティブな接続。
	ConnectionStatusActive ConnectionStatus = "active"
	// ConnectionStatusRevoked は失効した接続。スケジュール同期から除外される。
	ConnectionStatusRevoked ConnectionStatus = "revoked"
)

// Connection はユーザーとプロバイダーの永続的な連携関係を表す。
// OAuthコールバックで作成され、トークンリフレッシュと同期成功のたびに更新される。
type Connection struct {
	UserID         string
	Provider       Provider
	Tokens         WearableTokens
	Status         ConnectionStatus
	LastSyncAt     *time.Time // nilの場合は一度も同期していない
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RawPayload はプロバイダーから受信したペイロードの監査ログレコードを表す。
// 追記専用であり、本コアが更新・削除・読み戻しを行うことはない。
type RawPayload struct {
	ID       string
	UserID   string
	Provider Provider
	Endpoint string // "webhook" | "ingest" | "pull"
	Payload  []byte
	DataDate *time.Time
	SyncedAt time.Time
}

// DateOf は任意の時刻をUTCのカレンダー日付（時刻成分ゼロ）に正規化する。
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FallbackDataDate はペイロードに日付が含まれない場合の既定日付を返す。
// ベストエフォートで「現在のUTC日付」を採用する設計上の明示的なフォールバック。
func FallbackDataDate(now time.Time) time.Time {
	return DateOf(now)
}
