// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/vitalsync/internal/model"
)

// ConnectionRepository はウェアラブル接続（OAuthトークン＋同期メタデータ）の永続化インターフェース。
type ConnectionRepository interface {
	// Upsert は接続を冪等に作成または置換する。last-write-wins。
	// トークンバンドルは全体が置き換えられ、updated_atが記録される。
	Upsert(ctx context.Context, conn *model.Connection) error

	// Find は指定（ユーザー, プロバイダー）の接続を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, userID string, provider model.Provider) (*model.Connection, error)

	// ResolveUserID はプロバイダー側ユーザーIDから内部ユーザーIDを逆引きする。
	// Webhookはプロバイダー側IDでユーザーを識別するため、受信ハンドラーが使用する。
	// 見つからない場合は空文字列を返す。
	ResolveUserID(ctx context.Context, provider model.Provider, providerUserID string) (string, error)

	// ListActive はstatus = 'active' の接続一覧を返す。
	// providerがnilでない場合はそのプロバイダーに絞り込む。バルク同期が使用する。
	ListActive(ctx context.Context, provider *model.Provider) ([]*model.Connection, error)

	// TouchSync は同期成功時にlast_sync_atのみを更新する。
	TouchSync(ctx context.Context, userID string, provider model.Provider, at time.Time) error
}

// MetricsRepository は正準メトリクスレコードの永続化インターフェース。
type MetricsRepository interface {
	// Upsert は（user_id, provider, data_date）をキーにメトリクスをUPSERTする。
	// 同一キーへの後続の書き込みは上書きであり、追記ではない。
	Upsert(ctx context.Context, metrics *model.WearableMetrics) error
}

// RawPayloadRepository は受信ペイロード監査ログの永続化インターフェース。
type RawPayloadRepository interface {
	// Insert は生ペイロードを追記する。監査・デバッグ用であり、
	// 本コアが読み戻すことはない。
	Insert(ctx context.Context, raw *model.RawPayload) error
}
