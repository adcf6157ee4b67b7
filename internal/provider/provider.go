// Package provider は各ウェアラブルプロバイダーのAPI・ペイロード形式を
// 正準メトリクスモデルへ変換するアダプターを提供する。
// OAuthトークンのライフサイクル、Webhook/プルペイロードの正規化を含む。
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hitoshi/vitalsync/internal/model"
)

// Client は全プロバイダーアダプターの共通インターフェース。
// 呼び出し側はプロバイダー名の文字列比較ではなく、ケイパビリティフラグで分岐する。
type Client interface {
	// Provider はプロバイダー識別子を返す。
	Provider() model.Provider

	// Configured は認証・トークン操作に必要な設定が揃っているかを返す。
	// OAuth非対応プロバイダーは常にtrueを返す。
	Configured() bool

	// SupportsOAuth はOAuthフロー（認可URL、コード交換、リフレッシュ）に
	// 対応しているかを返す。
	SupportsOAuth() bool

	// SupportsPullSync はREST APIからのプル同期に対応しているかを返す。
	// プッシュ専用プロバイダー（Garmin、Apple）はfalseを返す。
	SupportsPullSync() bool

	// Normalize はプロバイダー固有のペイロードを正準メトリクスのリストに変換する。
	// 1つのペイロードが複数日分を含むことがある。
	// 欠落・型不一致のネストデータは該当フィールドをnilに落とし、エラーにはしない。
	Normalize(payload []byte, userID string) []*model.WearableMetrics
}

// OAuthClient はOAuth対応プロバイダーのトークンライフサイクル操作。
// 呼び出し側は事前にConfiguredを確認し、未設定の場合は設定エラーとして即座に失敗させること。
type OAuthClient interface {
	Client

	// AuthorizationURL はプロバイダーの認可エンドポイントURLを構築する。
	// stateは呼び出し側が用意する不透明なCSRF相関トークン。
	// scopesがnilの場合はプロバイダーごとのデフォルトスコープを使用する。
	AuthorizationURL(state string, scopes []string) (string, error)

	// ExchangeCode は認可コードをトークンに交換する。
	// コードは使い捨てのため、失敗時は再試行せずエラーを伝播する。
	ExchangeCode(ctx context.Context, code string) (*model.WearableTokens, error)

	// RefreshAccessToken はリフレッシュトークンで新しいトークンバンドルを発行する。
	// 旧トークンはプロバイダー側で暗黙に無効化される。
	RefreshAccessToken(ctx context.Context, refreshToken string) (*model.WearableTokens, error)
}

// PullClient はREST APIからのプル同期に対応するプロバイダーの操作。
type PullClient interface {
	Client

	// Pull は指定期間のデータを取得し、生ペイロードと正規化済みメトリクスを返す。
	// 生ペイロードは監査ログ（RawPayload）への保存用。
	Pull(ctx context.Context, accessToken, userID string, start, end time.Time) (json.RawMessage, []*model.WearableMetrics, error)
}

// Registry はプロバイダーアダプターの集合を保持する。
// グローバルシングルトンではなく、明示的に構築して依存性注入する。
type Registry struct {
	clients map[model.Provider]Client
}

// NewRegistry は指定されたアダプターからRegistryを構築する。
func NewRegistry(clients ...Client) *Registry {
	m := make(map[model.Provider]Client, len(clients))
	for _, c := range clients {
		m[c.Provider()] = c
	}
	return &Registry{clients: m}
}

// Get は指定プロバイダーのアダプターを返す。未登録の場合はfalseを返す。
func (r *Registry) Get(p model.Provider) (Client, bool) {
	c, ok := r.clients[p]
	return c, ok
}

// OAuth は指定プロバイダーのOAuthアダプターを返す。
// 未登録またはOAuth非対応の場合はfalseを返す。
func (r *Registry) OAuth(p model.Provider) (OAuthClient, bool) {
	c, ok := r.clients[p]
	if !ok || !c.SupportsOAuth() {
		return nil, false
	}
	oc, ok := c.(OAuthClient)
	return oc, ok
}

// Pull は指定プロバイダーのプル同期アダプターを返す。
// 未登録またはプル非対応の場合はfalseを返す。
func (r *Registry) Pull(p model.Provider) (PullClient, bool) {
	c, ok := r.clients[p]
	if !ok || !c.SupportsPullSync() {
		return nil, false
	}
	pc, ok := c.(PullClient)
	return pc, ok
}

// All は登録済みアダプターを固定順（AllProviders順）で返す。
func (r *Registry) All() []Client {
	out := make([]Client, 0, len(r.clients))
	for _, p := range model.AllProviders {
		if c, ok := r.clients[p]; ok {
			out = append(out, c)
		}
	}
	return out
}
