package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/hitoshi/vitalsync/internal/model"
)

// WhoopのOAuthエンドポイントは開発者登録ごとに発行されるため、
// 認可・トークンURLにはデフォルト値を持たない（環境変数で必ず指定する）。
const defaultWhoopAPIBase = "https://api.prod.whoop.com/developer"

// defaultWhoopScopes はWhoopのデフォルト要求スコープ。
var defaultWhoopScopes = []string{"read:recovery", "read:cycles", "read:sleep"}

// WhoopClient はWhoop向けのプロバイダーアダプター。
// OAuthとリカバリーAPIからのプル同期の両方に対応する。
type WhoopClient struct {
	config OAuthConfig
}

// NewWhoopClient はWhoopClientを生成する。
func NewWhoopClient(config OAuthConfig) *WhoopClient {
	if config.APIBase == "" {
		config.APIBase = defaultWhoopAPIBase
	}
	return &WhoopClient{config: config}
}

// Provider はプロバイダー識別子を返す。
func (c *WhoopClient) Provider() model.Provider { return model.ProviderWhoop }

// Configured は認証に必要な設定が揃っているかを返す。
// WhoopはエンドポイントURL自体も設定必須のため、それらの存在も確認する。
func (c *WhoopClient) Configured() bool {
	return c.config.configured() && c.config.AuthURL != "" && c.config.TokenURL != ""
}

// SupportsOAuth はOAuth対応を示す。
func (c *WhoopClient) SupportsOAuth() bool { return true }

// SupportsPullSync はプル同期対応を示す。
func (c *WhoopClient) SupportsPullSync() bool { return true }

// AuthorizationURL はWhoopの認可エンドポイントURLを構築する。
func (c *WhoopClient) AuthorizationURL(state string, scopes []string) (string, error) {
	if !c.Configured() {
		return "", model.NewProviderNotConfiguredError(model.ProviderWhoop)
	}
	if scopes == nil {
		scopes = defaultWhoopScopes
	}
	return buildAuthorizationURL(c.config.AuthURL, c.config.ClientID, c.config.RedirectURI, scopes, state), nil
}

// ExchangeCode は認可コードをトークンに交換する。
func (c *WhoopClient) ExchangeCode(ctx context.Context, code string) (*model.WearableTokens, error) {
	if !c.Configured() {
		return nil, model.NewProviderNotConfiguredError(model.ProviderWhoop)
	}
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"redirect_uri":  {c.config.RedirectURI},
	}
	return postTokenRequest(ctx, c.config.httpClient(), c.config.TokenURL, form, time.Now())
}

// RefreshAccessToken はリフレッシュトークンで新しいトークンバンドルを発行する。
func (c *WhoopClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*model.WearableTokens, error) {
	if !c.Configured() {
		return nil, model.NewProviderNotConfiguredError(model.ProviderWhoop)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}
	return postTokenRequest(ctx, c.config.httpClient(), c.config.TokenURL, form, time.Now())
}

// FetchRecovery はリカバリーAPIから指定期間のデータを取得する。
func (c *WhoopClient) FetchRecovery(ctx context.Context, accessToken string, start, end time.Time) ([]byte, error) {
	params := url.Values{
		"start": {start.UTC().Format("2006-01-02")},
		"end":   {end.UTC().Format("2006-01-02")},
	}
	return fetchJSON(ctx, c.config.httpClient(), c.config.APIBase+"/v1/recovery", accessToken, params)
}

// Pull はリカバリーデータを取得し、生ペイロードと正規化済みメトリクスを返す。
func (c *WhoopClient) Pull(ctx context.Context, accessToken, userID string, start, end time.Time) (json.RawMessage, []*model.WearableMetrics, error) {
	body, err := c.FetchRecovery(ctx, accessToken, start, end)
	if err != nil {
		return nil, nil, err
	}
	return body, c.Normalize(body, userID), nil
}

// Normalize はWhoopリカバリーペイロードのrecords配列を正準メトリクスに変換する。
// 日付はISO 8601のdate/created_atからパースする。
//
// 注意: hrv_rmssd_milliはミリ単位のまま格納している（他プロバイダーのms単位とは
// 異なる非標準単位）。互換性維持のため変換は行わず、既知の不整合として扱う。
func (c *WhoopClient) Normalize(payload []byte, userID string) []*model.WearableMetrics {
	body := decodeObject(payload)

	var metrics []*model.WearableMetrics
	for _, record := range objectList(body, "records") {
		dataDate := model.FallbackDataDate(time.Now())
		if dateStr := stringValue(record, "date", "created_at"); dateStr != "" {
			if parsed, err := time.Parse(time.RFC3339, dateStr); err == nil {
				dataDate = model.DateOf(parsed)
			}
		}

		score := objectField(record, "score")
		strain := objectField(record, "strain")
		metrics = append(metrics, &model.WearableMetrics{
			UserID:        userID,
			Provider:      model.ProviderWhoop,
			DataDate:      dataDate,
			RecoveryScore: floatField(score, "recovery_score"),
			HRVRMSSD:      floatField(score, "hrv_rmssd_milli"),
			RestingHR:     intField(score, "resting_heart_rate"),
			Strain:        floatField(strain, "score"),
		})
	}
	return metrics
}

// compile-time interface check
var (
	_ OAuthClient = (*WhoopClient)(nil)
	_ PullClient  = (*WhoopClient)(nil)
)
