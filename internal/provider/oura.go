package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/hitoshi/vitalsync/internal/model"
)

const (
	defaultOuraAuthURL  = "https://cloud.ouraring.com/oauth/authorize"
	defaultOuraTokenURL = "https://api.ouraring.com/oauth/token"
	defaultOuraAPIBase  = "https://api.ouraring.com/v2"
)

// defaultOuraScopes はOuraのデフォルト要求スコープ。
var defaultOuraScopes = []string{"read_sleep", "read_readiness", "read_activity"}

// ouraDateLayout はOuraのday文字列の形式。
const ouraDateLayout = "2006-01-02"

// OuraClient はOura Ring向けのプロバイダーアダプター。
// OAuthとREST APIからのプル同期の両方に対応する。
type OuraClient struct {
	config OAuthConfig
}

// NewOuraClient はOuraClientを生成する。
// URLが未指定の場合はOuraの本番エンドポイントを使用する。
func NewOuraClient(config OAuthConfig) *OuraClient {
	if config.AuthURL == "" {
		config.AuthURL = defaultOuraAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultOuraTokenURL
	}
	if config.APIBase == "" {
		config.APIBase = defaultOuraAPIBase
	}
	return &OuraClient{config: config}
}

// Provider はプロバイダー識別子を返す。
func (c *OuraClient) Provider() model.Provider { return model.ProviderOura }

// Configured は認証に必要な設定が揃っているかを返す。
func (c *OuraClient) Configured() bool { return c.config.configured() }

// SupportsOAuth はOAuth対応を示す。
func (c *OuraClient) SupportsOAuth() bool { return true }

// SupportsPullSync はプル同期対応を示す。
func (c *OuraClient) SupportsPullSync() bool { return true }

// AuthorizationURL はOuraの認可エンドポイントURLを構築する。
func (c *OuraClient) AuthorizationURL(state string, scopes []string) (string, error) {
	if !c.Configured() {
		return "", model.NewProviderNotConfiguredError(model.ProviderOura)
	}
	if scopes == nil {
		scopes = defaultOuraScopes
	}
	return buildAuthorizationURL(c.config.AuthURL, c.config.ClientID, c.config.RedirectURI, scopes, state), nil
}

// ExchangeCode は認可コードをトークンに交換する。
func (c *OuraClient) ExchangeCode(ctx context.Context, code string) (*model.WearableTokens, error) {
	if !c.Configured() {
		return nil, model.NewProviderNotConfiguredError(model.ProviderOura)
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
func (c *OuraClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*model.WearableTokens, error) {
	if !c.Configured() {
		return nil, model.NewProviderNotConfiguredError(model.ProviderOura)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}
	return postTokenRequest(ctx, c.config.httpClient(), c.config.TokenURL, form, time.Now())
}

// FetchSleep は睡眠コレクションAPIから指定期間のデータを取得する。
func (c *OuraClient) FetchSleep(ctx context.Context, accessToken string, start, end time.Time) ([]byte, error) {
	params := url.Values{
		"start_date": {start.UTC().Format(ouraDateLayout)},
		"end_date":   {end.UTC().Format(ouraDateLayout)},
	}
	return fetchJSON(ctx, c.config.httpClient(), c.config.APIBase+"/usercollection/sleep", accessToken, params)
}

// Pull は睡眠データを取得し、生ペイロードと正規化済みメトリクスを返す。
func (c *OuraClient) Pull(ctx context.Context, accessToken, userID string, start, end time.Time) (json.RawMessage, []*model.WearableMetrics, error) {
	body, err := c.FetchSleep(ctx, accessToken, start, end)
	if err != nil {
		return nil, nil, err
	}
	return body, c.Normalize(body, userID), nil
}

// Normalize はOura睡眠ペイロードのdata配列を正準メトリクスに変換する。
// 期間フィールドは秒単位で届くため、睡眠ステージは分（/60）、
// 合計睡眠は時間（/3600）に換算する。日付はday文字列（YYYY-MM-DD）からパースする。
func (c *OuraClient) Normalize(payload []byte, userID string) []*model.WearableMetrics {
	body := decodeObject(payload)

	var metrics []*model.WearableMetrics
	for _, record := range objectList(body, "data") {
		dataDate := model.FallbackDataDate(time.Now())
		if dateStr := stringValue(record, "day", "day_utc"); dateStr != "" {
			if parsed, err := time.Parse(ouraDateLayout, dateStr); err == nil {
				dataDate = model.DateOf(parsed)
			}
		}

		metrics = append(metrics, &model.WearableMetrics{
			UserID:            userID,
			Provider:          model.ProviderOura,
			DataDate:          dataDate,
			SleepScore:        floatField(record, "score"),
			SleepHours:        scaledFloat(record, 3600, "total_sleep_duration"),
			DeepSleepMinutes:  scaledInt(record, 60, "deep_sleep_duration"),
			RemSleepMinutes:   scaledInt(record, 60, "rem_sleep_duration"),
			LightSleepMinutes: scaledInt(record, 60, "light_sleep_duration"),
			AwakeMinutes:      scaledInt(record, 60, "awake_time"),
			HRVRMSSD:          floatField(record, "average_hrv"),
			RestingHR:         intField(record, "lowest_heart_rate"),
		})
	}
	return metrics
}

// compile-time interface check
var (
	_ OAuthClient = (*OuraClient)(nil)
	_ PullClient  = (*OuraClient)(nil)
)
