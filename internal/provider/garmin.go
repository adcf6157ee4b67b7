package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/hitoshi/vitalsync/internal/model"
)

const (
	defaultGarminAuthURL  = "https://connect.garmin.com/oauthConfirm"
	defaultGarminTokenURL = "https://connectapi.garmin.com/oauth-service/oauth/access_token"
	defaultGarminAPIBase  = "https://apis.garmin.com/wellness-api/rest"
)

// defaultGarminScopes はGarminのデフォルト要求スコープ。
var defaultGarminScopes = []string{"activity", "heart", "sleep", "stress"}

// GarminClient はGarmin Connect向けのプロバイダーアダプター。
// OAuthには対応するが、データ取り込みはWebhookプッシュ専用でプル同期は持たない。
type GarminClient struct {
	config OAuthConfig
}

// NewGarminClient はGarminClientを生成する。
// URLが未指定の場合はGarminの本番エンドポイントを使用する。
func NewGarminClient(config OAuthConfig) *GarminClient {
	if config.AuthURL == "" {
		config.AuthURL = defaultGarminAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGarminTokenURL
	}
	if config.APIBase == "" {
		config.APIBase = defaultGarminAPIBase
	}
	return &GarminClient{config: config}
}

// Provider はプロバイダー識別子を返す。
func (c *GarminClient) Provider() model.Provider { return model.ProviderGarmin }

// Configured は認証に必要な設定が揃っているかを返す。
func (c *GarminClient) Configured() bool { return c.config.configured() }

// SupportsOAuth はOAuth対応を示す。
func (c *GarminClient) SupportsOAuth() bool { return true }

// SupportsPullSync はプル同期非対応を示す。Garminはプッシュ専用。
func (c *GarminClient) SupportsPullSync() bool { return false }

// AuthorizationURL はGarminの認可エンドポイントURLを構築する。
func (c *GarminClient) AuthorizationURL(state string, scopes []string) (string, error) {
	if !c.Configured() {
		return "", model.NewProviderNotConfiguredError(model.ProviderGarmin)
	}
	if scopes == nil {
		scopes = defaultGarminScopes
	}
	return buildAuthorizationURL(c.config.AuthURL, c.config.ClientID, c.config.RedirectURI, scopes, state), nil
}

// ExchangeCode は認可コードをトークンに交換する。
func (c *GarminClient) ExchangeCode(ctx context.Context, code string) (*model.WearableTokens, error) {
	if !c.Configured() {
		return nil, model.NewProviderNotConfiguredError(model.ProviderGarmin)
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
func (c *GarminClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*model.WearableTokens, error) {
	if !c.Configured() {
		return nil, model.NewProviderNotConfiguredError(model.ProviderGarmin)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}
	return postTokenRequest(ctx, c.config.httpClient(), c.config.TokenURL, form, time.Now())
}

// Normalize はGarmin Webhookのdailiesペイロードを正準メトリクスに変換する。
// 日付はstartTimeInSeconds（エポック秒）からUTC変換で導出し、
// sleepingSecondsは3600で割って時間に換算する。
// 同一日の複数プッシュは自然キーのUPSERTにより1レコードに統合される。
func (c *GarminClient) Normalize(payload []byte, userID string) []*model.WearableMetrics {
	body := decodeObject(payload)

	var metrics []*model.WearableMetrics
	for _, daily := range objectList(body, "dailies") {
		dataDate := model.FallbackDataDate(time.Now())
		if ts := floatField(daily, "startTimeInSeconds", "summaryStartTimeInSeconds"); ts != nil {
			dataDate = model.DateOf(time.Unix(int64(*ts), 0))
		}

		metrics = append(metrics, &model.WearableMetrics{
			UserID:         userID,
			Provider:       model.ProviderGarmin,
			DataDate:       dataDate,
			RestingHR:      intField(daily, "restingHeartRateInBeatsPerMinute"),
			Steps:          intField(daily, "steps", "totalSteps"),
			ActiveCalories: intField(daily, "activeKilocalories"),
			TotalCalories:  intField(daily, "totalKilocalories"),
			BodyBattery:    intField(daily, "bodyBatteryMostRecentValue"),
			StressLevel:    intField(daily, "averageStressLevel"),
			SleepHours:     scaledFloat(daily, 3600, "sleepingSeconds"),
		})
	}
	return metrics
}

// compile-time interface check
var _ OAuthClient = (*GarminClient)(nil)
