package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"encoding/json"

	"github.com/hitoshi/vitalsync/internal/model"
)

// defaultHTTPTimeout はプロバイダーAPIへのアウトバウンド呼び出しのタイムアウト。
// プロバイダーの応答停止がスケジューラ全体を塞がないよう有限かつ短く保つ。
const defaultHTTPTimeout = 20 * time.Second

// OAuthConfig はOAuth対応プロバイダーの共通設定。
// URLはテストおよび環境変数でオーバーライド可能。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthURL  string
	TokenURL string
	APIBase  string

	// HTTPClient はアウトバウンド呼び出しに使用するクライアント。
	// nilの場合はタイムアウト付きのデフォルトクライアントを使用する。
	// 本番ではSSRFガード付きクライアントを注入する。
	HTTPClient *http.Client
}

// configured はクライアントID、シークレット、リダイレクトURIが揃っているかを返す。
func (c *OAuthConfig) configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// httpClient は設定済みクライアントまたはデフォルトクライアントを返す。
func (c *OAuthConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// buildAuthorizationURL は認可エンドポイントURLを構築する。
func buildAuthorizationURL(authURL, clientID, redirectURI string, scopes []string, state string) string {
	params := url.Values{
		"client_id":     {clientID},
		"response_type": {"code"},
		"redirect_uri":  {redirectURI},
		"scope":         {strings.Join(scopes, " ")},
		"state":         {state},
	}
	return authURL + "?" + params.Encode()
}

// postTokenRequest はトークンエンドポイントへフォームエンコードのPOSTを送り、
// レスポンスをWearableTokensに変換する。
// プロバイダーAPIはここの仕様が不揃いなため、JSONとフォームエンコードの
// 両方のレスポンス形式を許容する。
func postTokenRequest(ctx context.Context, client *http.Client, tokenURL string, form url.Values, now time.Time) (*model.WearableTokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("トークンリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("トークンリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("トークンレスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("トークン交換が拒否されました（status %d）: %s", resp.StatusCode, string(body))
	}

	values := parseTokenResponse(resp.Header.Get("Content-Type"), body)
	tokens := tokensFromResponse(values, now)
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("トークンレスポンスにアクセストークンが含まれていません")
	}
	return tokens, nil
}

// parseTokenResponse はトークンレスポンスをキー・値マップに変換する。
// Content-TypeがJSONの場合はJSONとして、それ以外はフォームエンコードとしてパースする。
func parseTokenResponse(contentType string, body []byte) map[string]any {
	if strings.Contains(contentType, "application/json") {
		var m map[string]any
		if err := json.Unmarshal(body, &m); err == nil {
			return m
		}
		return map[string]any{}
	}

	parsed, err := url.ParseQuery(string(body))
	if err != nil {
		return map[string]any{}
	}
	m := make(map[string]any, len(parsed))
	for key, vals := range parsed {
		if len(vals) > 0 {
			m[key] = vals[0]
		}
	}
	return m
}

// tokensFromResponse はトークンレスポンスのマップをWearableTokensに変換する。
// expires_in（秒）から呼び出し時刻基準でExpiresAtを計算する。
// OAuth 1.0系の別名キー（oauth_token等）も許容する。
func tokensFromResponse(values map[string]any, now time.Time) *model.WearableTokens {
	tokens := &model.WearableTokens{
		AccessToken:  stringValue(values, "access_token", "oauth_token"),
		RefreshToken: stringValue(values, "refresh_token", "oauth_token_secret"),
	}

	if expiresIn, ok := secondsValue(values, "expires_in"); ok {
		t := now.Add(time.Duration(expiresIn) * time.Second)
		tokens.ExpiresAt = &t
	}

	if scope := stringValue(values, "scope"); scope != "" {
		tokens.Scopes = strings.Fields(scope)
	}

	tokens.ProviderUserID = stringValue(values, "user_id", "userId")
	return tokens
}

// stringValue は最初に見つかったキーの文字列値を返す。
func stringValue(values map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := values[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// secondsValue は数値または数値文字列の秒数を返す。
func secondsValue(values map[string]any, key string) (int64, bool) {
	switch v := values[key].(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// fetchJSON はBearerトークン付きGETを実行しボディを返す。プル同期用の共通ヘルパー。
func fetchJSON(ctx context.Context, client *http.Client, rawURL, accessToken string, params url.Values) ([]byte, error) {
	u := rawURL
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("プロバイダーAPIへのリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("プロバイダーAPIがエラーを返しました（status %d）: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
