package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/vitalsync/internal/model"
)

// defaultTokenInfoURL はGoogle発行IDトークンの検証エンドポイント。
const defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// InternalAuthConfig は同期エンドポイントの内部認証設定。
// APIKeyとAudienceのどちらも空の場合、すべてのリクエストが拒否される。
type InternalAuthConfig struct {
	// APIKey は共有シークレット。x-api-keyヘッダーまたはBearerトークンと照合する。
	APIKey string
	// Audience はOIDC IDトークン検証で要求するaudクレーム。
	Audience string
	// TokenInfoURL はIDトークン検証エンドポイント。空の場合はGoogleの本番エンドポイント。
	TokenInfoURL string
	// HTTPClient はIDトークン検証に使用するクライアント。nilの場合はタイムアウト付きデフォルト。
	HTTPClient *http.Client
}

// InternalAuth は同期・バックフィルエンドポイントの認可を行う。
type InternalAuth struct {
	config InternalAuthConfig
}

// NewInternalAuth はInternalAuthを生成する。
func NewInternalAuth(config InternalAuthConfig) *InternalAuth {
	if config.TokenInfoURL == "" {
		config.TokenInfoURL = defaultTokenInfoURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &InternalAuth{config: config}
}

// Middleware は内部リクエスト認可ミドルウェアを返す。
// 認可方式は次の順で試行する:
//  1. x-api-keyヘッダーとAPIKeyの一致
//  2. Authorization: BearerトークンとAPIKeyの一致
//  3. Audienceが設定されている場合、BearerトークンをIDトークンとして検証
//
// いずれの方式も構成されていない場合は常に拒否する。誤って無防備のまま
// 公開されるより、起動直後に401で気付ける方を選ぶ。
func (a *InternalAuth) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.config.APIKey == "" && a.config.Audience == "" {
				slog.Warn("internal auth not configured, denying request",
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if a.authorize(r) {
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("internal auth failed",
				slog.String("path", r.URL.Path),
			)
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		})
	}
}

// authorize はリクエストの認可を試行する。
func (a *InternalAuth) authorize(r *http.Request) bool {
	if a.config.APIKey != "" {
		if key := r.Header.Get("x-api-key"); key != "" && secureEqual(key, a.config.APIKey) {
			return true
		}
	}

	token := bearerToken(r)
	if token == "" {
		return false
	}

	if a.config.APIKey != "" && secureEqual(token, a.config.APIKey) {
		return true
	}

	if a.config.Audience != "" {
		if err := a.verifyIDToken(r.Context(), token); err != nil {
			slog.Warn("ID token verification failed", slog.String("error", err.Error()))
			return false
		}
		return true
	}

	return false
}

// verifyIDToken はGoogle発行のOIDC IDトークンをtokeninfoエンドポイントで検証する。
// 署名・有効期限の検証はエンドポイント側が行い、audクレームを本設定と照合する。
func (a *InternalAuth) verifyIDToken(ctx context.Context, token string) error {
	endpoint := a.config.TokenInfoURL + "?" + url.Values{"id_token": {token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("検証リクエストの作成に失敗しました: %w", err)
	}

	resp, err := a.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("検証リクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("検証レスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("IDトークンが無効です: status=%d", resp.StatusCode)
	}

	var claims struct {
		Aud string `json:"aud"`
	}
	if err := json.Unmarshal(body, &claims); err != nil {
		return fmt.Errorf("検証レスポンスのパースに失敗しました: %w", err)
	}

	if claims.Aud != a.config.Audience {
		return fmt.Errorf("audクレームが一致しません")
	}

	return nil
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// secureEqual はタイミング攻撃耐性のある文字列比較を行う。
func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
