package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authTestHandler(a *InternalAuth) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return a.Middleware()(ok)
}

func TestInternalAuth_DeniesWhenUnconfigured(t *testing.T) {
	a := NewInternalAuth(InternalAuthConfig{})
	handler := authTestHandler(a)

	req := httptest.NewRequest(http.MethodPost, "/wearables/sync-all", nil)
	req.Header.Set("x-api-key", "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("未構成の認可は常に拒否すべきです: %d", rec.Code)
	}
}

func TestInternalAuth_APIKeyHeader(t *testing.T) {
	a := NewInternalAuth(InternalAuthConfig{APIKey: "secret-key"})
	handler := authTestHandler(a)

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"一致するキーは許可", "secret-key", http.StatusOK},
		{"不一致のキーは拒否", "wrong-key", http.StatusUnauthorized},
		{"空のキーは拒否", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/wearables/sync-all", nil)
			if tt.key != "" {
				req.Header.Set("x-api-key", tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("ステータスが一致しません: got=%d want=%d", rec.Code, tt.status)
			}
		})
	}
}

func TestInternalAuth_BearerAPIKey(t *testing.T) {
	a := NewInternalAuth(InternalAuthConfig{APIKey: "secret-key"})
	handler := authTestHandler(a)

	req := httptest.NewRequest(http.MethodPost, "/wearables/oura/sync", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("BearerトークンとAPIキーの一致は許可すべきです: %d", rec.Code)
	}
}

func TestInternalAuth_IDTokenVerification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("id_token")
		switch token {
		case "valid-token":
			w.Write([]byte(`{"aud": "https://sync.example.com", "email": "sa@project.iam.gserviceaccount.com"}`))
		case "wrong-aud":
			w.Write([]byte(`{"aud": "https://other.example.com"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "invalid_token"}`))
		}
	}))
	defer server.Close()

	a := NewInternalAuth(InternalAuthConfig{
		Audience:     "https://sync.example.com",
		TokenInfoURL: server.URL,
		HTTPClient:   server.Client(),
	})
	handler := authTestHandler(a)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"audが一致するIDトークンは許可", "valid-token", http.StatusOK},
		{"audが不一致のIDトークンは拒否", "wrong-aud", http.StatusUnauthorized},
		{"無効なIDトークンは拒否", "garbage", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/wearables/sync-all", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("ステータスが一致しません: got=%d want=%d", rec.Code, tt.status)
			}
		})
	}
}

func TestInternalAuth_NoCredentials(t *testing.T) {
	a := NewInternalAuth(InternalAuthConfig{APIKey: "secret-key", Audience: "aud"})
	handler := authTestHandler(a)

	req := httptest.NewRequest(http.MethodPost, "/wearables/sync-all", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("クレデンシャル無しのリクエストは拒否すべきです: %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"}, // 大文字小文字は区別しない
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
