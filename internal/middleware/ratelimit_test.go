package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiter(generalBurst, ingestBurst int) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(0.001), // テスト中の補充を実質無効化
		GeneralBurst:    generalBurst,
		IngestRate:      rate.Limit(0.001),
		IngestBurst:     ingestBurst,
		CleanupInterval: time.Hour,
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddleware_BurstExceeded(t *testing.T) {
	rl := testRateLimiter(2, 2)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/wearables/providers", nil)
		req.RemoteAddr = "203.0.113.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("バースト内のリクエストは通るべきです: %d回目 status=%d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/wearables/providers", nil)
	req.RemoteAddr = "203.0.113.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("バースト超過は429になるべきです: %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されるべきです")
	}
}

func TestRateLimiter_PerCallerIsolation(t *testing.T) {
	rl := testRateLimiter(1, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// 1人目がバーストを使い切る
	req1 := httptest.NewRequest(http.MethodGet, "/", nil)
	req1.RemoteAddr = "203.0.113.1:1000"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	// 別IPの呼び出し元は影響を受けない
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "203.0.113.2:1000"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Errorf("別の呼び出し元は制限されないはずです: %d", rec2.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("呼び出し元ごとにエントリが作られるべきです: %d", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_IndependentClasses(t *testing.T) {
	rl := testRateLimiter(1, 1)
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	ingest := rl.IngestMiddleware()(okHandler())

	// 一般クラスを使い切っても取り込みクラスは通る
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.1:1000"
	general.ServeHTTP(httptest.NewRecorder(), req)

	req2 := httptest.NewRequest(http.MethodPost, "/", nil)
	req2.RemoteAddr = "203.0.113.1:1000"
	rec := httptest.NewRecorder()
	ingest.ServeHTTP(rec, req2)

	if rec.Code != http.StatusOK {
		t.Errorf("取り込みクラスは一般クラスと独立のはずです: %d", rec.Code)
	}
}

func TestCallerKey(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"X-Forwarded-Forの先頭IPを優先", "198.51.100.7, 10.0.0.1", "203.0.113.1:1000", "198.51.100.7"},
		{"X-Forwarded-For無しはRemoteAddrのホスト部", "", "203.0.113.1:1000", "203.0.113.1"},
		{"ポート無しのRemoteAddrはそのまま", "", "203.0.113.1", "203.0.113.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := callerKey(req); got != tt.want {
				t.Errorf("callerKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
