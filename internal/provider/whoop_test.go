package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testWhoopConfig() OAuthConfig {
	cfg := testOAuthConfig()
	cfg.AuthURL = "https://auth.whoop.example.com/oauth/authorize"
	cfg.TokenURL = "https://auth.whoop.example.com/oauth/token"
	return cfg
}

func TestWhoopClient_RequiresEndpointConfig(t *testing.T) {
	// WhoopはエンドポイントURLにデフォルトを持たないため、
	// クレデンシャルだけでは未設定扱いになる
	c := NewWhoopClient(testOAuthConfig())
	if c.Configured() {
		t.Error("エンドポイントURL未設定のWhoopは未構成と判定されるべきです")
	}

	c2 := NewWhoopClient(testWhoopConfig())
	if !c2.Configured() {
		t.Error("設定済みと判定されるべきです")
	}
}

func TestWhoopClient_Normalize_PreservesMilliUnit(t *testing.T) {
	payload := []byte(`{
		"records": [
			{
				"date": "2026-01-10T07:30:00Z",
				"score": {
					"recovery_score": 68,
					"hrv_rmssd_milli": 45.2,
					"resting_heart_rate": 52
				},
				"strain": {"score": 12.3}
			}
		]
	}`)

	c := NewWhoopClient(testWhoopConfig())
	records := c.Normalize(payload, "user-1")

	if len(records) != 1 {
		t.Fatalf("レコード数が一致しません: %d", len(records))
	}

	m := records[0]
	wantDate := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	if !m.DataDate.Equal(wantDate) {
		t.Errorf("日時から日付が導出されていません: %v", m.DataDate)
	}
	if m.RecoveryScore == nil || *m.RecoveryScore != 68 {
		t.Errorf("リカバリースコアが一致しません: %v", m.RecoveryScore)
	}
	// hrv_rmssd_milliは単位変換せずそのまま格納する
	if m.HRVRMSSD == nil || *m.HRVRMSSD != 45.2 {
		t.Errorf("HRVはミリ単位のまま格納されるべきです: %v", m.HRVRMSSD)
	}
	if m.RestingHR == nil || *m.RestingHR != 52 {
		t.Errorf("安静時心拍が一致しません: %v", m.RestingHR)
	}
	if m.Strain == nil || *m.Strain != 12.3 {
		t.Errorf("ストレインが一致しません: %v", m.Strain)
	}
}

func TestWhoopClient_Normalize_MissingNestedScore(t *testing.T) {
	// scoreオブジェクトが無くてもレコードは生成され、フィールドはnilに落ちる
	payload := []byte(`{"records": [{"created_at": "2026-01-10T06:00:00Z"}]}`)

	c := NewWhoopClient(testWhoopConfig())
	records := c.Normalize(payload, "user-1")

	if len(records) != 1 {
		t.Fatalf("レコード数が一致しません: %d", len(records))
	}
	m := records[0]
	if m.RecoveryScore != nil || m.HRVRMSSD != nil || m.Strain != nil {
		t.Error("ネスト欠落時はフィールドがnilに落ちるべきです")
	}
}

func TestWhoopClient_Pull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/recovery" {
			t.Errorf("パスが一致しません: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("start") != "2026-01-08" || q.Get("end") != "2026-01-10" {
			t.Errorf("期間パラメータが一致しません: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"records": [{"date": "2026-01-09T08:00:00Z", "score": {"recovery_score": 70}}]}`))
	}))
	defer server.Close()

	cfg := testWhoopConfig()
	cfg.APIBase = server.URL
	cfg.HTTPClient = server.Client()
	c := NewWhoopClient(cfg)

	start := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	_, records, err := c.Pull(context.Background(), "at-whoop", "user-1", start, end)
	if err != nil {
		t.Fatalf("プル同期に失敗しました: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("レコード数が一致しません: %d", len(records))
	}
	if records[0].RecoveryScore == nil || *records[0].RecoveryScore != 70 {
		t.Errorf("リカバリースコアが一致しません: %v", records[0].RecoveryScore)
	}
}
