package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/vitalsync/internal/model"
)

func TestOuraClient_Capabilities(t *testing.T) {
	c := NewOuraClient(testOAuthConfig())

	if c.Provider() != model.ProviderOura {
		t.Errorf("プロバイダー識別子が一致しません: %s", c.Provider())
	}
	if !c.SupportsOAuth() || !c.SupportsPullSync() {
		t.Error("OuraはOAuthとプル同期の両方に対応するはずです")
	}
}

func TestOuraClient_Normalize_SleepData(t *testing.T) {
	payload := []byte(`{
		"data": [
			{
				"day": "2026-01-10",
				"score": 85,
				"total_sleep_duration": 27000,
				"deep_sleep_duration": 5400,
				"rem_sleep_duration": 6300,
				"light_sleep_duration": 15300,
				"awake_time": 1800,
				"average_hrv": 62.5,
				"lowest_heart_rate": 48
			}
		]
	}`)

	c := NewOuraClient(testOAuthConfig())
	records := c.Normalize(payload, "user-1")

	if len(records) != 1 {
		t.Fatalf("レコード数が一致しません: %d", len(records))
	}

	m := records[0]
	wantDate := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	if !m.DataDate.Equal(wantDate) {
		t.Errorf("day文字列から日付が導出されていません: %v", m.DataDate)
	}
	if m.SleepScore == nil || *m.SleepScore != 85 {
		t.Errorf("睡眠スコアが一致しません: %v", m.SleepScore)
	}
	if m.SleepHours == nil || *m.SleepHours != 7.5 {
		t.Errorf("合計睡眠が時間に換算されていません: %v", m.SleepHours)
	}
	if m.DeepSleepMinutes == nil || *m.DeepSleepMinutes != 90 {
		t.Errorf("深い睡眠が分に換算されていません: %v", m.DeepSleepMinutes)
	}
	if m.RemSleepMinutes == nil || *m.RemSleepMinutes != 105 {
		t.Errorf("レム睡眠が分に換算されていません: %v", m.RemSleepMinutes)
	}
	if m.AwakeMinutes == nil || *m.AwakeMinutes != 30 {
		t.Errorf("覚醒時間が分に換算されていません: %v", m.AwakeMinutes)
	}
	if m.HRVRMSSD == nil || *m.HRVRMSSD != 62.5 {
		t.Errorf("HRVが一致しません: %v", m.HRVRMSSD)
	}
	if m.RestingHR == nil || *m.RestingHR != 48 {
		t.Errorf("最低心拍が一致しません: %v", m.RestingHR)
	}
}

func TestOuraClient_Normalize_PartialRecord(t *testing.T) {
	// 一部フィールドしか無くてもレコードは捨てない
	payload := []byte(`{"data": [{"day": "2026-01-10", "score": 70}]}`)

	c := NewOuraClient(testOAuthConfig())
	records := c.Normalize(payload, "user-1")

	if len(records) != 1 {
		t.Fatalf("レコード数が一致しません: %d", len(records))
	}
	if records[0].SleepScore == nil || *records[0].SleepScore != 70 {
		t.Errorf("睡眠スコアが一致しません: %v", records[0].SleepScore)
	}
	if records[0].SleepHours != nil {
		t.Error("欠落フィールドはnilであるべきです")
	}
}

func TestOuraClient_Pull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/usercollection/sleep" {
			t.Errorf("パスが一致しません: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer at-oura" {
			t.Errorf("Authorizationヘッダーが一致しません: %s", auth)
		}
		q := r.URL.Query()
		if q.Get("start_date") != "2026-01-08" || q.Get("end_date") != "2026-01-10" {
			t.Errorf("期間パラメータが一致しません: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data": [{"day": "2026-01-09", "score": 80}]}`))
	}))
	defer server.Close()

	cfg := testOAuthConfig()
	cfg.APIBase = server.URL
	cfg.HTTPClient = server.Client()
	c := NewOuraClient(cfg)

	start := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	raw, records, err := c.Pull(context.Background(), "at-oura", "user-1", start, end)
	if err != nil {
		t.Fatalf("プル同期に失敗しました: %v", err)
	}
	if len(raw) == 0 {
		t.Error("生ペイロードが空です")
	}
	if len(records) != 1 {
		t.Fatalf("レコード数が一致しません: %d", len(records))
	}
	if records[0].SleepScore == nil || *records[0].SleepScore != 80 {
		t.Errorf("睡眠スコアが一致しません: %v", records[0].SleepScore)
	}
}

func TestOuraClient_Pull_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := testOAuthConfig()
	cfg.APIBase = server.URL
	cfg.HTTPClient = server.Client()
	c := NewOuraClient(cfg)

	_, _, err := c.Pull(context.Background(), "expired", "user-1", time.Now().AddDate(0, 0, -1), time.Now())
	if err == nil {
		t.Fatal("APIエラーは伝播すべきです")
	}
}
