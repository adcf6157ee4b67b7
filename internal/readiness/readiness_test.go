package readiness

import (
	"math"
	"testing"

	"github.com/hitoshi/vitalsync/internal/model"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// almostEqual は浮動小数点の近似比較を行う。
func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculate_NoSignals_ReturnsNil(t *testing.T) {
	m := &model.WearableMetrics{}

	got := Calculate(m, nil)
	if got != nil {
		t.Errorf("シグナルが無い場合はnilを返すべきですが、%v が返されました", *got)
	}
}

func TestCalculate_SleepScoreOnly(t *testing.T) {
	m := &model.WearableMetrics{
		SleepScore: floatPtr(80.0),
	}

	got := Calculate(m, nil)
	if got == nil {
		t.Fatal("スコアがnilです")
	}
	// カテゴリが1つだけの場合、加重平均はそのカテゴリのスコアに一致する
	if !almostEqual(*got, 80.0) {
		t.Errorf("スコアが一致しません: got=%v want=80.0", *got)
	}
}

func TestCalculate_SleepHoursFallback(t *testing.T) {
	// 睡眠スコアが無い場合は睡眠時間[5,9]から線形導出する
	tests := []struct {
		name  string
		hours float64
		want  float64
	}{
		{"下限で0", 5.0, 0.0},
		{"中央で50", 7.0, 50.0},
		{"上限で100", 9.0, 100.0},
		{"下限未満はクランプ", 3.0, 0.0},
		{"上限超過はクランプ", 12.0, 100.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &model.WearableMetrics{SleepHours: floatPtr(tt.hours)}
			got := Calculate(m, nil)
			if got == nil {
				t.Fatal("スコアがnilです")
			}
			if !almostEqual(*got, tt.want) {
				t.Errorf("スコアが一致しません: got=%v want=%v", *got, tt.want)
			}
		})
	}
}

func TestCalculate_SleepScoreTakesPrecedenceOverHours(t *testing.T) {
	m := &model.WearableMetrics{
		SleepScore: floatPtr(60.0),
		SleepHours: floatPtr(9.0), // スコアがあれば時間は使われない
	}

	got := Calculate(m, nil)
	if got == nil {
		t.Fatal("スコアがnilです")
	}
	if !almostEqual(*got, 60.0) {
		t.Errorf("睡眠スコアが優先されるべきです: got=%v want=60.0", *got)
	}
}

func TestCalculate_HRVAbsoluteMapping(t *testing.T) {
	// ベースラインが無い場合は[20,120]の線形マッピング
	m := &model.WearableMetrics{HRVRMSSD: floatPtr(70.0)}

	got := Calculate(m, nil)
	if got == nil {
		t.Fatal("スコアがnilです")
	}
	if !almostEqual(*got, 50.0) {
		t.Errorf("HRV絶対値マッピングが一致しません: got=%v want=50.0", *got)
	}
}

func TestCalculate_HRVBaselineDeviation(t *testing.T) {
	tests := []struct {
		name     string
		hrv      float64
		baseline float64
		want     float64
	}{
		{"ベースライン通りで50", 60.0, 60.0, 50.0},
		{"ベースライン比+20%で60", 72.0, 60.0, 60.0},
		{"ベースライン比-20%で40", 48.0, 60.0, 40.0},
		{"大幅な低下はクランプ", 0.0, 60.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &model.WearableMetrics{HRVRMSSD: floatPtr(tt.hrv)}
			b := &Baselines{HRVRMSSD: floatPtr(tt.baseline)}
			got := Calculate(m, b)
			if got == nil {
				t.Fatal("スコアがnilです")
			}
			if !almostEqual(*got, tt.want) {
				t.Errorf("HRVベースライン評価が一致しません: got=%v want=%v", *got, tt.want)
			}
		})
	}
}

func TestCalculate_RHRBaselineInverted(t *testing.T) {
	// 安静時心拍はベースラインより低いほど良い
	m := &model.WearableMetrics{RestingHR: intPtr(54)}
	b := &Baselines{RestingHR: floatPtr(60.0)}

	got := Calculate(m, b)
	if got == nil {
		t.Fatal("スコアがnilです")
	}
	// deviation = (60-54)/60 = 0.1 → 50 + 5 = 55
	if !almostEqual(*got, 55.0) {
		t.Errorf("RHRベースライン評価が一致しません: got=%v want=55.0", *got)
	}
}

func TestCalculate_RHRAbsoluteMapping(t *testing.T) {
	// (90-rhr)を[10,50]にマッピングする
	m := &model.WearableMetrics{RestingHR: intPtr(60)}

	got := Calculate(m, nil)
	if got == nil {
		t.Fatal("スコアがnilです")
	}
	// 90-60=30 → (30-10)/(50-10)*100 = 50
	if !almostEqual(*got, 50.0) {
		t.Errorf("RHR絶対値マッピングが一致しません: got=%v want=50.0", *got)
	}
}

func TestCalculate_StrainInverted(t *testing.T) {
	// ストレインは高いほどレディネスを下げる
	m := &model.WearableMetrics{Strain: floatPtr(21.0)}

	got := Calculate(m, nil)
	if got == nil {
		t.Fatal("スコアがnilです")
	}
	if !almostEqual(*got, 0.0) {
		t.Errorf("最大ストレインのスコアは0のはずです: got=%v", *got)
	}

	m2 := &model.WearableMetrics{Strain: floatPtr(0.0)}
	got2 := Calculate(m2, nil)
	if got2 == nil {
		t.Fatal("スコアがnilです")
	}
	if !almostEqual(*got2, 100.0) {
		t.Errorf("ストレインゼロのスコアは100のはずです: got=%v", *got2)
	}
}

func TestCalculate_RenormalizesByContributedWeight(t *testing.T) {
	// 睡眠スコア(0.30)とリカバリー(0.20)のみ:
	// (80*0.30 + 60*0.20) / 0.50 = 72
	m := &model.WearableMetrics{
		SleepScore:    floatPtr(80.0),
		RecoveryScore: floatPtr(60.0),
	}

	got := Calculate(m, nil)
	if got == nil {
		t.Fatal("スコアがnilです")
	}
	if !almostEqual(*got, 72.0) {
		t.Errorf("寄与重みでの正規化が一致しません: got=%v want=72.0", *got)
	}
}

func TestCalculate_FullSignals(t *testing.T) {
	m := &model.WearableMetrics{
		SleepScore:    floatPtr(80.0),
		HRVRMSSD:      floatPtr(70.0),
		RestingHR:     intPtr(60),
		RecoveryScore: floatPtr(75.0),
		BodyBattery:   intPtr(65),
		Strain:        floatPtr(10.5),
	}

	got := Calculate(m, nil)
	if got == nil {
		t.Fatal("スコアがnilです")
	}
	// sleep=80(0.30), hrv=50(0.25), rhr=50(0.15), recovery=75(0.20),
	// battery=65(0.15), strain=100-50=50(0.10)
	// 分子 = 24 + 12.5 + 7.5 + 15 + 9.75 + 5 = 73.75, 分母 = 1.15
	want := 73.75 / 1.15
	if !almostEqual(*got, want) {
		t.Errorf("総合スコアが一致しません: got=%v want=%v", *got, want)
	}
	if *got < 0 || *got > 100 {
		t.Errorf("スコアが範囲外です: %v", *got)
	}
}

func TestCalculate_ZeroBaselineFallsBackToAbsolute(t *testing.T) {
	// ベースラインがゼロの場合はゼロ除算を避けて絶対値マッピングを使う
	m := &model.WearableMetrics{HRVRMSSD: floatPtr(70.0)}
	b := &Baselines{HRVRMSSD: floatPtr(0.0)}

	got := Calculate(m, b)
	if got == nil {
		t.Fatal("スコアがnilです")
	}
	if !almostEqual(*got, 50.0) {
		t.Errorf("ゼロベースライン時は絶対値マッピングを使うべきです: got=%v want=50.0", *got)
	}
}

func TestScoreFromRange_DegenerateRange(t *testing.T) {
	if got := scoreFromRange(42.0, 10.0, 10.0); got != 50.0 {
		t.Errorf("退化した範囲では50を返すべきです: got=%v", got)
	}
}
