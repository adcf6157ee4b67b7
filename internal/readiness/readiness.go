// Package readiness はウェアラブルメトリクスからレディネススコアを導出する。
// スコアは0-100の合成値で、プロバイダーから取り込むことはなく常に本パッケージが計算する。
package readiness

import "github.com/hitoshi/vitalsync/internal/model"

// カテゴリごとの重み。存在するカテゴリのみが分母に寄与するため、合計が1である必要はない。
const (
	weightSleepScore    = 0.30
	weightSleepHours    = 0.20 // 睡眠時間からの導出値は精度が低いため重みも低い
	weightHRVBaseline   = 0.30
	weightHRVAbsolute   = 0.25
	weightRHRBaseline   = 0.20
	weightRHRAbsolute   = 0.15
	weightRecoveryScore = 0.20
	weightBodyBattery   = 0.15
	weightStrain        = 0.10
)

// Baselines はユーザー個人のベースライン値を保持する。
// ベースライン相対のスコアリングは絶対値マッピングより個人差を吸収できる。
type Baselines struct {
	HRVRMSSD  *float64 // ms
	RestingHR *float64 // bpm
}

// Calculate はメトリクスからレディネススコア（0-100）を計算する。
//
// 存在するシグナルカテゴリの加重平均を取り、欠落カテゴリは重みゼロとして
// 分母から除外する。つまりHRVと睡眠しかないレコードはその2つだけで採点され、
// 他のシグナルが無いことによるペナルティは受けない。
// 1つもシグナルが無い場合はnilを返す（根拠のない推定はしない）。
func Calculate(m *model.WearableMetrics, baselines *Baselines) *float64 {
	if baselines == nil {
		baselines = &Baselines{}
	}

	var scored []weightedScore

	// 睡眠: スコアがあればそのまま採用、無ければ睡眠時間から線形導出
	if m.SleepScore != nil {
		scored = append(scored, weightedScore{clamp(*m.SleepScore), weightSleepScore})
	} else if m.SleepHours != nil {
		scored = append(scored, weightedScore{scoreFromRange(*m.SleepHours, 5.0, 9.0), weightSleepHours})
	}

	// HRV: ベースラインがあれば相対評価、無ければ絶対値の線形マッピング
	if m.HRVRMSSD != nil {
		if b := baselines.HRVRMSSD; b != nil && *b != 0 {
			deviation := (*m.HRVRMSSD - *b) / *b
			scored = append(scored, weightedScore{clamp(50.0 + deviation*50.0), weightHRVBaseline})
		} else {
			scored = append(scored, weightedScore{scoreFromRange(*m.HRVRMSSD, 20.0, 120.0), weightHRVAbsolute})
		}
	}

	// 安静時心拍: ベースラインより低いほど良いため符号が反転する
	if m.RestingHR != nil {
		rhr := float64(*m.RestingHR)
		if b := baselines.RestingHR; b != nil && *b != 0 {
			deviation := (*b - rhr) / *b
			scored = append(scored, weightedScore{clamp(50.0 + deviation*50.0), weightRHRBaseline})
		} else {
			scored = append(scored, weightedScore{scoreFromRange(90.0-rhr, 10.0, 50.0), weightRHRAbsolute})
		}
	}

	// プロバイダー算出のリカバリースコアはそのまま採用
	if m.RecoveryScore != nil {
		scored = append(scored, weightedScore{clamp(*m.RecoveryScore), weightRecoveryScore})
	}

	if m.BodyBattery != nil {
		scored = append(scored, weightedScore{clamp(float64(*m.BodyBattery)), weightBodyBattery})
	}

	// ストレイン（0-21スケール）: 高いほどレディネスを下げる反転指標
	if m.Strain != nil {
		strainScore := clamp(100.0 - scoreFromRange(*m.Strain, 0.0, 21.0))
		scored = append(scored, weightedScore{strainScore, weightStrain})
	}

	return weightedAverage(scored)
}

// weightedScore はクランプ済みカテゴリスコアと重みのペア。
type weightedScore struct {
	score  float64
	weight float64
}

// clamp は値を[0,100]に丸める。
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// scoreFromRange は値を[low,high]から[0,100]へ線形マッピングしクランプする。
func scoreFromRange(value, low, high float64) float64 {
	if high == low {
		return 50.0
	}
	return clamp((value - low) / (high - low) * 100.0)
}

// weightedAverage は寄与した重みの合計で正規化した加重平均を返す。
// 重みの合計がゼロ（シグナルなし）の場合はnilを返す。
func weightedAverage(scores []weightedScore) *float64 {
	var totalWeight, totalScore float64
	for _, s := range scores {
		totalWeight += s.weight
		totalScore += s.score * s.weight
	}
	if totalWeight <= 0 {
		return nil
	}
	avg := totalScore / totalWeight
	return &avg
}
