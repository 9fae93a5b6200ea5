package forecast

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/modelconfig"
)

// AccuracyReport 호라이즌별 실운영 정확도
// Status가 INSUFFICIENT_HISTORY면 숫자 필드는 비어 있음
type AccuracyReport struct {
	Horizon     contracts.Horizon      `json:"horizon"`
	Status      contracts.MetricStatus `json:"status"`
	SampleCount int                    `json:"sample_count"`
	MAE         *float64               `json:"mae,omitempty"`
	RMSE        *float64               `json:"rmse,omitempty"`
	MeanError   *float64               `json:"mean_error,omitempty"` // 편향 (bias)
	HitRate     *float64               `json:"hit_rate,omitempty"`
	Coverage80  *float64               `json:"coverage80,omitempty"`
	Coverage95  *float64               `json:"coverage95,omitempty"`
}

// DriftReport 최근 구간 vs 기준 구간 MAE 비교
type DriftReport struct {
	Horizon     contracts.Horizon      `json:"horizon"`
	Status      contracts.MetricStatus `json:"status"`
	RecentMAE   *float64               `json:"recent_mae,omitempty"`
	BaselineMAE *float64               `json:"baseline_mae,omitempty"`
	Ratio       *float64               `json:"ratio,omitempty"`
	Drifted     bool                   `json:"drifted"`
}

// Aggregator 통계 집계기
type Aggregator struct {
	minSampleCount int
	drift          modelconfig.Drift
	log            zerolog.Logger
}

// NewAggregator 새 집계기 생성
func NewAggregator(minSampleCount int, drift modelconfig.Drift, log zerolog.Logger) *Aggregator {
	if minSampleCount < 1 {
		minSampleCount = 1
	}
	return &Aggregator{
		minSampleCount: minSampleCount,
		drift:          drift,
		log:            log.With().Str("component", "forecast.aggregator").Logger(),
	}
}

// Accuracy computes per-horizon accuracy for every horizon in hs
func (a *Aggregator) Accuracy(paired []contracts.PairedRecord, hs []contracts.Horizon) []AccuracyReport {
	groups := groupByHorizon(paired)
	out := make([]AccuracyReport, 0, len(hs))
	for _, h := range hs {
		out = append(out, a.accuracy(h, groups[h]))
	}
	return out
}

func (a *Aggregator) accuracy(h contracts.Horizon, group []contracts.PairedRecord) AccuracyReport {
	rep := AccuracyReport{Horizon: h, SampleCount: len(group), Status: contracts.StatusInsufficientHistory}
	if len(group) < a.minSampleCount {
		return rep
	}

	var sumAbs, sumSq, sum float64
	var hits, in80, in95 int
	for _, p := range group {
		e := p.Predicted - p.Actual
		sumAbs += math.Abs(e)
		sumSq += e * e
		sum += e
		if p.DirectionHit() {
			hits++
		}
		if p.Within80() {
			in80++
		}
		if p.Within95() {
			in95++
		}
	}
	n := float64(len(group))
	rep.Status = contracts.StatusOK
	rep.MAE = ptr(sumAbs / n)
	rep.RMSE = ptr(math.Sqrt(sumSq / n))
	rep.MeanError = ptr(sum / n)
	rep.HitRate = ptr(float64(hits) / n)
	rep.Coverage80 = ptr(float64(in80) / n)
	rep.Coverage95 = ptr(float64(in95) / n)
	return rep
}

// Drift compares the most recent window of paired errors to the window before it
func (a *Aggregator) Drift(paired []contracts.PairedRecord, hs []contracts.Horizon) []DriftReport {
	groups := groupByHorizon(paired)
	out := make([]DriftReport, 0, len(hs))
	for _, h := range hs {
		rep := a.driftFor(h, groups[h])
		if rep.Drifted {
			a.log.Warn().
				Str("horizon", h.String()).
				Interface("ratio", rep.Ratio).
				Float64("max_ratio", a.drift.MaxRatio).
				Msg("accuracy drift detected")
		}
		out = append(out, rep)
	}
	return out
}

func (a *Aggregator) driftFor(h contracts.Horizon, group []contracts.PairedRecord) DriftReport {
	rep := DriftReport{Horizon: h, Status: contracts.StatusInsufficientHistory}
	recentN, baseN := a.drift.RecentWindow, a.drift.BaselineWindow
	if recentN < 1 || baseN < 1 || len(group) < recentN+baseN {
		return rep
	}

	sort.Slice(group, func(i, j int) bool { return group[i].TargetDate.Before(group[j].TargetDate) })
	recent := group[len(group)-recentN:]
	base := group[len(group)-recentN-baseN : len(group)-recentN]

	rm, bm := meanAbs(recent), meanAbs(base)
	rep.Status = contracts.StatusOK
	rep.RecentMAE = ptr(rm)
	rep.BaselineMAE = ptr(bm)
	if bm > 0 {
		rep.Ratio = ptr(rm / bm)
		rep.Drifted = rm/bm > a.drift.MaxRatio
	} else if rm > 0 {
		// 기준 구간 오차 0: 비율 정의 불가, 드리프트로 간주
		rep.Drifted = true
	} else {
		rep.Ratio = ptr(1)
	}
	return rep
}

// CountByHorizon counts predictions per horizon
func CountByHorizon(preds []contracts.PredictionRecord) map[contracts.Horizon]int {
	out := make(map[contracts.Horizon]int)
	for _, p := range preds {
		out[p.Horizon]++
	}
	return out
}

// PairedByHorizon counts paired records per horizon
func PairedByHorizon(paired []contracts.PairedRecord) map[contracts.Horizon]int {
	out := make(map[contracts.Horizon]int)
	for _, p := range paired {
		out[p.Horizon]++
	}
	return out
}

func groupByHorizon(paired []contracts.PairedRecord) map[contracts.Horizon][]contracts.PairedRecord {
	out := make(map[contracts.Horizon][]contracts.PairedRecord)
	for _, p := range paired {
		out[p.Horizon] = append(out[p.Horizon], p)
	}
	return out
}

func meanAbs(ps []contracts.PairedRecord) float64 {
	var s float64
	for _, p := range ps {
		s += p.AbsError()
	}
	return s / float64(len(ps))
}

func ptr(v float64) *float64 {
	return &v
}
