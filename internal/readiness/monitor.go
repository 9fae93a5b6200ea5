package readiness

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/forecast"
	"github.com/wonny/fxcast/internal/modelconfig"
)

// 기준 이름 (리포트/로그 공통)
const (
	CriterionTracking  = "tracking_volume"
	CriterionOperating = "operating_time"
	CriterionFreshness = "freshness"
	CriterionStability = "stability"
	CriterionBaseline  = "baseline_completeness"
)

// History 평가 입력 (예측 로그 스냅샷)
type History struct {
	Horizons    []contracts.Horizon
	Predictions []contracts.PredictionRecord
	Paired      []contracts.PairedRecord
}

// Monitor 준비도 분류기. 상태를 저장하지 않고 매번 이력에서 재계산
// ⭐ SSOT: 준비도 점수/레벨 계산은 여기서만
type Monitor struct {
	cfg modelconfig.ReadinessConfig
	log zerolog.Logger
}

// NewMonitor creates a monitor with fixed thresholds
func NewMonitor(cfg modelconfig.ReadinessConfig, log zerolog.Logger) *Monitor {
	return &Monitor{
		cfg: cfg,
		log: log.With().Str("component", "readiness.monitor").Logger(),
	}
}

// Assess scores the history. Missing data yields NOT_READY, never an error.
func (m *Monitor) Assess(h History, ops Stability, now time.Time) contracts.ReadinessAssessment {
	criteria := []contracts.CriterionScore{
		m.tracking(h),
		m.operating(h, now),
		m.freshness(h, now),
		m.stability(ops),
		m.baseline(h),
	}

	var sum float64
	for _, c := range criteria {
		sum += c.Score
	}
	a := contracts.ReadinessAssessment{
		Score:      sum / float64(len(criteria)),
		Criteria:   criteria,
		AssessedAt: now.UTC(),
	}
	a.Level = m.level(a)

	m.log.Debug().
		Str("level", string(a.Level)).
		Float64("score", a.Score).
		Bool("critical_passed", a.CriticalPassed()).
		Msg("readiness assessed")
	return a
}

func (m *Monitor) level(a contracts.ReadinessAssessment) contracts.ReadinessLevel {
	if !a.CriticalPassed() {
		return contracts.LevelNotReady
	}
	switch {
	case a.Score >= m.cfg.Levels.Optimal:
		return contracts.LevelOptimal
	case a.Score >= m.cfg.Levels.Ready:
		return contracts.LevelReady
	case a.Score >= m.cfg.Levels.Cautious:
		return contracts.LevelCautious
	default:
		return contracts.LevelNotReady
	}
}

func (m *Monitor) criterion(name string, score float64, critical bool, detail string) contracts.CriterionScore {
	score = math.Max(0, math.Min(100, score))
	return contracts.CriterionScore{
		Name:     name,
		Score:    score,
		Pass:     score >= m.cfg.PassThreshold,
		Critical: critical,
		Detail:   detail,
	}
}

// tracking uses the horizon with the fewest logged predictions
func (m *Monitor) tracking(h History) contracts.CriterionScore {
	counts := forecast.CountByHorizon(h.Predictions)
	minH, observed := fewest(h.Horizons, counts)
	score := ratio(observed, m.cfg.TrackingTarget)
	return m.criterion(CriterionTracking, score, true,
		fmt.Sprintf("%d/%d predictions (fewest: %s)", observed, m.cfg.TrackingTarget, minH))
}

func (m *Monitor) operating(h History, now time.Time) contracts.CriterionScore {
	first, ok := firstLogged(h.Predictions)
	if !ok {
		return m.criterion(CriterionOperating, 0, true, "no predictions logged")
	}
	days := now.Sub(first).Hours() / 24
	if days < 0 {
		days = 0
	}
	score := 100 * days / float64(m.cfg.OperatingDays)
	return m.criterion(CriterionOperating, score, true,
		fmt.Sprintf("%.1f/%d days since %s", days, m.cfg.OperatingDays, first.UTC().Format(time.RFC3339)))
}

func (m *Monitor) freshness(h History, now time.Time) contracts.CriterionScore {
	last, ok := lastLogged(h.Predictions)
	window := time.Duration(m.cfg.FreshnessDays) * 24 * time.Hour
	if ok && now.Sub(last) <= window {
		return m.criterion(CriterionFreshness, 100, false,
			fmt.Sprintf("last prediction %s", last.UTC().Format(time.RFC3339)))
	}
	detail := "no predictions logged"
	if ok {
		detail = fmt.Sprintf("last prediction %s older than %d days", last.UTC().Format(time.RFC3339), m.cfg.FreshnessDays)
	}
	return m.criterion(CriterionFreshness, m.cfg.StaleScore, false, detail)
}

func (m *Monitor) stability(s Stability) contracts.CriterionScore {
	switch {
	case !s.Known:
		return m.criterion(CriterionStability, m.cfg.UnknownStabilityScore, false, "operational log unavailable: "+s.Reason)
	case s.FatalCount > 0:
		return m.criterion(CriterionStability, 0, false, fmt.Sprintf("%d fatal entries", s.FatalCount))
	case m.cfg.LogMaxBytes > 0 && s.SizeBytes > m.cfg.LogMaxBytes:
		return m.criterion(CriterionStability, m.cfg.OversizedLogScore, false,
			fmt.Sprintf("log size %d bytes exceeds %d", s.SizeBytes, m.cfg.LogMaxBytes))
	default:
		return m.criterion(CriterionStability, 100, false, fmt.Sprintf("no fatal entries, %d bytes", s.SizeBytes))
	}
}

// baseline counts predictions already paired with an actual, fewest horizon
func (m *Monitor) baseline(h History) contracts.CriterionScore {
	counts := forecast.PairedByHorizon(h.Paired)
	minH, paired := fewest(h.Horizons, counts)
	score := ratio(paired, m.cfg.BaselineTarget)
	return m.criterion(CriterionBaseline, score, false,
		fmt.Sprintf("%d/%d paired actuals (fewest: %s)", paired, m.cfg.BaselineTarget, minH))
}

// Recommendation 활성화 권고 (실행 주체는 외부)
type Recommendation struct {
	Allowed bool                     `json:"allowed"`
	Level   contracts.ReadinessLevel `json:"level"`
	Reason  string                   `json:"reason"`
}

// RecommendEnable refuses unless every critical criterion passes, regardless
// of the overall score
func RecommendEnable(a contracts.ReadinessAssessment) Recommendation {
	for _, c := range a.Criteria {
		if c.Critical && !c.Pass {
			return Recommendation{Level: a.Level, Reason: fmt.Sprintf("critical criterion %s failing (%.0f)", c.Name, c.Score)}
		}
	}
	switch a.Level {
	case contracts.LevelReady, contracts.LevelOptimal:
		return Recommendation{Allowed: true, Level: a.Level, Reason: fmt.Sprintf("score %.1f", a.Score)}
	default:
		return Recommendation{Level: a.Level, Reason: fmt.Sprintf("level %s below %s", a.Level, contracts.LevelReady)}
	}
}

func fewest(hs []contracts.Horizon, counts map[contracts.Horizon]int) (contracts.Horizon, int) {
	if len(hs) == 0 {
		return 0, 0
	}
	minH, minN := hs[0], counts[hs[0]]
	for _, h := range hs[1:] {
		if counts[h] < minN {
			minH, minN = h, counts[h]
		}
	}
	return minH, minN
}

func ratio(n, target int) float64 {
	if target <= 0 {
		return 100
	}
	return 100 * float64(n) / float64(target)
}

func firstLogged(ps []contracts.PredictionRecord) (time.Time, bool) {
	var first time.Time
	for _, p := range ps {
		if first.IsZero() || p.LoggedAt.Before(first) {
			first = p.LoggedAt
		}
	}
	return first, !first.IsZero()
}

func lastLogged(ps []contracts.PredictionRecord) (time.Time, bool) {
	var last time.Time
	for _, p := range ps {
		if p.LoggedAt.After(last) {
			last = p.LoggedAt
		}
	}
	return last, !last.IsZero()
}
