package readiness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/forecast"
	"github.com/wonny/fxcast/internal/modelconfig"
)

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newMonitor() *Monitor {
	return NewMonitor(modelconfig.Default().Readiness, zerolog.Nop())
}

// buildHistory logs n predictions per horizon spread over spanDays ending at
// lastAgo before now; the first `pairedN` of each horizon have actuals.
func buildHistory(n, pairedN int, spanDays float64, lastAgo time.Duration) History {
	h := History{Horizons: contracts.AllHorizons()}
	last := now.Add(-lastAgo)
	first := last.Add(-time.Duration(spanDays * 24 * float64(time.Hour)))
	for _, hz := range h.Horizons {
		for i := 0; i < n; i++ {
			var at time.Time
			if n == 1 {
				at = last
			} else {
				at = first.Add(time.Duration(float64(last.Sub(first)) * float64(i) / float64(n-1)))
			}
			p := contracts.PredictionRecord{
				Horizon:    hz,
				IssueDate:  contracts.Day(first).AddDate(0, 0, i),
				TargetDate: contracts.Day(first).AddDate(0, 0, i+hz.Days()),
				IssueValue: 1300,
				Predicted:  1301,
				CI80Low:    1290, CI80High: 1310, CI95Low: 1280, CI95High: 1320,
				LoggedAt: at,
			}
			h.Predictions = append(h.Predictions, p)
			if i < pairedN {
				h.Paired = append(h.Paired, contracts.PairedRecord{PredictionRecord: p, Actual: 1302})
			}
		}
	}
	return h
}

func normalLog() Stability {
	return Stability{Known: true, SizeBytes: 4096}
}

func TestAssess_FullHistoryIsReadyOrOptimal(t *testing.T) {
	m := newMonitor()
	tests := []struct {
		tracked, paired int
		span            float64
	}{
		{50, 10, 7},
		{50, 50, 8},
		{64, 12, 30},
		{120, 90, 180},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n%d_p%d_d%.0f", tt.tracked, tt.paired, tt.span), func(t *testing.T) {
			a := m.Assess(buildHistory(tt.tracked, tt.paired, tt.span, time.Hour), normalLog(), now)
			assert.Contains(t, []contracts.ReadinessLevel{contracts.LevelReady, contracts.LevelOptimal}, a.Level)
			assert.True(t, a.CriticalPassed())
			assert.True(t, RecommendEnable(a).Allowed)
		})
	}
}

func TestAssess_CriticalFailureForcesNotReady(t *testing.T) {
	m := newMonitor()
	// 10 predictions per horizon, all paired, fresh, long history, clean log
	h := buildHistory(10, 10, 30, time.Hour)

	a := m.Assess(h, normalLog(), now)

	byName := map[string]contracts.CriterionScore{}
	for _, c := range a.Criteria {
		byName[c.Name] = c
	}
	assert.InDelta(t, 20, byName[CriterionTracking].Score, 1e-9)
	assert.False(t, byName[CriterionTracking].Pass)
	for _, name := range []string{CriterionOperating, CriterionFreshness, CriterionStability, CriterionBaseline} {
		assert.InDelta(t, 100, byName[name].Score, 1e-9, name)
	}

	assert.InDelta(t, 84, a.Score, 1e-9)
	assert.Equal(t, contracts.LevelNotReady, a.Level)

	rec := RecommendEnable(a)
	assert.False(t, rec.Allowed)
	assert.Contains(t, rec.Reason, CriterionTracking)
}

func TestAssess_EmptyHistory(t *testing.T) {
	a := newMonitor().Assess(History{Horizons: contracts.AllHorizons()}, Stability{Reason: "missing"}, now)

	assert.Equal(t, contracts.LevelNotReady, a.Level)
	require.Len(t, a.Criteria, 5)
	assert.Zero(t, a.Criteria[0].Score)
	assert.Zero(t, a.Criteria[1].Score)
	assert.Equal(t, 30.0, a.Criteria[2].Score)
	assert.Equal(t, 70.0, a.Criteria[3].Score)
	assert.Zero(t, a.Criteria[4].Score)
	assert.InDelta(t, 20, a.Score, 1e-9)
}

func TestAssess_FewestHorizonCounts(t *testing.T) {
	h := buildHistory(50, 10, 10, time.Hour)
	// 90일 호라이즌 예측 절반 제거
	var kept []contracts.PredictionRecord
	dropped := 0
	for _, p := range h.Predictions {
		if p.Horizon == contracts.Horizon90 && dropped < 25 {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	h.Predictions = kept

	a := newMonitor().Assess(h, normalLog(), now)
	assert.InDelta(t, 50, a.Criteria[0].Score, 1e-9)
	assert.Contains(t, a.Criteria[0].Detail, "90d")
	assert.Equal(t, contracts.LevelNotReady, a.Level)
}

func TestAssess_StalenessAndStability(t *testing.T) {
	m := newMonitor()
	h := buildHistory(50, 10, 30, 10*24*time.Hour)

	tests := []struct {
		name      string
		ops       Stability
		wantStab  float64
		wantLevel contracts.ReadinessLevel
	}{
		{"unknown log", Stability{Reason: "missing"}, 70, contracts.LevelReady},                     // 80
		{"oversized log", Stability{Known: true, SizeBytes: 60 << 20}, 40, contracts.LevelCautious}, // 74
		{"fatal entries", Stability{Known: true, FatalCount: 2}, 0, contracts.LevelCautious},         // 66
		{"clean log", normalLog(), 100, contracts.LevelReady},                                        // 86
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := m.Assess(h, tt.ops, now)
			assert.Equal(t, 30.0, a.Criteria[2].Score)
			assert.Equal(t, tt.wantStab, a.Criteria[3].Score)
			assert.Equal(t, tt.wantLevel, a.Level)
		})
	}
}

func TestLevelBands(t *testing.T) {
	m := newMonitor()
	pass := contracts.CriterionScore{Name: CriterionTracking, Critical: true, Pass: true, Score: 100}

	tests := []struct {
		score float64
		want  contracts.ReadinessLevel
	}{
		{59.9, contracts.LevelNotReady},
		{60, contracts.LevelCautious},
		{74.9, contracts.LevelCautious},
		{75, contracts.LevelReady},
		{89.9, contracts.LevelReady},
		{90, contracts.LevelOptimal},
	}
	for _, tt := range tests {
		a := contracts.ReadinessAssessment{Score: tt.score, Criteria: []contracts.CriterionScore{pass}}
		assert.Equal(t, tt.want, m.level(a), "score %.1f", tt.score)
	}

	failing := pass
	failing.Pass = false
	a := contracts.ReadinessAssessment{Score: 99, Criteria: []contracts.CriterionScore{failing}}
	assert.Equal(t, contracts.LevelNotReady, m.level(a))
}

func TestRecommendEnable_RefusesBelowReady(t *testing.T) {
	a := contracts.ReadinessAssessment{
		Score: 65,
		Level: contracts.LevelCautious,
		Criteria: []contracts.CriterionScore{
			{Name: CriterionTracking, Critical: true, Pass: true, Score: 100},
		},
	}
	rec := RecommendEnable(a)
	assert.False(t, rec.Allowed)
	assert.Equal(t, contracts.LevelCautious, rec.Level)
}

func TestScanOperationalLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fxcast.log")
	lines := []string{
		`{"level":"info","message":"run started"}`,
		`{"level":"warn","component":"models.seasonal","message":"using default order"}`,
		`{"level":"fatal","message":"artifact dir unwritable"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	st := ScanOperationalLog(path, 1<<20)
	assert.True(t, st.Known)
	assert.Equal(t, 1, st.FatalCount)
	assert.Positive(t, st.SizeBytes)

	big := ScanOperationalLog(path, 10)
	assert.True(t, big.Known)
	assert.Zero(t, big.FatalCount)

	missing := ScanOperationalLog(filepath.Join(dir, "nope.log"), 1<<20)
	assert.False(t, missing.Known)
	assert.NotEmpty(t, missing.Reason)

	assert.False(t, ScanOperationalLog("", 0).Known)
}

func TestService_Evaluate(t *testing.T) {
	ctx := context.Background()
	repo := forecast.NewMemoryRepository()
	h := buildHistory(50, 12, 9, time.Hour)
	_, err := repo.AppendPredictions(ctx, h.Predictions)
	require.NoError(t, err)

	var acts []contracts.ActualRecord
	for _, p := range h.Paired {
		acts = append(acts, contracts.ActualRecord{TargetDate: p.TargetDate, Value: p.Actual, ObservedAt: now})
	}
	_, err = repo.RecordActuals(ctx, acts)
	require.NoError(t, err)

	logPath := filepath.Join(t.TempDir(), "ops.log")
	require.NoError(t, os.WriteFile(logPath, []byte(`{"level":"info","message":"ok"}`+"\n"), 0o644))

	cfg := modelconfig.Default()
	svc := NewService(repo, cfg, 5, logPath, zerolog.Nop())

	rep, err := svc.Evaluate(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, contracts.LevelOptimal, rep.Assessment.Level)
	assert.True(t, rep.Recommendation.Allowed)
	assert.Equal(t, "OPTIMAL|2024-06-01T09:00:00Z", rep.StatusLine())
	require.Len(t, rep.Accuracy, 4)
	assert.Equal(t, contracts.StatusOK, rep.Accuracy[0].Status)
	assert.Len(t, rep.Drift, 4)
}
