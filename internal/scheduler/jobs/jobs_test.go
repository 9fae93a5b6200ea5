package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fxcast/internal/brain"
	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/forecast"
	"github.com/wonny/fxcast/internal/modelconfig"
	"github.com/wonny/fxcast/internal/readiness"
	"github.com/wonny/fxcast/pkg/logger"
	"github.com/wonny/fxcast/pkg/redis"
)

type stubSource struct {
	bundle contracts.RawSeriesBundle
	err    error
}

func (s stubSource) Load(context.Context) (contracts.RawSeriesBundle, error) {
	return s.bundle, s.err
}

type stubRunner struct {
	got []brain.RunConfig
	err error
}

func (r *stubRunner) Run(_ context.Context, _ contracts.RawSeriesBundle, rc brain.RunConfig) (*brain.RunResult, error) {
	r.got = append(r.got, rc)
	if r.err != nil {
		return nil, r.err
	}
	h := rc.Horizons[0]
	return &brain.RunResult{
		RunID:   rc.RunID,
		Success: true,
		Horizons: []*brain.HorizonResult{{
			Horizon: h,
			Forecast: &contracts.ForecastResult{
				Horizon: h,
				Steps:   []contracts.ForecastStep{{Step: 1, Mean: 1300}},
			},
		}},
	}, nil
}

func TestNewForecastJobs(t *testing.T) {
	cfg := modelconfig.Default()
	runner := &stubRunner{}
	js := NewForecastJobs(cfg, stubSource{}, runner, logger.Nop())
	require.Len(t, js, 4)

	names := map[string]string{}
	for _, j := range js {
		names[j.Name()] = j.Schedule()
	}
	assert.Equal(t, map[string]string{
		"forecast_7d":  "0 0 18 * * 1-5",
		"forecast_15d": "0 10 18 * * 1-5",
		"forecast_30d": "0 0 19 * * 1",
		"forecast_90d": "0 0 20 1 * *",
	}, names)
}

func TestForecastJob_Run(t *testing.T) {
	hc, _ := modelconfig.Default().Horizon(contracts.Horizon15)

	t.Run("runs its own horizon", func(t *testing.T) {
		runner := &stubRunner{}
		j := NewForecastJob(hc, stubSource{}, runner, logger.Nop())
		require.NoError(t, j.Run(context.Background()))
		require.Len(t, runner.got, 1)
		assert.Equal(t, []contracts.Horizon{contracts.Horizon15}, runner.got[0].Horizons)
		assert.NotEmpty(t, runner.got[0].RunID)
	})

	t.Run("reports the run it produced", func(t *testing.T) {
		runner := &stubRunner{}
		j := NewForecastJob(hc, stubSource{}, runner, logger.Nop())
		rep, err := j.RunWithReport(context.Background())
		require.NoError(t, err)
		require.Len(t, runner.got, 1)
		assert.Equal(t, runner.got[0].RunID, rep.RunID)
		assert.Equal(t, contracts.Horizon15, rep.Horizon)
		assert.False(t, rep.Degraded)
	})

	t.Run("load failure skips the run", func(t *testing.T) {
		runner := &stubRunner{}
		j := NewForecastJob(hc, stubSource{err: errors.New("feed down")}, runner, logger.Nop())
		assert.Error(t, j.Run(context.Background()))
		assert.Empty(t, runner.got)
	})

	t.Run("run error surfaces", func(t *testing.T) {
		runner := &stubRunner{err: contracts.ErrDataQuality}
		j := NewForecastJob(hc, stubSource{}, runner, logger.Nop())
		assert.ErrorIs(t, j.Run(context.Background()), contracts.ErrDataQuality)
	})
}

type stubEvaluator struct {
	level contracts.ReadinessLevel
}

func (e stubEvaluator) Evaluate(_ context.Context, now time.Time) (*readiness.Report, error) {
	return &readiness.Report{
		Assessment: contracts.ReadinessAssessment{Score: 82, Level: e.level, AssessedAt: now},
	}, nil
}

func TestReadinessJob(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	client := redis.NewFromRedis(rdb)
	cache := redis.NewCache(client, "fxcast")

	path := filepath.Join(t.TempDir(), "status", "readiness.txt")
	j := NewReadinessJob(stubEvaluator{level: contracts.LevelReady}, path, cache, logger.Nop())
	j.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }

	assert.Equal(t, "readiness_status", j.Name())
	assert.Equal(t, "0 0 * * * *", j.Schedule())
	require.NoError(t, j.Run(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "READY|2024-06-01T09:00:00Z\n", string(data))

	var cached readiness.Report
	found, err := cache.Get(context.Background(), redis.ReadinessKey(), &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, contracts.LevelReady, cached.Assessment.Level)
}

func TestRetentionJob(t *testing.T) {
	repo := forecast.NewMemoryRepository()
	tracker := forecast.NewTracker(repo, zerolog.Nop())
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	old := contracts.PredictionRecord{Horizon: contracts.Horizon7, IssueDate: now.AddDate(0, 0, -40), TargetDate: now.AddDate(0, 0, -33), Predicted: 1300, LoggedAt: now.AddDate(0, 0, -40)}
	fresh := contracts.PredictionRecord{Horizon: contracts.Horizon7, IssueDate: now.AddDate(0, 0, -3), TargetDate: now.AddDate(0, 0, 4), Predicted: 1310, LoggedAt: now.AddDate(0, 0, -3)}
	_, err := repo.AppendPredictions(context.Background(), []contracts.PredictionRecord{old, fresh})
	require.NoError(t, err)

	j := NewRetentionJob(tracker, 30, logger.Nop())
	j.now = func() time.Time { return now }
	require.NoError(t, j.Run(context.Background()))

	preds, err := repo.ListPredictions(context.Background())
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, fresh.IssueDate, preds[0].IssueDate)
}
