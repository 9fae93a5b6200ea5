package brain

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fxcast/internal/artifact"
	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/forecast"
	"github.com/wonny/fxcast/internal/modelconfig"
	"github.com/wonny/fxcast/internal/testutil"
	"github.com/wonny/fxcast/pkg/logger"
)

var clock = time.Date(2023, 7, 20, 9, 0, 0, 0, time.UTC)

type fixture struct {
	orch        *Orchestrator
	artifacts   *artifact.Store
	repo        *forecast.MemoryRepository
	resultDir   string
	artifactDir string
}

func newFixture(t *testing.T, cfg *modelconfig.Config) *fixture {
	t.Helper()
	artifactDir := t.TempDir()
	store, err := artifact.NewStore(artifactDir, 2, zerolog.Nop())
	require.NoError(t, err)
	repo := forecast.NewMemoryRepository()
	resultDir := t.TempDir()

	orch, err := NewOrchestrator(cfg, Deps{
		Artifacts: store,
		Results:   forecast.NewResultStore(resultDir, nil, 0, zerolog.Nop()),
		Tracker:   forecast.NewTracker(repo, zerolog.Nop()),
	}, logger.Nop())
	require.NoError(t, err)
	orch.SetClock(func() time.Time { return clock })

	return &fixture{orch: orch, artifacts: store, repo: repo, resultDir: resultDir, artifactDir: artifactDir}
}

func runConfig() RunConfig {
	opts := testutil.DefaultSynthOptions()
	return RunConfig{
		Date:     opts.Start.AddDate(0, 0, 199),
		RunID:    "run_test",
		Horizons: []contracts.Horizon{contracts.Horizon7},
	}
}

func TestOrchestrator_Run(t *testing.T) {
	opts := testutil.DefaultSynthOptions()
	f := newFixture(t, modelconfig.Default())

	result, err := f.orch.Run(context.Background(), testutil.SyntheticBundle(opts), runConfig())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Horizons, 1)

	hr := result.Horizon(contracts.Horizon7)
	require.NotNil(t, hr)
	assert.True(t, hr.Retrained)
	assert.Equal(t, []string{StageFeatures, StageModels, StageCombine, StageCommit}, hr.CompletedStages)

	res := hr.Forecast
	require.NotNil(t, res)
	require.NoError(t, res.Validate())
	assert.Equal(t, "run_test", res.RunID)
	assert.Len(t, res.Steps, 7)
	assert.Equal(t, runConfig().Date, res.IssueDate)
	assert.Equal(t, clock, res.GeneratedAt)

	// 전체 시계열 끝에서 발행한 앙상블은 두 모델 각각보다 오차가 작음
	ensErr, modelErr := forecastErrors(res, opts)
	require.Len(t, modelErr, 2)
	assert.Less(t, ensErr, modelErr[contracts.ModelTree])
	assert.Less(t, ensErr, modelErr[contracts.ModelSeasonal])

	for _, m := range []contracts.ModelType{contracts.ModelTree, contracts.ModelSeasonal, contracts.ModelVolatility} {
		a, err := f.artifacts.Current(m, contracts.Horizon7)
		require.NoError(t, err, m)
		assert.Equal(t, f.orch.ConfigHash(), a.Meta.ConfigHash)
		assert.Equal(t, hr.Versions[m], a.Meta.Version)
	}

	_, err = os.Stat(filepath.Join(f.resultDir, "7", "latest.json"))
	assert.NoError(t, err)
	assert.Equal(t, hr.OutputPath, filepath.Join(f.resultDir, "7", "2023-07-19.json"))

	preds, err := f.repo.ListPredictions(context.Background())
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, 1, hr.Logged)
}

func TestOrchestrator_ReusesArtifactsWithinCadence(t *testing.T) {
	bundle := testutil.SyntheticBundle(testutil.DefaultSynthOptions())
	f := newFixture(t, modelconfig.Default())

	first, err := f.orch.Run(context.Background(), bundle, runConfig())
	require.NoError(t, err)

	f.orch.SetClock(func() time.Time { return clock.Add(time.Hour) })
	second, err := f.orch.Run(context.Background(), bundle, runConfig())
	require.NoError(t, err)

	h1, h2 := first.Horizon(contracts.Horizon7), second.Horizon(contracts.Horizon7)
	assert.False(t, h2.Retrained)
	assert.Equal(t, h1.Versions[contracts.ModelTree], h2.Versions[contracts.ModelTree])
	assert.Equal(t, h1.Versions[contracts.ModelSeasonal], h2.Versions[contracts.ModelSeasonal])
	assert.NotEqual(t, h1.Versions[contracts.ModelVolatility], h2.Versions[contracts.ModelVolatility])

	// 재사용 모델은 같은 입력에 같은 점예측
	for s := range h1.Forecast.Steps {
		assert.InDeltaSlice(t,
			values(h1.Forecast.Steps[s].Contributions),
			values(h2.Forecast.Steps[s].Contributions), 1e-9)
	}

	// 재학습 주기 경과 시 다시 학습
	f.orch.SetClock(func() time.Time { return clock.Add(25 * time.Hour) })
	third, err := f.orch.Run(context.Background(), bundle, runConfig())
	require.NoError(t, err)
	assert.True(t, third.Horizon(contracts.Horizon7).Retrained)
}

// forecastErrors sums absolute errors against the synthetic target for the ensemble and each point model
func forecastErrors(res *contracts.ForecastResult, opts testutil.SynthOptions) (float64, map[contracts.ModelType]float64) {
	truth := opts.TargetFunc()
	modelErr := map[contracts.ModelType]float64{}
	var ensErr float64
	for _, s := range res.Steps {
		i := int(s.Date.Sub(opts.Start).Hours() / 24)
		y := truth(i)
		ensErr += math.Abs(s.Mean - y)
		for _, c := range s.Contributions {
			modelErr[c.Model] += math.Abs(c.Value - y)
		}
	}
	return ensErr, modelErr
}

func TestOrchestrator_EnsembleBeatsEachModelAcrossIssueDates(t *testing.T) {
	opts := testutil.DefaultSynthOptions()
	bundle := testutil.SyntheticBundle(opts)
	f := newFixture(t, modelconfig.Default())

	var ensTotal float64
	modelTotal := map[contracts.ModelType]float64{}
	for day := 172; day <= 199; day += 3 {
		rc := runConfig()
		rc.Date = opts.Start.AddDate(0, 0, day)
		rc.DryRun = true
		result, err := f.orch.Run(context.Background(), bundle, rc)
		require.NoError(t, err, day)

		ensErr, modelErr := forecastErrors(result.Horizon(contracts.Horizon7).Forecast, opts)
		ensTotal += ensErr
		for m, e := range modelErr {
			modelTotal[m] += e
		}
	}
	assert.Less(t, ensTotal, modelTotal[contracts.ModelTree])
	assert.Less(t, ensTotal, modelTotal[contracts.ModelSeasonal])
}

func values(ps []contracts.PointForecast) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p.Value
	}
	return out
}

func TestOrchestrator_DryRunCommitsNothing(t *testing.T) {
	f := newFixture(t, modelconfig.Default())
	rc := runConfig()
	rc.DryRun = true

	result, err := f.orch.Run(context.Background(), testutil.SyntheticBundle(testutil.DefaultSynthOptions()), rc)
	require.NoError(t, err)

	hr := result.Horizon(contracts.Horizon7)
	require.NotNil(t, hr.Forecast)
	assert.NotContains(t, hr.CompletedStages, StageCommit)

	_, err = f.artifacts.Current(contracts.ModelTree, contracts.Horizon7)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
	preds, _ := f.repo.ListPredictions(context.Background())
	assert.Empty(t, preds)
	entries, _ := os.ReadDir(f.resultDir)
	assert.Empty(t, entries)
}

func TestOrchestrator_PromoteFailureRestoresPreviousVersions(t *testing.T) {
	bundle := testutil.SyntheticBundle(testutil.DefaultSynthOptions())
	f := newFixture(t, modelconfig.Default())

	first, err := f.orch.Run(context.Background(), bundle, runConfig())
	require.NoError(t, err)
	before := first.Horizon(contracts.Horizon7).Versions

	// CURRENT 포인터 자리를 비어 있지 않은 디렉터리로 막아 승격 실패 유도
	pointer := filepath.Join(f.artifactDir, string(contracts.ModelSeasonal), "7", "CURRENT")
	require.NoError(t, os.Remove(pointer))
	require.NoError(t, os.MkdirAll(filepath.Join(pointer, "blocked"), 0o755))

	f.orch.SetClock(func() time.Time { return clock.Add(48 * time.Hour) })
	rc := runConfig()
	rc.RunID = "run_test_2"
	rc.ForceRetrain = true
	second, err := f.orch.Run(context.Background(), bundle, rc)
	require.Error(t, err)
	assert.ErrorContains(t, err, "promote seasonal")

	hr := second.Horizon(contracts.Horizon7)
	require.NotNil(t, hr)
	assert.NotContains(t, hr.CompletedStages, StageCommit)

	cur, err := f.artifacts.CurrentVersion(contracts.ModelTree, contracts.Horizon7)
	require.NoError(t, err)
	assert.Equal(t, before[contracts.ModelTree], cur)

	for _, m := range []contracts.ModelType{contracts.ModelTree, contracts.ModelSeasonal, contracts.ModelVolatility} {
		versions, err := f.artifacts.Versions(m, contracts.Horizon7)
		require.NoError(t, err, m)
		assert.Equal(t, []string{before[m]}, versions, m)
	}

	preds, _ := f.repo.ListPredictions(context.Background())
	assert.Len(t, preds, 1)
}

func TestOrchestrator_CancelledRunCommitsNothing(t *testing.T) {
	f := newFixture(t, modelconfig.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.orch.Run(ctx, testutil.SyntheticBundle(testutil.DefaultSynthOptions()), runConfig())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, result.Success)

	_, err = f.artifacts.Current(contracts.ModelSeasonal, contracts.Horizon7)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
	preds, _ := f.repo.ListPredictions(context.Background())
	assert.Empty(t, preds)
}

func TestOrchestrator_ConfigurationErrors(t *testing.T) {
	store, err := artifact.NewStore(t.TempDir(), 2, zerolog.Nop())
	require.NoError(t, err)

	t.Run("weights must sum to one", func(t *testing.T) {
		cfg := modelconfig.Default()
		cfg.Horizons[0].Weights[contracts.ModelTree] = 0.9
		_, err := NewOrchestrator(cfg, Deps{Artifacts: store}, logger.Nop())
		assert.ErrorIs(t, err, contracts.ErrConfiguration)
	})

	t.Run("artifact store required", func(t *testing.T) {
		_, err := NewOrchestrator(modelconfig.Default(), Deps{}, logger.Nop())
		assert.ErrorIs(t, err, contracts.ErrConfiguration)
	})

	t.Run("unconfigured horizon", func(t *testing.T) {
		cfg := modelconfig.Default()
		cfg.Horizons = cfg.Horizons[:1]
		orch, err := NewOrchestrator(cfg, Deps{Artifacts: store}, logger.Nop())
		require.NoError(t, err)

		rc := runConfig()
		rc.Horizons = []contracts.Horizon{contracts.Horizon30}
		result, err := orch.Run(context.Background(), testutil.SyntheticBundle(testutil.DefaultSynthOptions()), rc)
		assert.ErrorIs(t, err, contracts.ErrConfiguration)
		assert.Empty(t, result.Horizons)
	})
}

func TestOrchestrator_DataQualityFailsHorizon(t *testing.T) {
	opts := testutil.DefaultSynthOptions()
	bundle := testutil.SyntheticBundle(opts)
	fx := bundle.Series[contracts.SeriesFX]
	vals := append([]float64(nil), fx.Values...)
	vals[150] = math.Inf(1)
	fx.Values = vals
	bundle.Series[contracts.SeriesFX] = fx

	f := newFixture(t, modelconfig.Default())
	result, err := f.orch.Run(context.Background(), bundle, runConfig())
	require.Error(t, err)
	assert.False(t, result.Success)

	hr := result.Horizon(contracts.Horizon7)
	require.NotNil(t, hr)
	assert.ErrorIs(t, hr.Err, contracts.ErrDataQuality)
	assert.Empty(t, hr.CompletedStages)

	preds, _ := f.repo.ListPredictions(context.Background())
	assert.Empty(t, preds)
}

func TestGenerateRunID(t *testing.T) {
	a, b := GenerateRunID(), GenerateRunID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^run_\d{8}_\d{6}_[0-9a-f]{8}$`, a)
}
