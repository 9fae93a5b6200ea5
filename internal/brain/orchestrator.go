package brain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/fxcast/internal/artifact"
	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/dataio"
	"github.com/wonny/fxcast/internal/ensemble"
	"github.com/wonny/fxcast/internal/features"
	"github.com/wonny/fxcast/internal/forecast"
	"github.com/wonny/fxcast/internal/models/seasonal"
	"github.com/wonny/fxcast/internal/models/tree"
	"github.com/wonny/fxcast/internal/modelconfig"
	"github.com/wonny/fxcast/internal/volatility"
	"github.com/wonny/fxcast/pkg/logger"
)

// 호라이즌별 단계 이름
const (
	StageFeatures = "features"
	StageModels   = "models"
	StageCombine  = "combine"
	StageCommit   = "commit"
)

// Orchestrator coordinates one forecasting run across horizons
// ⭐ SSOT: 파이프라인 조율은 여기서만
type Orchestrator struct {
	cfg        *modelconfig.Config
	configHash string

	pipeline  *features.Pipeline
	combiner  *ensemble.Combiner
	estimator *volatility.Estimator
	trees     *tree.Trainer
	seasonals *seasonal.Trainer

	artifacts *artifact.Store
	results   *forecast.ResultStore
	tracker   *forecast.Tracker

	logger *logger.Logger
	now    func() time.Time
}

// Deps 커밋 대상. Results/Tracker가 nil이면 해당 단계 생략
type Deps struct {
	Artifacts *artifact.Store
	Results   *forecast.ResultStore
	Tracker   *forecast.Tracker
}

// RunConfig holds configuration for a forecasting run
type RunConfig struct {
	Date         time.Time           // 데이터 기준일. 이후 관측은 무시 (zero면 전체)
	RunID        string
	Horizons     []contracts.Horizon // 비어 있으면 설정된 전체
	ForceRetrain bool
	DryRun       bool          // true면 커밋 단계 생략
	ModelBudget  time.Duration // 점예측 모델별 적합 시간 한도 (0 = 없음)
}

// HorizonResult 호라이즌 하나의 결과
type HorizonResult struct {
	Horizon         contracts.Horizon                `json:"horizon"`
	Forecast        *contracts.ForecastResult        `json:"forecast,omitempty"`
	Quality         *features.QualityReport          `json:"quality,omitempty"`
	Retrained       bool                             `json:"retrained"`
	Versions        map[contracts.ModelType]string   `json:"versions,omitempty"`
	CompletedStages []string                         `json:"completed_stages"`
	OutputPath      string                           `json:"output_path,omitempty"`
	Logged          int                              `json:"logged"`
	Err             error                            `json:"-"`
}

// RunResult holds the results of a complete run
type RunResult struct {
	RunID    string           `json:"run_id"`
	Date     time.Time        `json:"date"`
	Success  bool             `json:"success"`
	Paired   int              `json:"paired"`
	Horizons []*HorizonResult `json:"horizons"`
	Duration time.Duration    `json:"duration"`
	Error    error            `json:"-"`
}

// Horizon returns the result for h
func (r *RunResult) Horizon(h contracts.Horizon) *HorizonResult {
	for _, hr := range r.Horizons {
		if hr.Horizon == h {
			return hr
		}
	}
	return nil
}

// NewOrchestrator validates the configuration before anything is fitted
func NewOrchestrator(cfg *modelconfig.Config, deps Deps, log *logger.Logger) (*Orchestrator, error) {
	if err := modelconfig.Validate(cfg); err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}
	if deps.Artifacts == nil {
		return nil, fmt.Errorf("%w: artifact store required", contracts.ErrConfiguration)
	}
	hash, err := modelconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash model config: %w", err)
	}

	zl := log.Zerolog()
	combiner, err := ensemble.NewCombiner(cfg.BlendTable(), zl)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:        cfg,
		configHash: hash,
		pipeline:   features.NewPipeline(cfg.Features, zl),
		combiner:   combiner,
		estimator:  volatility.NewEstimator(cfg.Volatility, zl),
		trees:      tree.NewTrainer(tree.ParamsFrom(cfg.Tree), zl),
		seasonals:  seasonal.NewTrainer(cfg.Seasonal, zl),
		artifacts:  deps.Artifacts,
		results:    deps.Results,
		tracker:    deps.Tracker,
		logger:     log,
		now:        time.Now,
	}, nil
}

// SetClock overrides the wall clock used for training timestamps and logging
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// ConfigHash returns the fingerprint stamped on artifacts
func (o *Orchestrator) ConfigHash() string {
	return o.configHash
}

// Run executes every requested horizon against one immutable bundle snapshot.
// DataQuality and model failures abort only their horizon; configuration errors
// and cancellation abort the run.
func (o *Orchestrator) Run(ctx context.Context, bundle contracts.RawSeriesBundle, config RunConfig) (*RunResult, error) {
	startTime := o.now()
	if config.RunID == "" {
		config.RunID = GenerateRunID()
	}
	if !config.Date.IsZero() {
		bundle = dataio.AsOf(bundle, config.Date)
	}

	horizons := config.Horizons
	if len(horizons) == 0 {
		horizons = o.cfg.HorizonList()
	}

	result := &RunResult{
		RunID: config.RunID,
		Date:  config.Date,
	}

	o.logger.WithFields(map[string]interface{}{
		"run_id":        config.RunID,
		"date":          config.Date.Format("2006-01-02"),
		"horizons":      fmt.Sprint(horizons),
		"force_retrain": config.ForceRetrain,
		"dry_run":       config.DryRun,
	}).Info("Starting forecast run")

	for _, h := range horizons {
		if _, ok := o.cfg.Horizon(h); !ok {
			result.Error = fmt.Errorf("%w: horizon %s not configured", contracts.ErrConfiguration, h)
			return result, result.Error
		}
	}

	if o.tracker != nil && !config.DryRun {
		if target, err := bundle.TargetSeries(); err == nil {
			n, err := o.tracker.PairFromSeries(ctx, target, o.now())
			if err != nil {
				o.logger.WithError(err).Warn("Pairing actuals failed")
			}
			result.Paired = n
		}
	}

	var failed []error
	for _, h := range horizons {
		if err := ctx.Err(); err != nil {
			result.Error = err
			return result, err
		}

		hr := o.runHorizon(ctx, bundle, h, config)
		result.Horizons = append(result.Horizons, hr)
		if hr.Err == nil {
			continue
		}

		if errors.Is(hr.Err, context.Canceled) || errors.Is(hr.Err, context.DeadlineExceeded) {
			result.Error = hr.Err
			return result, hr.Err
		}
		if errors.Is(hr.Err, contracts.ErrConfiguration) {
			result.Error = fmt.Errorf("%s: %w", h, hr.Err)
			return result, result.Error
		}
		failed = append(failed, fmt.Errorf("%s: %w", h, hr.Err))
	}

	result.Duration = o.now().Sub(startTime)
	if len(failed) > 0 {
		result.Error = errors.Join(failed...)
		o.logger.WithFields(map[string]interface{}{
			"run_id":   config.RunID,
			"failed":   len(failed),
			"horizons": len(horizons),
		}).WithError(result.Error).Error("Forecast run finished with failures")
		return result, result.Error
	}

	result.Success = true
	o.logger.WithFields(map[string]interface{}{
		"run_id":   config.RunID,
		"duration": result.Duration.Seconds(),
		"horizons": len(result.Horizons),
		"paired":   result.Paired,
	}).Info("Forecast run completed successfully")

	return result, nil
}

// runHorizon: features → {tree, seasonal, volatility} → combine → commit
func (o *Orchestrator) runHorizon(ctx context.Context, bundle contracts.RawSeriesBundle, h contracts.Horizon, config RunConfig) *HorizonResult {
	hr := &HorizonResult{Horizon: h, Versions: map[contracts.ModelType]string{}}
	hc, _ := o.cfg.Horizon(h)
	log := o.logger.WithFields(map[string]interface{}{"run_id": config.RunID, "horizon": h.String()})

	fm, report, err := o.pipeline.Build(bundle, h)
	hr.Quality = report
	if err != nil {
		hr.Err = fmt.Errorf("feature pipeline: %w", err)
		log.WithError(hr.Err).Error("Feature stage failed")
		return hr
	}
	hr.CompletedStages = append(hr.CompletedStages, StageFeatures)

	if err := ctx.Err(); err != nil {
		hr.Err = err
		return hr
	}

	retrain := o.dueForRetrain(h, hc, config.ForceRetrain)
	hr.Retrained = retrain
	trainedAt := o.now().UTC()

	outcomes := o.fitModels(ctx, fm, h, hc, retrain, trainedAt, config.ModelBudget)
	for _, oc := range []*modelOutcome{outcomes.tree, outcomes.seasonal, outcomes.vol} {
		if oc.err != nil {
			hr.Err = fmt.Errorf("%s model: %w", oc.model, oc.err)
			log.WithError(hr.Err).Error("Model stage failed")
			return hr
		}
	}
	hr.CompletedStages = append(hr.CompletedStages, StageModels)

	if err := ctx.Err(); err != nil {
		hr.Err = err
		return hr
	}

	issueValue, _ := lastTarget(fm)
	res, err := o.combiner.Combine(ensemble.Input{
		Horizon:    h,
		IssueDate:  fm.LastDate(),
		IssueValue: issueValue,
		Tree:       outcomes.tree.points,
		Seasonal:   outcomes.seasonal.points,
		Variances:  outcomes.vol.variances,
	})
	if err != nil {
		hr.Err = fmt.Errorf("combine: %w", err)
		log.WithError(hr.Err).Error("Combine stage failed")
		return hr
	}
	res.RunID = config.RunID
	res.GeneratedAt = o.now().UTC()
	for _, oc := range []*modelOutcome{outcomes.tree, outcomes.seasonal, outcomes.vol} {
		if oc.warning != "" {
			res.Warnings = append(res.Warnings, oc.warning)
		}
		if oc.degraded {
			res.Degraded = true
		}
	}
	hr.Forecast = res
	hr.CompletedStages = append(hr.CompletedStages, StageCombine)

	// 취소된 호라이즌은 아무것도 커밋하지 않음
	if err := ctx.Err(); err != nil {
		hr.Err = err
		return hr
	}
	if config.DryRun {
		log.Info("Dry run, skipping commit")
		return hr
	}

	if err := o.commit(context.WithoutCancel(ctx), hr, outcomes); err != nil {
		hr.Err = fmt.Errorf("commit: %w", err)
		log.WithError(hr.Err).Error("Commit stage failed")
		return hr
	}
	hr.CompletedStages = append(hr.CompletedStages, StageCommit)

	log.WithFields(map[string]interface{}{
		"retrained":  hr.Retrained,
		"degraded":   res.Degraded,
		"models":     fmt.Sprint(res.Models),
		"final_mean": res.Steps[len(res.Steps)-1].Mean,
	}).Info("Horizon completed")
	return hr
}

// dueForRetrain reuses current point-model artifacts trained under the same
// configuration within the horizon's cadence
func (o *Orchestrator) dueForRetrain(h contracts.Horizon, hc modelconfig.HorizonConfig, force bool) bool {
	if force {
		return true
	}
	for _, m := range []contracts.ModelType{contracts.ModelTree, contracts.ModelSeasonal} {
		a, err := o.artifacts.Current(m, h)
		if err != nil {
			return true
		}
		if a.Meta.ConfigHash != o.configHash {
			return true
		}
		age := o.now().Sub(a.Meta.TrainedAt)
		if age >= time.Duration(hc.RetrainEveryDays)*24*time.Hour {
			return true
		}
	}
	return false
}

// candidate 저장됐지만 아직 승격 전인 아티팩트 버전
type candidate struct {
	model   contracts.ModelType
	version string
}

// commit saves every candidate, then promotes, then publishes the result and logs the prediction.
// 저장 실패 시 이미 저장한 후보는 폐기하고 현재 버전은 유지.
// 승격 실패 시 먼저 승격한 슬롯은 되돌리고 남은 후보는 폐기
func (o *Orchestrator) commit(ctx context.Context, hr *HorizonResult, outcomes modelOutcomes) error {
	var pending []candidate
	for _, oc := range []*modelOutcome{outcomes.tree, outcomes.seasonal, outcomes.vol} {
		if oc.artifact == nil {
			if oc.version != "" {
				hr.Versions[oc.model] = oc.version
			}
			continue
		}
		v, err := o.artifacts.Save(*oc.artifact)
		if err != nil {
			o.unwind(hr.Horizon, nil, pending)
			return fmt.Errorf("save %s artifact: %w", oc.model, err)
		}
		pending = append(pending, candidate{model: oc.model, version: v})
	}
	for i, c := range pending {
		if err := o.artifacts.Promote(c.model, hr.Horizon, c.version); err != nil {
			o.unwind(hr.Horizon, pending[:i], pending[i:])
			return fmt.Errorf("promote %s artifact: %w", c.model, err)
		}
	}
	for _, c := range pending {
		hr.Versions[c.model] = c.version
	}

	if o.results != nil {
		path, err := o.results.Commit(ctx, hr.Forecast)
		if err != nil {
			return err
		}
		hr.OutputPath = path
	}
	if o.tracker != nil {
		n, err := o.tracker.LogResults(ctx, []*contracts.ForecastResult{hr.Forecast}, o.now().UTC())
		if err != nil {
			return fmt.Errorf("log prediction: %w", err)
		}
		hr.Logged = n
	}
	return nil
}

// unwind restores the previous current version of promoted slots and removes
// every candidate that is no longer current
func (o *Orchestrator) unwind(h contracts.Horizon, promoted, unpromoted []candidate) {
	log := o.logger.WithField("horizon", h.String())
	for _, c := range promoted {
		prev, err := o.artifacts.Rollback(c.model, h)
		if err != nil {
			// 이전 버전이 없는 첫 학습 슬롯은 새 버전을 유지
			log.WithFields(map[string]interface{}{
				"model":   string(c.model),
				"version": c.version,
			}).WithError(err).Warn("Rolling back promoted artifact failed")
			continue
		}
		log.WithFields(map[string]interface{}{
			"model": string(c.model),
			"from":  c.version,
			"to":    prev,
		}).Warn("Promoted artifact rolled back")
		unpromoted = append(unpromoted, c)
	}
	for _, c := range unpromoted {
		if err := o.artifacts.Discard(c.model, h, c.version); err != nil {
			log.WithError(err).Warn("Discarding candidate artifact failed")
		}
	}
}

func lastTarget(fm *contracts.FeatureMatrix) (float64, bool) {
	vals, ok := fm.TargetValues()
	if !ok || len(vals) == 0 {
		return math.NaN(), false
	}
	return vals[len(vals)-1], true
}

// logReturns returns ln(p[t]/p[t-1]) over the target column
func logReturns(fm *contracts.FeatureMatrix) []float64 {
	vals, ok := fm.TargetValues()
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(vals))
	for i := 1; i < len(vals); i++ {
		if vals[i-1] > 0 && vals[i] > 0 {
			out = append(out, math.Log(vals[i]/vals[i-1]))
		}
	}
	return out
}

// GenerateRunID generates a unique run ID
func GenerateRunID() string {
	return fmt.Sprintf("run_%s_%s", time.Now().UTC().Format("20060102_150405"), uuid.NewString()[:8])
}

// modelOutcome 모델별 적합 결과. err는 호라이즌 중단 사유
type modelOutcome struct {
	model     contracts.ModelType
	points    []contracts.PointForecast
	variances []float64
	artifact  *contracts.ModelArtifact // 새로 학습한 경우만
	version   string                   // 재사용한 아티팩트 버전
	degraded  bool
	warning   string
	err       error
}

type modelOutcomes struct {
	tree, seasonal, vol *modelOutcome
}

// pointModel is what the orchestrator needs from the tree and seasonal models
type pointModel interface {
	Predict(fm *contracts.FeatureMatrix) ([]contracts.PointForecast, error)
	Artifact(trainedAt time.Time, configHash string) (contracts.ModelArtifact, error)
}

type pointSpec struct {
	model contracts.ModelType
	fit   func(ctx context.Context, fm *contracts.FeatureMatrix, h contracts.Horizon) (pointModel, bool, error)
	load  func(a contracts.ModelArtifact) (pointModel, bool, error)
}

// fitModels runs the three models concurrently, each on its own matrix copy
func (o *Orchestrator) fitModels(ctx context.Context, fm *contracts.FeatureMatrix, h contracts.Horizon, hc modelconfig.HorizonConfig, retrain bool, trainedAt time.Time, budget time.Duration) modelOutcomes {
	treeSpec := pointSpec{
		model: contracts.ModelTree,
		fit: func(ctx context.Context, fm *contracts.FeatureMatrix, h contracts.Horizon) (pointModel, bool, error) {
			m, err := o.trees.Fit(ctx, fm, fm.Target, h)
			if err != nil {
				return nil, false, err
			}
			return m, false, nil
		},
		load: func(a contracts.ModelArtifact) (pointModel, bool, error) {
			m, err := tree.FromArtifact(a)
			if err != nil {
				return nil, false, err
			}
			return m, a.Meta.Degraded, nil
		},
	}
	seasonalSpec := pointSpec{
		model: contracts.ModelSeasonal,
		fit: func(ctx context.Context, fm *contracts.FeatureMatrix, h contracts.Horizon) (pointModel, bool, error) {
			m, err := o.seasonals.Fit(ctx, fm, fm.Target, h)
			if err != nil {
				return nil, false, err
			}
			return m, m.Degraded, nil
		},
		load: func(a contracts.ModelArtifact) (pointModel, bool, error) {
			m, err := seasonal.FromArtifact(a)
			if err != nil {
				return nil, false, err
			}
			return m, m.Degraded, nil
		},
	}

	out := modelOutcomes{}
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		out.tree = o.runPoint(ctx, treeSpec, fm.Clone(), h, retrain, trainedAt, budget)
	}()
	go func() {
		defer wg.Done()
		out.seasonal = o.runPoint(ctx, seasonalSpec, fm.Clone(), h, retrain, trainedAt, budget)
	}()
	go func() {
		defer wg.Done()
		out.vol = o.runVolatility(fm.Clone(), h, hc.Volatility, trainedAt)
	}()
	wg.Wait()
	return out
}

// runPoint fits or reuses one point model. Recoverable failures drop the
// contributor with a warning; the combiner then widens the other weight.
func (o *Orchestrator) runPoint(ctx context.Context, ps pointSpec, fm *contracts.FeatureMatrix, h contracts.Horizon, retrain bool, trainedAt time.Time, budget time.Duration) *modelOutcome {
	oc := &modelOutcome{model: ps.model}
	log := o.logger.Zerolog().With().Str("horizon", h.String()).Str("model", string(ps.model)).Logger()

	if !retrain {
		if a, err := o.artifacts.Current(ps.model, h); err == nil {
			m, degraded, err := ps.load(*a)
			if err == nil {
				points, perr := m.Predict(fm)
				if perr == nil {
					oc.points, oc.version, oc.degraded = points, a.Meta.Version, degraded
					return oc
				}
				err = perr
			}
			log.Warn().Err(err).Msg("current artifact unusable, retraining")
		}
	}

	fitCtx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	m, degraded, err := ps.fit(fitCtx, fm, h)
	if err == nil {
		var points []contracts.PointForecast
		points, err = m.Predict(fm)
		if err == nil {
			a, aerr := m.Artifact(trainedAt, o.configHash)
			if aerr != nil {
				oc.err = aerr
				return oc
			}
			oc.points, oc.artifact, oc.degraded = points, &a, degraded
			if degraded {
				oc.warning = fmt.Sprintf("%s fitted with fallback configuration: %s", ps.model, a.Meta.DegradedReason)
			}
			return oc
		}
	}

	switch {
	case ctx.Err() != nil:
		oc.err = ctx.Err()
	case errors.Is(err, contracts.ErrDataQuality), errors.Is(err, contracts.ErrConfiguration):
		oc.err = err
	default:
		if fitCtx.Err() != nil {
			err = fmt.Errorf("%w: %s exceeded %s: %v", contracts.ErrTimeout, ps.model, budget, err)
		}
		oc.warning = fmt.Sprintf("%s dropped: %v", ps.model, err)
		oc.degraded = true
		log.Warn().Err(err).Msg("point model dropped from ensemble")
	}
	return oc
}

// runVolatility always refits: the variance path depends on the latest shocks
func (o *Orchestrator) runVolatility(fm *contracts.FeatureMatrix, h contracts.Horizon, variant string, trainedAt time.Time) *modelOutcome {
	oc := &modelOutcome{model: contracts.ModelVolatility}
	m, err := o.estimator.Fit(logReturns(fm), variant)
	if err != nil {
		oc.err = err
		return oc
	}
	oc.variances = m.ForecastVariance(h.Days())
	oc.degraded = m.Degraded
	if m.Degraded {
		oc.warning = fmt.Sprintf("volatility fell back to %s: %s", m.Variant, m.DegradedReason)
	}

	start, end := time.Time{}, time.Time{}
	if fm.Rows() > 0 {
		start, end = fm.Dates[0], fm.LastDate()
	}
	a, err := m.Artifact(h, trainedAt, start, end, o.configHash)
	if err != nil {
		oc.err = err
		return oc
	}
	oc.artifact = &a
	return oc
}
