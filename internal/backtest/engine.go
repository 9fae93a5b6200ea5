package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/modelconfig"
	"github.com/wonny/fxcast/pkg/logger"
)

// EnsembleName 폴드별 가중 결합 관측치의 리포트 키
const EnsembleName = "ensemble"

// ErrLeakage 폴드 학습 구간에 cutoff 이후 날짜가 섞임 (내부 오류)
var ErrLeakage = errors.New("training window reaches cutoff")

// Status 메트릭 상태
type Status = contracts.MetricStatus

const (
	StatusOK                  = contracts.StatusOK
	StatusInsufficientHistory = contracts.StatusInsufficientHistory
)

// Engine runs walk-forward validation
// ⭐ SSOT: 백테스트(워크포워드) 실행은 여기서만
type Engine struct {
	config Config
	logger *logger.Logger
}

// Config holds backtest configuration
type Config struct {
	MinTrainRows    int           // 첫 폴드의 학습 행 수
	StepDays        int           // cutoff 전진 간격 (행 = 달력일)
	MaxFolds        int           // 최근 폴드만 유지
	MinObservations int           // 이 미만이면 INSUFFICIENT_HISTORY
	Timeout         time.Duration // 전체 예산
}

// ConfigFrom converts the backtest section of the model config
func ConfigFrom(cfg modelconfig.BacktestConfig) Config {
	return Config{
		MinTrainRows:    cfg.MinTrainRows,
		StepDays:        cfg.StepDays,
		MaxFolds:        cfg.MaxFolds,
		MinObservations: cfg.MinObservations,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// Observation 폴드 하나의 호라이즌 끝 예측 vs 실측
type Observation struct {
	Cutoff     time.Time `json:"cutoff"`
	IssueDate  time.Time `json:"issue_date"`
	TargetDate time.Time `json:"target_date"`
	IssueValue float64   `json:"issue_value"`
	Predicted  float64   `json:"predicted"`
	Actual     float64   `json:"actual"`
}

// Error returns predicted minus actual
func (o Observation) Error() float64 {
	return o.Predicted - o.Actual
}

// Metrics 표본 외 오차 지표
type Metrics struct {
	Count   int     `json:"count"`
	MAE     float64 `json:"mae"`
	RMSE    float64 `json:"rmse"`
	MAPE    float64 `json:"mape"`
	HitRate float64 `json:"hit_rate"`
}

// ModelReport 모델별 결과. Status가 INSUFFICIENT_HISTORY면 Metrics는 nil
type ModelReport struct {
	Model        string        `json:"model"`
	Status       Status        `json:"status"`
	Metrics      *Metrics      `json:"metrics,omitempty"`
	Observations []Observation `json:"observations"`
	Failures     int           `json:"failures"`
}

// Result holds backtest results
type Result struct {
	Horizon   contracts.Horizon       `json:"horizon"`
	Folds     int                     `json:"folds"`
	Completed int                     `json:"completed"`
	FirstCut  time.Time               `json:"first_cutoff"`
	LastCut   time.Time               `json:"last_cutoff"`
	Duration  time.Duration           `json:"duration"`
	TimedOut  bool                    `json:"timed_out"`
	Models    map[string]*ModelReport `json:"models"`
}

// Report returns the report for a model name (nil if absent)
func (r *Result) Report(name string) *ModelReport {
	return r.Models[name]
}

// NewEngine creates a new backtest engine
func NewEngine(config Config, logger *logger.Logger) *Engine {
	return &Engine{
		config: config,
		logger: logger,
	}
}

// Run executes walk-forward validation of the forecasters on fm.
// weights, when non-nil, adds a blended "ensemble" report.
func (e *Engine) Run(ctx context.Context, fm *contracts.FeatureMatrix, h contracts.Horizon, forecasters []Forecaster, weights map[contracts.ModelType]float64) (*Result, error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}
	return e.walk(ctx, fm, h, forecasters, weights)
}

func (e *Engine) walk(ctx context.Context, fm *contracts.FeatureMatrix, h contracts.Horizon, forecasters []Forecaster, weights map[contracts.ModelType]float64) (*Result, error) {
	if !h.Valid() {
		return nil, fmt.Errorf("%w: horizon %d", contracts.ErrConfiguration, h)
	}
	if e.config.MinTrainRows < 1 || e.config.StepDays < 1 {
		return nil, fmt.Errorf("%w: backtest config %+v", contracts.ErrConfiguration, e.config)
	}
	if len(forecasters) == 0 {
		return nil, fmt.Errorf("%w: no forecasters", contracts.ErrConfiguration)
	}
	ti := fm.ColIndex(fm.Target)
	if ti < 0 {
		return nil, fmt.Errorf("%w: target column %q missing", contracts.ErrDataQuality, fm.Target)
	}

	cutoffs := e.folds(fm, h)

	e.logger.WithFields(map[string]interface{}{
		"horizon":     h.String(),
		"rows":        fm.Rows(),
		"folds":       len(cutoffs),
		"forecasters": len(forecasters),
	}).Info("Starting backtest")

	startTime := time.Now()
	result := &Result{
		Horizon: h,
		Folds:   len(cutoffs),
		Models:  make(map[string]*ModelReport),
	}
	for _, f := range forecasters {
		result.Models[f.Name()] = &ModelReport{Model: f.Name()}
	}
	if weights != nil {
		result.Models[EnsembleName] = &ModelReport{Model: EnsembleName}
	}
	if len(cutoffs) > 0 {
		result.FirstCut = fm.Dates[cutoffs[0]]
		result.LastCut = fm.Dates[cutoffs[len(cutoffs)-1]]
	}

	dateIdx := fm.DateIndex()
	var stopErr error

folds:
	for _, c := range cutoffs {
		if ctx.Err() != nil {
			stopErr = ctx.Err()
			break
		}

		cutoff := fm.Dates[c]
		train := fm.Before(cutoff)
		if err := checkNoLeakage(train, cutoff); err != nil {
			return nil, err
		}

		issueDate := contracts.Day(train.LastDate())
		targetDate := issueDate.AddDate(0, 0, h.Days())
		base := Observation{
			Cutoff:     cutoff,
			IssueDate:  issueDate,
			TargetDate: targetDate,
			IssueValue: train.Data[train.Rows()-1][ti],
			Actual:     fm.Data[dateIdx[targetDate]][ti],
		}

		fold := make(map[contracts.ModelType]float64, len(forecasters))
		for _, f := range forecasters {
			path, err := f.Forecast(ctx, train.Clone(), h)
			if err == nil {
				var v float64
				v, err = valueAt(path, targetDate)
				if err == nil {
					obs := base
					obs.Predicted = v
					rep := result.Models[f.Name()]
					rep.Observations = append(rep.Observations, obs)
					fold[f.Model()] = v
					continue
				}
			}

			switch {
			case ctx.Err() != nil || errors.Is(err, contracts.ErrTimeout):
				stopErr = err
				break folds
			case errors.Is(err, contracts.ErrConfiguration), errors.Is(err, contracts.ErrDataQuality):
				return nil, fmt.Errorf("fold %s %s: %w", cutoff.Format("2006-01-02"), f.Name(), err)
			default:
				result.Models[f.Name()].Failures++
				e.logger.WithFields(map[string]interface{}{
					"horizon": h.String(),
					"model":   f.Name(),
					"cutoff":  cutoff.Format("2006-01-02"),
					"error":   err.Error(),
				}).Warn("Fold forecast failed")
			}
		}

		if weights != nil {
			if v, ok := blend(fold, weights); ok {
				obs := base
				obs.Predicted = v
				rep := result.Models[EnsembleName]
				rep.Observations = append(rep.Observations, obs)
			}
		}
		result.Completed++
	}

	result.Duration = time.Since(startTime)
	for _, rep := range result.Models {
		e.calculateMetrics(rep)
	}

	fields := map[string]interface{}{
		"horizon":   h.String(),
		"duration":  result.Duration.Seconds(),
		"completed": result.Completed,
		"folds":     result.Folds,
	}
	for name, rep := range result.Models {
		if rep.Metrics != nil {
			fields[name+"_mae"] = fmt.Sprintf("%.4f", rep.Metrics.MAE)
		} else {
			fields[name+"_mae"] = string(rep.Status)
		}
	}

	if stopErr != nil {
		result.TimedOut = true
		e.logger.WithFields(fields).Warn("Backtest stopped early")
		if errors.Is(stopErr, context.Canceled) {
			return result, stopErr
		}
		return result, fmt.Errorf("%w: backtest stopped after %d of %d folds", contracts.ErrTimeout, result.Completed, result.Folds)
	}

	e.logger.WithFields(fields).Info("Backtest completed")
	return result, nil
}

// folds returns cutoff row indices whose end-of-horizon actual is observable.
// Only the most recent MaxFolds are kept.
func (e *Engine) folds(fm *contracts.FeatureMatrix, h contracts.Horizon) []int {
	dateIdx := fm.DateIndex()
	var cutoffs []int
	for c := e.config.MinTrainRows; c < fm.Rows(); c += e.config.StepDays {
		issue := contracts.Day(fm.Dates[c-1])
		if _, ok := dateIdx[issue.AddDate(0, 0, h.Days())]; !ok {
			continue
		}
		cutoffs = append(cutoffs, c)
	}
	if e.config.MaxFolds > 0 && len(cutoffs) > e.config.MaxFolds {
		cutoffs = cutoffs[len(cutoffs)-e.config.MaxFolds:]
	}
	return cutoffs
}

// checkNoLeakage verifies every training date is strictly before cutoff
func checkNoLeakage(train *contracts.FeatureMatrix, cutoff time.Time) error {
	c := contracts.Day(cutoff)
	if train.Rows() == 0 {
		return fmt.Errorf("%w: empty training window before %s", contracts.ErrInsufficientHistory, c.Format("2006-01-02"))
	}
	for _, d := range train.Dates {
		if !contracts.Day(d).Before(c) {
			return fmt.Errorf("%w: %s >= %s", ErrLeakage, d.Format("2006-01-02"), c.Format("2006-01-02"))
		}
	}
	return nil
}

func valueAt(path []contracts.PointForecast, target time.Time) (float64, error) {
	for _, p := range path {
		if contracts.Day(p.TargetDate).Equal(target) {
			if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
				return 0, fmt.Errorf("%w: non-finite forecast at %s", contracts.ErrConvergence, target.Format("2006-01-02"))
			}
			return p.Value, nil
		}
	}
	return 0, fmt.Errorf("%w: no forecast for %s", contracts.ErrInsufficientHistory, target.Format("2006-01-02"))
}

// blend mirrors the combiner: a single surviving contributor takes weight 1.0
func blend(fold map[contracts.ModelType]float64, weights map[contracts.ModelType]float64) (float64, bool) {
	if len(fold) == 0 {
		return 0, false
	}
	if len(fold) == 1 {
		for _, v := range fold {
			return v, true
		}
	}
	var sum, wsum float64
	for m, v := range fold {
		w := weights[m]
		sum += w * v
		wsum += w
	}
	if wsum <= 0 {
		return 0, false
	}
	return sum / wsum, true
}

// calculateMetrics fills MAE/RMSE/MAPE/hit rate or marks insufficient history
func (e *Engine) calculateMetrics(rep *ModelReport) {
	sort.Slice(rep.Observations, func(i, j int) bool {
		return rep.Observations[i].Cutoff.Before(rep.Observations[j].Cutoff)
	})
	minObs := e.config.MinObservations
	if minObs < 1 {
		minObs = 1
	}
	if len(rep.Observations) < minObs {
		rep.Status = StatusInsufficientHistory
		rep.Metrics = nil
		return
	}
	rep.Status = StatusOK
	rep.Metrics = CalculateMetrics(rep.Observations)
}

// CalculateMetrics aggregates observations. Returns nil for an empty slice.
func CalculateMetrics(obs []Observation) *Metrics {
	if len(obs) == 0 {
		return nil
	}
	var absSum, sqSum, pctSum float64
	hits, pctN := 0, 0
	for _, o := range obs {
		err := o.Error()
		absSum += math.Abs(err)
		sqSum += err * err
		if o.Actual != 0 {
			pctSum += math.Abs(err / o.Actual)
			pctN++
		}
		if directionHit(o.IssueValue, o.Predicted, o.Actual) {
			hits++
		}
	}
	n := float64(len(obs))
	m := &Metrics{
		Count:   len(obs),
		MAE:     absSum / n,
		RMSE:    math.Sqrt(sqSum / n),
		HitRate: float64(hits) / n,
	}
	if pctN > 0 {
		m.MAPE = pctSum / float64(pctN)
	}
	return m
}

func directionHit(issue, predicted, actual float64) bool {
	dp, da := predicted-issue, actual-issue
	if da == 0 {
		return dp == 0
	}
	return dp*da > 0
}
