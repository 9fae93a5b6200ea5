package ensemble

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/modelconfig"
	"github.com/wonny/fxcast/internal/volatility"
)

// ErrNoContributors 두 점예측 모델이 모두 빠진 경우
var ErrNoContributors = errors.New("no point forecast contributors")

// Combiner 호라이즌별 고정 가중치로 점예측을 결합하고 변동성 기반 구간을 붙임
type Combiner struct {
	weights map[contracts.Horizon]map[contracts.ModelType]float64
	logger  zerolog.Logger
}

// Input 결합 입력. 빠진 모델은 nil
type Input struct {
	Horizon    contracts.Horizon
	IssueDate  time.Time
	IssueValue float64
	Tree       []contracts.PointForecast
	Seasonal   []contracts.PointForecast
	Variances  []float64 // 스텝별 로그수익률 분산
}

// NewCombiner validates every row of the weight table up front
func NewCombiner(weights map[contracts.Horizon]map[contracts.ModelType]float64, logger zerolog.Logger) (*Combiner, error) {
	for h, w := range weights {
		if err := modelconfig.ValidateWeights(w); err != nil {
			return nil, fmt.Errorf("%w: blend weights for %s: %v", contracts.ErrConfiguration, h, err)
		}
	}
	return &Combiner{
		weights: weights,
		logger:  logger.With().Str("component", "ensemble.combiner").Logger(),
	}, nil
}

// Weights returns the validated row for a horizon
func (c *Combiner) Weights(h contracts.Horizon) (map[contracts.ModelType]float64, error) {
	w, ok := c.weights[h]
	if !ok {
		return nil, fmt.Errorf("%w: blend weights missing for %s", contracts.ErrConfiguration, h)
	}
	return w, nil
}

// Combine produces the ForecastResult for one horizon.
// 한 모델이 빠지면 남은 모델 가중치를 1.0으로 올리고 경고를 남김
func (c *Combiner) Combine(in Input) (*contracts.ForecastResult, error) {
	w, err := c.Weights(in.Horizon)
	if err != nil {
		return nil, err
	}
	steps := in.Horizon.Days()

	contributors := map[contracts.ModelType][]contracts.PointForecast{}
	if len(in.Tree) > 0 {
		contributors[contracts.ModelTree] = in.Tree
	}
	if len(in.Seasonal) > 0 {
		contributors[contracts.ModelSeasonal] = in.Seasonal
	}
	for m, p := range contributors {
		if len(p) != steps {
			return nil, fmt.Errorf("%w: %s produced %d steps, want %d", contracts.ErrDataQuality, m, len(p), steps)
		}
	}

	result := &contracts.ForecastResult{
		Horizon:    in.Horizon,
		IssueDate:  contracts.Day(in.IssueDate),
		IssueValue: in.IssueValue,
		Weights:    map[string]float64{},
	}

	switch len(contributors) {
	case 0:
		return nil, fmt.Errorf("%w for %s", ErrNoContributors, in.Horizon)
	case 1:
		for m := range contributors {
			result.Weights[string(m)] = 1.0
			missing := contracts.ModelTree
			if m == contracts.ModelTree {
				missing = contracts.ModelSeasonal
			}
			msg := fmt.Sprintf("%s contributor missing, %s weight widened to 1.0", missing, m)
			result.Warnings = append(result.Warnings, msg)
			result.Degraded = true
			c.logger.Warn().
				Str("horizon", in.Horizon.String()).
				Str("missing", string(missing)).
				Str("remaining", string(m)).
				Msg("ensemble contributor missing, widening remaining weight")
		}
	default:
		for m := range contributors {
			result.Weights[string(m)] = w[m]
		}
	}

	models := make([]contracts.ModelType, 0, len(contributors))
	for m := range contributors {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i] > models[j] }) // tree, seasonal
	result.Models = models

	means := make([]float64, steps)
	for s := 0; s < steps; s++ {
		for _, m := range models {
			means[s] += result.Weights[string(m)] * contributors[m][s].Value
		}
	}

	variances := in.Variances
	if len(variances) < steps {
		return nil, fmt.Errorf("%w: %d variance steps, want %d", contracts.ErrDataQuality, len(variances), steps)
	}
	bands := volatility.Bands(means, variances[:steps])

	issue := contracts.Day(in.IssueDate)
	result.Steps = make([]contracts.ForecastStep, steps)
	for s := 0; s < steps; s++ {
		contrib := make([]contracts.PointForecast, 0, len(models))
		for _, m := range models {
			contrib = append(contrib, contributors[m][s])
		}
		b := bands[s]
		result.Steps[s] = contracts.ForecastStep{
			Step:          s + 1,
			Date:          issue.AddDate(0, 0, s+1),
			Mean:          means[s],
			CI80Low:       b.Low80,
			CI80High:      b.High80,
			CI95Low:       b.Low95,
			CI95High:      b.High95,
			Contributions: contrib,
		}
	}

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("ensemble invariant violated: %w", err)
	}
	return result, nil
}
