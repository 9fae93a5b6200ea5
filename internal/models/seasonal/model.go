package seasonal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/modelconfig"
)

// Order (p, d, P): 자기회귀 차수, 차분 여부, 계절 주기 (0 = 계절항 없음)
type Order struct {
	P      int `json:"p"`
	D      int `json:"d"`
	Period int `json:"period"`
}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Period)
}

// lookback is the number of past days the step-1 regressors reach
func (o Order) lookback() int {
	lb := 0
	if o.P > 0 {
		lb = o.P - 1 + o.D
	}
	if o.Period > lb {
		lb = o.Period
	}
	return lb
}

// Bound 모델 자체 신뢰구간 (보조 구간 소스)
type Bound struct {
	Step   int     `json:"step"`
	Low80  float64 `json:"low80"`
	High80 float64 `json:"high80"`
	Low95  float64 `json:"low95"`
	High95 float64 `json:"high95"`
}

// Model 외생변수 계절 회귀 모델: 스텝별 직접 회귀 (로그가격 z 기준)
type Model struct {
	Horizon        contracts.Horizon `json:"horizon"`
	Target         string            `json:"target"`
	Order          Order             `json:"order"`
	Exogenous      []string          `json:"exogenous"`
	Coefs          [][]float64       `json:"coefs"` // [step-1][regressor]
	Sigma          []float64         `json:"sigma"` // 스텝별 잔차 표준편차 (로그 단위)
	AIC            float64           `json:"aic"`
	Candidates     int               `json:"candidates"`
	Degraded       bool              `json:"degraded"`
	DegradedReason string            `json:"degraded_reason,omitempty"`
	TrainStart     time.Time         `json:"train_start"`
	TrainEnd       time.Time         `json:"train_end"`
}

// Trainer 차수 탐색 + 적합
type Trainer struct {
	cfg    modelconfig.SeasonalConfig
	logger zerolog.Logger
}

// NewTrainer creates a seasonal trainer
func NewTrainer(cfg modelconfig.SeasonalConfig, logger zerolog.Logger) *Trainer {
	return &Trainer{
		cfg:    cfg,
		logger: logger.With().Str("component", "models.seasonal").Logger(),
	}
}

// Fit searches the order grid by AIC, then fits one regression per step.
// 탐색 실패 시 기본 차수로 대체하고 Degraded 표시. 기본 차수도 실패하면 ErrConvergence 반환.
func (t *Trainer) Fit(ctx context.Context, fm *contracts.FeatureMatrix, target string, h contracts.Horizon) (*Model, error) {
	if !h.Valid() {
		return nil, fmt.Errorf("%w: horizon %d", contracts.ErrConfiguration, h)
	}
	d, err := newDataset(fm, target, t.cfg.Exogenous)
	if err != nil {
		return nil, err
	}

	m := &Model{Horizon: h, Target: target, Exogenous: d.exogNames}

	order, aic, tried, searchErr := t.search(ctx, d)
	m.Candidates = tried
	if searchErr != nil {
		order = Order{P: t.cfg.DefaultOrder.P, D: t.cfg.DefaultOrder.D, Period: t.cfg.DefaultOrder.Period}
		m.Degraded = true
		m.DegradedReason = searchErr.Error()
		t.logger.Warn().
			Err(searchErr).
			Str("horizon", h.String()).
			Str("fallback_order", order.String()).
			Msg("order search failed, using default order")
	}
	m.Order = order
	m.AIC = aic

	for s := 1; s <= h.Days(); s++ {
		rows, y, dates := d.samples(order, s, nil)
		res, err := fitOLS(rows, y, t.cfg.Ridge)
		if err != nil {
			return nil, fmt.Errorf("%w: order %s step %d: %v", contracts.ErrConvergence, order, s, err)
		}
		m.Coefs = append(m.Coefs, res.beta)
		m.Sigma = append(m.Sigma, res.sigma)
		if s == 1 {
			if m.Degraded {
				m.AIC = res.aic()
			}
			m.TrainStart, m.TrainEnd = dates[0], dates[len(dates)-1]
		}
	}

	t.logger.Debug().
		Str("horizon", h.String()).
		Str("order", order.String()).
		Float64("aic", m.AIC).
		Int("candidates", tried).
		Bool("degraded", m.Degraded).
		Msg("seasonal model fitted")

	return m, nil
}

// search evaluates the bounded grid on the step-1 regression over a common sample
func (t *Trainer) search(ctx context.Context, d *dataset) (Order, float64, int, error) {
	if t.cfg.SearchTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.SearchTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	maxLookback := 0
	var grid []Order
	for _, diff := range t.cfg.Differencing {
		for p := 0; p <= t.cfg.MaxP; p++ {
			for _, period := range t.cfg.SeasonalPeriods {
				o := Order{P: p, D: diff, Period: period}
				if o.P == 0 && o.D == 0 && o.Period == 0 && len(d.exogNames) == 0 {
					continue
				}
				grid = append(grid, o)
				if lb := o.lookback(); lb > maxLookback {
					maxLookback = lb
				}
			}
		}
	}

	common := &maxLookback
	best, bestAIC, tried := Order{}, math.Inf(1), 0
	found := false
	var lastErr error
	for _, o := range grid {
		if tried >= t.cfg.MaxCandidates {
			break
		}
		if err := ctx.Err(); err != nil {
			lastErr = fmt.Errorf("%w: search budget: %v", contracts.ErrTimeout, err)
			break
		}
		tried++
		rows, y, _ := d.samples(o, 1, common)
		res, err := fitOLS(rows, y, t.cfg.Ridge)
		if err != nil {
			lastErr = err
			continue
		}
		if a := res.aic(); a < bestAIC {
			best, bestAIC, found = o, a, true
		}
	}

	if !found {
		if lastErr == nil {
			lastErr = errors.New("empty order grid")
		}
		return Order{}, math.NaN(), tried, fmt.Errorf("%w: %v", contracts.ErrConvergence, lastErr)
	}
	if lastErr != nil && errors.Is(lastErr, contracts.ErrTimeout) {
		t.logger.Warn().Int("candidates", tried).Msg("order search truncated by budget")
	}
	return best, bestAIC, tried, nil
}

// Predict forecasts the horizon from the last row of fm
func (m *Model) Predict(fm *contracts.FeatureMatrix) ([]contracts.PointForecast, error) {
	out, _, err := m.PredictWithBounds(fm)
	return out, err
}

// PredictWithBounds also returns the model's own 80/95% bounds
func (m *Model) PredictWithBounds(fm *contracts.FeatureMatrix) ([]contracts.PointForecast, []Bound, error) {
	return m.PredictAt(fm, fm.Rows()-1)
}

// PredictAt forecasts from an arbitrary issue row
func (m *Model) PredictAt(fm *contracts.FeatureMatrix, row int) ([]contracts.PointForecast, []Bound, error) {
	d, err := newDataset(fm, m.Target, m.Exogenous)
	if err != nil {
		return nil, nil, err
	}
	if len(d.exogNames) != len(m.Exogenous) {
		return nil, nil, fmt.Errorf("%w: exogenous columns changed since fit", contracts.ErrDataQuality)
	}
	if row < 0 || row >= fm.Rows() {
		return nil, nil, fmt.Errorf("%w: issue row %d out of range", contracts.ErrInsufficientHistory, row)
	}

	z80 := distuv.UnitNormal.Quantile(0.90)
	z95 := distuv.UnitNormal.Quantile(0.975)
	issue := contracts.Day(fm.Dates[row])
	zt, _ := d.z(issue)

	preds := make([]contracts.PointForecast, 0, len(m.Coefs))
	bounds := make([]Bound, 0, len(m.Coefs))
	for i, beta := range m.Coefs {
		s := i + 1
		x, ok := d.regressors(issue, row, m.Order, s)
		if !ok {
			return nil, nil, fmt.Errorf("%w: history too short at issue date for order %s", contracts.ErrInsufficientHistory, m.Order)
		}
		zhat := dot(beta, x)
		if m.Order.D == 1 {
			zhat += zt
		}
		sig := m.Sigma[i]
		preds = append(preds, contracts.PointForecast{
			Horizon:    m.Horizon,
			Step:       s,
			TargetDate: issue.AddDate(0, 0, s),
			Value:      math.Exp(zhat),
			Model:      contracts.ModelSeasonal,
		})
		bounds = append(bounds, Bound{
			Step:   s,
			Low80:  math.Exp(zhat - z80*sig),
			High80: math.Exp(zhat + z80*sig),
			Low95:  math.Exp(zhat - z95*sig),
			High95: math.Exp(zhat + z95*sig),
		})
	}
	return preds, bounds, nil
}

// Artifact serializes the fitted model
func (m *Model) Artifact(trainedAt time.Time, configHash string) (contracts.ModelArtifact, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return contracts.ModelArtifact{}, fmt.Errorf("marshal seasonal model: %w", err)
	}
	return contracts.ModelArtifact{
		Meta: contracts.ArtifactMeta{
			Model:      contracts.ModelSeasonal,
			Horizon:    m.Horizon,
			Version:    contracts.NewVersion(trainedAt),
			TrainStart: m.TrainStart,
			TrainEnd:   m.TrainEnd,
			Hyperparams: map[string]any{
				"p":      m.Order.P,
				"d":      m.Order.D,
				"period": m.Order.Period,
			},
			Features:       append([]string{m.Target}, m.Exogenous...),
			TrainedAt:      trainedAt,
			Metrics:        map[string]float64{"aic": m.AIC, "sigma_step1": m.Sigma[0]},
			ConfigHash:     configHash,
			Degraded:       m.Degraded,
			DegradedReason: m.DegradedReason,
		},
		Payload: payload,
	}, nil
}

// FromArtifact restores a model
func FromArtifact(a contracts.ModelArtifact) (*Model, error) {
	if a.Meta.Model != contracts.ModelSeasonal {
		return nil, fmt.Errorf("%w: artifact model %q is not %q", contracts.ErrConfiguration, a.Meta.Model, contracts.ModelSeasonal)
	}
	var m Model
	if err := json.Unmarshal(a.Payload, &m); err != nil {
		return nil, fmt.Errorf("unmarshal seasonal model: %w", err)
	}
	if len(m.Coefs) != m.Horizon.Days() || len(m.Sigma) != len(m.Coefs) {
		return nil, fmt.Errorf("%w: corrupt seasonal artifact", contracts.ErrConfiguration)
	}
	return &m, nil
}
