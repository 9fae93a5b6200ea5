package volatility

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/modelconfig"
)

// 변형
const (
	VariantGARCH = modelconfig.VariantGARCH // 대칭 GARCH(1,1)
	VariantGJR   = modelconfig.VariantGJR   // 비대칭 GJR-GARCH(1,1)
	VariantEWMA  = "ewma"                   // 최적화 실패 시 대체
)

const (
	maxPersistence = 0.999
	invalidPenalty = 1e12 // 단체법이 비유한 값을 받지 않도록 유한 벌점 사용
)

// Model 조건부 분산 모델 (수익률은 ReturnScale 배 스케일)
type Model struct {
	Variant        string  `json:"variant"`
	Requested      string  `json:"requested"`
	Scale          float64 `json:"scale"`
	Mu             float64 `json:"mu"`
	Omega          float64 `json:"omega"`
	Alpha          float64 `json:"alpha"`
	Beta           float64 `json:"beta"`
	Gamma          float64 `json:"gamma"`
	Lambda         float64 `json:"lambda,omitempty"`
	LastResid      float64 `json:"last_resid"`
	LastVar        float64 `json:"last_var"`
	LogLik         float64 `json:"loglik"`
	N              int     `json:"n"`
	Degraded       bool    `json:"degraded"`
	DegradedReason string  `json:"degraded_reason,omitempty"`
}

// Persistence returns α + γ/2 + β
func (m *Model) Persistence() float64 {
	return m.Alpha + m.Gamma/2 + m.Beta
}

// Estimator fits GARCH-family models
type Estimator struct {
	cfg    modelconfig.VolatilityConfig
	logger zerolog.Logger
}

// NewEstimator creates a volatility estimator
func NewEstimator(cfg modelconfig.VolatilityConfig, logger zerolog.Logger) *Estimator {
	return &Estimator{
		cfg:    cfg,
		logger: logger.With().Str("component", "volatility.garch").Logger(),
	}
}

// Fit estimates the requested variant on log returns by Gaussian maximum likelihood.
// 최적화 실패 또는 관측치 부족 시 EWMA로 대체하고 Degraded 표시
func (e *Estimator) Fit(returns []float64, variant string) (*Model, error) {
	if variant != VariantGARCH && variant != VariantGJR {
		return nil, fmt.Errorf("%w: volatility variant %q", contracts.ErrConfiguration, variant)
	}
	clean := make([]float64, 0, len(returns))
	for _, r := range returns {
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			clean = append(clean, r*e.cfg.ReturnScale)
		}
	}
	if len(clean) < 2 {
		return nil, fmt.Errorf("%w: %d returns", contracts.ErrInsufficientHistory, len(clean))
	}

	mu := stat.Mean(clean, nil)
	resid := make([]float64, len(clean))
	for i, r := range clean {
		resid[i] = r - mu
	}

	if len(clean) < e.cfg.MinObservations {
		m := e.ewma(resid, mu, variant)
		m.DegradedReason = fmt.Sprintf("%v: %d returns < %d", contracts.ErrInsufficientHistory, len(clean), e.cfg.MinObservations)
		e.logger.Warn().Str("variant", variant).Int("n", len(clean)).Msg("too few returns, using EWMA variance")
		return m, nil
	}

	m, err := e.mle(resid, mu, variant)
	if err != nil {
		fb := e.ewma(resid, mu, variant)
		fb.DegradedReason = err.Error()
		e.logger.Warn().Err(err).Str("variant", variant).Msg("GARCH estimation failed, using EWMA variance")
		return fb, nil
	}

	e.logger.Debug().
		Str("variant", variant).
		Float64("omega", m.Omega).
		Float64("alpha", m.Alpha).
		Float64("beta", m.Beta).
		Float64("gamma", m.Gamma).
		Float64("loglik", m.LogLik).
		Msg("volatility model fitted")
	return m, nil
}

func (e *Estimator) mle(resid []float64, mu float64, variant string) (*Model, error) {
	sampleVar := 0.0
	for _, r := range resid {
		sampleVar += r * r
	}
	sampleVar /= float64(len(resid))
	if sampleVar <= 0 {
		return nil, fmt.Errorf("%w: zero return variance", contracts.ErrConvergence)
	}

	asym := variant == VariantGJR
	decode := func(x []float64) (omega, alpha, beta, gamma float64) {
		omega = math.Exp(x[0])
		pers := maxPersistence * sigmoid(x[1])
		if asym {
			wa, wg, wb := softmax3(x[2], x[3], 0)
			return omega, pers * wa, pers * wb, 2 * pers * wg
		}
		sa := sigmoid(x[2])
		return omega, pers * sa, pers * (1 - sa), 0
	}

	nll := func(x []float64) float64 {
		omega, alpha, beta, gamma := decode(x)
		v, _ := filter(resid, sampleVar, omega, alpha, beta, gamma)
		return v
	}

	// 시작점: α=0.05, β=0.90 (GJR은 γ=0.05 추가)
	pers0 := 0.95
	x0 := []float64{math.Log(sampleVar * (1 - pers0)), logit(pers0 / maxPersistence), logit(0.05 / 0.95)}
	if asym {
		pers0 = 0.975
		x0 = []float64{math.Log(sampleVar * (1 - pers0)), logit(pers0 / maxPersistence), math.Log(0.05 / 0.90), math.Log(0.025 / 0.90)}
	}

	problem := optimize.Problem{Func: nll}
	settings := &optimize.Settings{
		MajorIterations: e.cfg.MaxIterations,
		FuncEvaluations: e.cfg.MaxIterations * 20,
	}
	res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrConvergence, err)
	}
	if res == nil || math.IsNaN(res.F) || math.IsInf(res.F, 0) {
		return nil, fmt.Errorf("%w: non-finite likelihood", contracts.ErrConvergence)
	}

	omega, alpha, beta, gamma := decode(res.X)
	value, lastVar := filter(resid, sampleVar, omega, alpha, beta, gamma)
	if math.IsNaN(lastVar) || lastVar <= 0 {
		return nil, fmt.Errorf("%w: invalid conditional variance", contracts.ErrConvergence)
	}
	return &Model{
		Variant:   variant,
		Requested: variant,
		Scale:     e.cfg.ReturnScale,
		Mu:        mu,
		Omega:     omega,
		Alpha:     alpha,
		Beta:      beta,
		Gamma:     gamma,
		LastResid: resid[len(resid)-1],
		LastVar:   lastVar,
		LogLik:    -value,
		N:         len(resid),
	}, nil
}

// filter runs the variance recursion and returns the negative log-likelihood and σ²_T
func filter(resid []float64, init, omega, alpha, beta, gamma float64) (float64, float64) {
	h := init
	nll := 0.0
	for t, e := range resid {
		if t > 0 {
			prev := resid[t-1]
			lev := 0.0
			if prev < 0 {
				lev = gamma
			}
			h = omega + (alpha+lev)*prev*prev + beta*h
		}
		if h <= 0 || math.IsNaN(h) || math.IsInf(h, 0) {
			return invalidPenalty, math.NaN()
		}
		nll += 0.5 * (math.Log(2*math.Pi) + math.Log(h) + e*e/h)
	}
	return nll, h
}

// ewma builds the RiskMetrics fallback
func (e *Estimator) ewma(resid []float64, mu float64, requested string) *Model {
	lambda := e.cfg.EWMALambda
	h := 0.0
	for _, r := range resid {
		h += r * r
	}
	h /= float64(len(resid))
	for i := 1; i < len(resid); i++ {
		h = lambda*h + (1-lambda)*resid[i-1]*resid[i-1]
	}
	if h <= 0 {
		h = 1e-12
	}
	return &Model{
		Variant:   VariantEWMA,
		Requested: requested,
		Scale:     e.cfg.ReturnScale,
		Mu:        mu,
		Lambda:    lambda,
		LastResid: resid[len(resid)-1],
		LastVar:   h,
		N:         len(resid),
		Degraded:  true,
	}
}

// ForecastVariance returns per-step variances of log returns (unscaled) for steps 1..n
func (m *Model) ForecastVariance(steps int) []float64 {
	out := make([]float64, steps)
	if steps == 0 {
		return out
	}
	scale2 := m.Scale * m.Scale

	if m.Variant == VariantEWMA {
		next := m.Lambda*m.LastVar + (1-m.Lambda)*m.LastResid*m.LastResid
		for i := range out {
			out[i] = next / scale2
		}
		return out
	}

	lev := 0.0
	if m.LastResid < 0 {
		lev = m.Gamma
	}
	h := m.Omega + (m.Alpha+lev)*m.LastResid*m.LastResid + m.Beta*m.LastVar
	out[0] = h / scale2
	pers := m.Persistence()
	for k := 1; k < steps; k++ {
		h = m.Omega + pers*h
		out[k] = h / scale2
	}
	return out
}

// UnconditionalVariance returns ω / (1 - persistence) in unscaled units, NaN for EWMA
func (m *Model) UnconditionalVariance() float64 {
	if m.Variant == VariantEWMA || m.Persistence() >= 1 {
		return math.NaN()
	}
	return m.Omega / (1 - m.Persistence()) / (m.Scale * m.Scale)
}

// Artifact serializes the model for a horizon
func (m *Model) Artifact(h contracts.Horizon, trainedAt time.Time, trainStart, trainEnd time.Time, configHash string) (contracts.ModelArtifact, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return contracts.ModelArtifact{}, fmt.Errorf("marshal volatility model: %w", err)
	}
	return contracts.ModelArtifact{
		Meta: contracts.ArtifactMeta{
			Model:      contracts.ModelVolatility,
			Horizon:    h,
			Version:    contracts.NewVersion(trainedAt),
			TrainStart: trainStart,
			TrainEnd:   trainEnd,
			Hyperparams: map[string]any{
				"variant":   m.Variant,
				"requested": m.Requested,
				"scale":     m.Scale,
			},
			Features:       []string{"log_return"},
			TrainedAt:      trainedAt,
			Metrics:        map[string]float64{"loglik": m.LogLik, "persistence": m.Persistence()},
			ConfigHash:     configHash,
			Degraded:       m.Degraded,
			DegradedReason: m.DegradedReason,
		},
		Payload: payload,
	}, nil
}

// FromArtifact restores a volatility model
func FromArtifact(a contracts.ModelArtifact) (*Model, error) {
	if a.Meta.Model != contracts.ModelVolatility {
		return nil, fmt.Errorf("%w: artifact model %q is not %q", contracts.ErrConfiguration, a.Meta.Model, contracts.ModelVolatility)
	}
	var m Model
	if err := json.Unmarshal(a.Payload, &m); err != nil {
		return nil, fmt.Errorf("unmarshal volatility model: %w", err)
	}
	if m.Scale <= 0 || m.LastVar <= 0 {
		return nil, fmt.Errorf("%w: corrupt volatility artifact", contracts.ErrConfiguration)
	}
	return &m, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func softmax3(a, b, c float64) (float64, float64, float64) {
	m := math.Max(a, math.Max(b, c))
	ea, eb, ec := math.Exp(a-m), math.Exp(b-m), math.Exp(c-m)
	s := ea + eb + ec
	return ea / s, eb / s, ec / s
}
