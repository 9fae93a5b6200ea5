package modelconfig

import (
	"errors"
	"fmt"
	"math"

	"github.com/wonny/fxcast/internal/contracts"
)

// 변동성 모델 변형
const (
	VariantGARCH = "garch" // 대칭
	VariantGJR   = "gjr"   // 비대칭 (레버리지 효과)
)

// WeightTolerance 블렌드 가중치 합 허용 오차
const WeightTolerance = 1e-6

// ValidationError 검증 실패 (런 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match contracts.ErrConfiguration
func (e ValidationError) Unwrap() error {
	return contracts.ErrConfiguration
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (모델 학습 전에 중단)
func Validate(cfg *Config) error {
	// === Horizons ===
	if len(cfg.Horizons) == 0 {
		return ValidationError{"horizons", "at least one horizon required"}
	}
	seen := make(map[int]bool)
	for i, hc := range cfg.Horizons {
		field := fmt.Sprintf("horizons[%d]", i)
		if !hc.Horizon().Valid() {
			return ValidationError{field + ".days", fmt.Sprintf("must be one of 7, 15, 30, 90, got %d", hc.Days)}
		}
		if seen[hc.Days] {
			return ValidationError{field + ".days", fmt.Sprintf("duplicate horizon %d", hc.Days)}
		}
		seen[hc.Days] = true

		if err := ValidateWeights(hc.Weights); err != nil {
			return ValidationError{field + ".weights", err.Error()}
		}
		if hc.Volatility != VariantGARCH && hc.Volatility != VariantGJR {
			return ValidationError{field + ".volatility", fmt.Sprintf("must be %q or %q", VariantGARCH, VariantGJR)}
		}
		if hc.RetrainEveryDays < 1 {
			return ValidationError{field + ".retrain_every_days", "must be >= 1"}
		}
	}

	// === Features ===
	f := cfg.Features
	if f.FFillLimit < 0 || f.BFillLimit < 0 {
		return ValidationError{"features", "fill limits must be >= 0"}
	}
	if f.BFillLimit > f.FFillLimit {
		return ValidationError{"features.bfill_limit", "must not exceed ffill_limit"}
	}
	if f.MaxNullDensity <= 0 || f.MaxNullDensity > 0.05 {
		return ValidationError{"features.max_null_density", "must be in (0, 0.05]"}
	}
	if err := validatePositiveInts(f.TargetLags); err != nil {
		return ValidationError{"features.target_lags", err.Error()}
	}
	if err := validatePositiveInts(f.ExogLags); err != nil {
		return ValidationError{"features.exog_lags", err.Error()}
	}

	// === Tree ===
	t := cfg.Tree
	if t.Estimators < 1 || t.MaxDepth < 1 || t.MinLeaf < 1 {
		return ValidationError{"tree", "estimators, max_depth and min_leaf must be >= 1"}
	}
	if t.LearningRate <= 0 || t.LearningRate > 1 {
		return ValidationError{"tree.learning_rate", "must be in (0, 1]"}
	}
	if t.Lambda < 0 {
		return ValidationError{"tree.lambda", "must be >= 0"}
	}
	if t.MaxAnchors < 2 {
		return ValidationError{"tree.max_anchors", "must be >= 2"}
	}

	// === Seasonal ===
	s := cfg.Seasonal
	if s.MaxP < 0 || s.MaxP > 10 {
		return ValidationError{"seasonal.max_p", "must be in [0, 10]"}
	}
	if len(s.Differencing) == 0 {
		return ValidationError{"seasonal.differencing", "must not be empty"}
	}
	for _, d := range s.Differencing {
		if d != 0 && d != 1 {
			return ValidationError{"seasonal.differencing", "values must be 0 or 1"}
		}
	}
	for _, p := range s.SeasonalPeriods {
		if p < 0 || p == 1 {
			return ValidationError{"seasonal.seasonal_periods", "values must be 0 or >= 2"}
		}
	}
	if s.MaxCandidates < 1 {
		return ValidationError{"seasonal.max_candidates", "must be >= 1"}
	}
	if s.DefaultOrder.D != 0 && s.DefaultOrder.D != 1 {
		return ValidationError{"seasonal.default_order.d", "must be 0 or 1"}
	}

	// === Volatility ===
	v := cfg.Volatility
	if v.EWMALambda <= 0 || v.EWMALambda >= 1 {
		return ValidationError{"volatility.ewma_lambda", "must be in (0, 1)"}
	}
	if v.MaxIterations < 1 || v.MinObservations < 10 {
		return ValidationError{"volatility", "max_iterations >= 1 and min_observations >= 10 required"}
	}
	if v.ReturnScale <= 0 {
		return ValidationError{"volatility.return_scale", "must be > 0"}
	}

	// === Backtest ===
	b := cfg.Backtest
	if b.MinTrainRows < 10 || b.StepDays < 1 || b.MaxFolds < 1 {
		return ValidationError{"backtest", "min_train_rows >= 10, step_days >= 1, max_folds >= 1 required"}
	}
	if b.MinObservations < 1 {
		return ValidationError{"backtest.min_observations", "must be >= 1"}
	}

	// === Readiness ===
	r := cfg.Readiness
	if r.TrackingTarget < 1 || r.OperatingDays < 1 || r.FreshnessDays < 1 || r.BaselineTarget < 1 {
		return ValidationError{"readiness", "targets must be >= 1"}
	}
	l := r.Levels
	if !(0 < l.Cautious && l.Cautious < l.Ready && l.Ready < l.Optimal && l.Optimal <= 100) {
		return ValidationError{"readiness.levels", "must satisfy 0 < cautious < ready < optimal <= 100"}
	}
	if r.Drift.RecentWindow < 1 || r.Drift.BaselineWindow < 1 || r.Drift.MaxRatio <= 1 {
		return ValidationError{"readiness.drift", "windows >= 1 and max_ratio > 1 required"}
	}

	// === Artifacts ===
	if cfg.Artifacts.Keep < 2 {
		return ValidationError{"artifacts.keep", "must retain at least 2 versions"}
	}

	return nil
}

// ValidateWeights checks a blend table row: tree and seasonal present, non-negative, summing to 1
func ValidateWeights(w map[contracts.ModelType]float64) error {
	if len(w) == 0 {
		return errors.New("missing")
	}
	for _, m := range []contracts.ModelType{contracts.ModelTree, contracts.ModelSeasonal} {
		if _, ok := w[m]; !ok {
			return fmt.Errorf("missing weight for %s", m)
		}
	}
	values := make([]float64, 0, len(w))
	for m, v := range w {
		if m != contracts.ModelTree && m != contracts.ModelSeasonal {
			return fmt.Errorf("unknown model %q", m)
		}
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight for %s must be >= 0", m)
		}
		values = append(values, v)
	}
	return validateWeightsSum(values, 1.0, WeightTolerance)
}

// Warn returns non-fatal recommendations
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	for _, hc := range cfg.Horizons {
		if hc.Days <= 15 && hc.Volatility == VariantGARCH {
			warnings = append(warnings, Warning{
				Code:    "SYMMETRIC_SHORT_HORIZON",
				Message: fmt.Sprintf("%dd 호라이즌에 대칭 GARCH 사용: 충격 비대칭 미반영", hc.Days),
			})
		}
		if hc.Days >= 30 && hc.Weights[contracts.ModelTree] > hc.Weights[contracts.ModelSeasonal] {
			warnings = append(warnings, Warning{
				Code:    "TREE_HEAVY_LONG_HORIZON",
				Message: fmt.Sprintf("%dd 호라이즌에서 트리 비중이 더 큼", hc.Days),
			})
		}
	}

	if cfg.Backtest.MinObservations < 5 {
		warnings = append(warnings, Warning{
			Code:    "LOW_MIN_OBSERVATIONS",
			Message: "백테스트 최소 관측 수 < 5: 지표 신뢰도 낮음",
		})
	}

	return warnings
}

func validatePositiveInts(xs []int) error {
	for _, x := range xs {
		if x < 1 {
			return fmt.Errorf("values must be >= 1, got %d", x)
		}
	}
	return nil
}

func validateWeightsSum(weights []float64, target float64, epsilon float64) error {
	if len(weights) == 0 {
		return errors.New("must not be empty")
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-target) > epsilon {
		return fmt.Errorf("must sum to %.2f, got %.8f", target, sum)
	}
	return nil
}
