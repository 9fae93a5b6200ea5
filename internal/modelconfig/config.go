package modelconfig

import (
	"github.com/wonny/fxcast/internal/contracts"
)

// Config는 예측 파이프라인의 전체 설정
// 생성 후 불변. 각 컴포넌트 생성자에 명시적으로 전달됨
type Config struct {
	Meta       Meta             `yaml:"meta" json:"meta"`
	Horizons   []HorizonConfig  `yaml:"horizons" json:"horizons"`
	Features   FeatureConfig    `yaml:"features" json:"features"`
	Tree       TreeConfig       `yaml:"tree" json:"tree"`
	Seasonal   SeasonalConfig   `yaml:"seasonal" json:"seasonal"`
	Volatility VolatilityConfig `yaml:"volatility" json:"volatility"`
	Backtest   BacktestConfig   `yaml:"backtest" json:"backtest"`
	Readiness  ReadinessConfig  `yaml:"readiness" json:"readiness"`
	Artifacts  ArtifactConfig   `yaml:"artifacts" json:"artifacts"`
}

// Meta 메타 정보
type Meta struct {
	ConfigID string `yaml:"config_id" json:"config_id"`
	Version  string `yaml:"version" json:"version"`
}

// HorizonConfig 호라이즌별 블렌딩/변동성/재학습 정책
type HorizonConfig struct {
	Days             int                             `yaml:"days" json:"days"`
	Weights          map[contracts.ModelType]float64 `yaml:"weights" json:"weights"`
	Volatility       string                          `yaml:"volatility" json:"volatility"` // garch | gjr
	RetrainEveryDays int                             `yaml:"retrain_every_days" json:"retrain_every_days"`
	Schedule         string                          `yaml:"schedule" json:"schedule"` // cron (초 포함 6필드)
}

// Horizon returns the typed horizon
func (h HorizonConfig) Horizon() contracts.Horizon {
	return contracts.Horizon(h.Days)
}

// FeatureConfig 피처 파이프라인 설정
type FeatureConfig struct {
	FFillLimit      int      `yaml:"ffill_limit" json:"ffill_limit"`
	BFillLimit      int      `yaml:"bfill_limit" json:"bfill_limit"`
	MaxNullDensity  float64  `yaml:"max_null_density" json:"max_null_density"`
	TargetLags      []int    `yaml:"target_lags" json:"target_lags"`
	ExogLags        []int    `yaml:"exog_lags" json:"exog_lags"`
	Exogenous       []string `yaml:"exogenous" json:"exogenous"`
	TechnicalSeries []string `yaml:"technical_series" json:"technical_series"`
	Families        Families `yaml:"families" json:"families"`
}

// Families 피처 패밀리 on/off
type Families struct {
	Lags      bool `yaml:"lags" json:"lags"`
	Technical bool `yaml:"technical" json:"technical"`
	Macro     bool `yaml:"macro" json:"macro"`
	Derived   bool `yaml:"derived" json:"derived"`
	Calendar  bool `yaml:"calendar" json:"calendar"`
}

// TreeConfig 부스팅 트리 하이퍼파라미터
type TreeConfig struct {
	Estimators   int     `yaml:"estimators" json:"estimators"`
	MaxDepth     int     `yaml:"max_depth" json:"max_depth"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	MinLeaf      int     `yaml:"min_leaf" json:"min_leaf"`
	Lambda       float64 `yaml:"lambda" json:"lambda"` // L2 정규화
	MaxAnchors   int     `yaml:"max_anchors" json:"max_anchors"`
}

// SeasonalConfig 계절 회귀 차수 탐색 그리드
type SeasonalConfig struct {
	MaxP            int      `yaml:"max_p" json:"max_p"`
	Differencing    []int    `yaml:"differencing" json:"differencing"`
	SeasonalPeriods []int    `yaml:"seasonal_periods" json:"seasonal_periods"`
	Exogenous       []string `yaml:"exogenous" json:"exogenous"`
	Ridge           float64  `yaml:"ridge" json:"ridge"`
	MaxCandidates   int      `yaml:"max_candidates" json:"max_candidates"`
	SearchTimeoutMs int      `yaml:"search_timeout_ms" json:"search_timeout_ms"`
	DefaultOrder    Order    `yaml:"default_order" json:"default_order"`
}

// Order (p, d, P)
type Order struct {
	P      int `yaml:"p" json:"p"`
	D      int `yaml:"d" json:"d"`
	Period int `yaml:"period" json:"period"`
}

// VolatilityConfig 변동성 모델 설정
type VolatilityConfig struct {
	MaxIterations   int     `yaml:"max_iterations" json:"max_iterations"`
	MinObservations int     `yaml:"min_observations" json:"min_observations"`
	EWMALambda      float64 `yaml:"ewma_lambda" json:"ewma_lambda"`
	ReturnScale     float64 `yaml:"return_scale" json:"return_scale"`
}

// BacktestConfig 워크포워드 검증 설정
type BacktestConfig struct {
	MinTrainRows    int `yaml:"min_train_rows" json:"min_train_rows"`
	StepDays        int `yaml:"step_days" json:"step_days"`
	MaxFolds        int `yaml:"max_folds" json:"max_folds"`
	MinObservations int `yaml:"min_observations" json:"min_observations"`
	TimeoutSeconds  int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ReadinessConfig 준비도 기준값
type ReadinessConfig struct {
	TrackingTarget        int     `yaml:"tracking_target" json:"tracking_target"`
	OperatingDays         int     `yaml:"operating_days" json:"operating_days"`
	FreshnessDays         int     `yaml:"freshness_days" json:"freshness_days"`
	StaleScore            float64 `yaml:"stale_score" json:"stale_score"`
	BaselineTarget        int     `yaml:"baseline_target" json:"baseline_target"`
	PassThreshold         float64 `yaml:"pass_threshold" json:"pass_threshold"`
	LogMaxBytes           int64   `yaml:"log_max_bytes" json:"log_max_bytes"`
	OversizedLogScore     float64 `yaml:"oversized_log_score" json:"oversized_log_score"`
	UnknownStabilityScore float64 `yaml:"unknown_stability_score" json:"unknown_stability_score"`
	Levels                Levels  `yaml:"levels" json:"levels"`
	Drift                 Drift   `yaml:"drift" json:"drift"`
	RetentionDays         int     `yaml:"retention_days" json:"retention_days"`
}

// Levels 레벨 하한 (CAUTIOUS < READY < OPTIMAL)
type Levels struct {
	Cautious float64 `yaml:"cautious" json:"cautious"`
	Ready    float64 `yaml:"ready" json:"ready"`
	Optimal  float64 `yaml:"optimal" json:"optimal"`
}

// Drift 성능 드리프트 판정 기준
type Drift struct {
	RecentWindow   int     `yaml:"recent_window" json:"recent_window"`
	BaselineWindow int     `yaml:"baseline_window" json:"baseline_window"`
	MaxRatio       float64 `yaml:"max_ratio" json:"max_ratio"`
}

// ArtifactConfig 아티팩트 보존 정책
type ArtifactConfig struct {
	Keep int `yaml:"keep" json:"keep"`
}

// Horizon returns the configuration of a horizon
func (c *Config) Horizon(h contracts.Horizon) (HorizonConfig, bool) {
	for _, hc := range c.Horizons {
		if hc.Days == int(h) {
			return hc, true
		}
	}
	return HorizonConfig{}, false
}

// HorizonList returns configured horizons in file order
func (c *Config) HorizonList() []contracts.Horizon {
	out := make([]contracts.Horizon, 0, len(c.Horizons))
	for _, hc := range c.Horizons {
		out = append(out, hc.Horizon())
	}
	return out
}

// BlendTable returns blend weights keyed by horizon
func (c *Config) BlendTable() map[contracts.Horizon]map[contracts.ModelType]float64 {
	table := make(map[contracts.Horizon]map[contracts.ModelType]float64, len(c.Horizons))
	for _, hc := range c.Horizons {
		w := make(map[contracts.ModelType]float64, len(hc.Weights))
		for k, v := range hc.Weights {
			w[k] = v
		}
		table[hc.Horizon()] = w
	}
	return table
}
