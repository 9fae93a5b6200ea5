package modelconfig

import "github.com/wonny/fxcast/internal/contracts"

// Default returns the built-in configuration.
// 단기 호라이즌은 트리, 장기 호라이즌은 계절 회귀 비중이 큼
func Default() *Config {
	return &Config{
		Meta: Meta{ConfigID: "fxcast_default", Version: "1"},
		Horizons: []HorizonConfig{
			{Days: 7, Weights: weights(0.7, 0.3), Volatility: VariantGJR, RetrainEveryDays: 1, Schedule: "0 0 18 * * 1-5"},
			{Days: 15, Weights: weights(0.6, 0.4), Volatility: VariantGJR, RetrainEveryDays: 1, Schedule: "0 10 18 * * 1-5"},
			{Days: 30, Weights: weights(0.4, 0.6), Volatility: VariantGARCH, RetrainEveryDays: 7, Schedule: "0 0 19 * * 1"},
			{Days: 90, Weights: weights(0.3, 0.7), Volatility: VariantGARCH, RetrainEveryDays: 30, Schedule: "0 0 20 1 * *"},
		},
		Features: FeatureConfig{
			FFillLimit:     5,
			BFillLimit:     2,
			MaxNullDensity: 0.05,
			TargetLags:     []int{1, 2, 3, 5, 7, 14, 21, 30},
			ExogLags:       []int{1, 2, 3, 5},
			Exogenous: []string{
				contracts.SeriesCopper,
				contracts.SeriesDXY,
				contracts.SeriesVIX,
			},
			TechnicalSeries: []string{contracts.SeriesFX, contracts.SeriesCopper},
			Families:        Families{Lags: true, Technical: true, Macro: true, Derived: true, Calendar: true},
		},
		Tree: TreeConfig{
			Estimators:   120,
			MaxDepth:     3,
			LearningRate: 0.05,
			MinLeaf:      5,
			Lambda:       1.0,
			MaxAnchors:   8,
		},
		Seasonal: SeasonalConfig{
			MaxP:            3,
			Differencing:    []int{0, 1},
			SeasonalPeriods: []int{0, 7},
			Exogenous:       []string{"rate_spread", "dxy_pct_5", "copper_pct_5", "vix_pct_5"},
			Ridge:           1e-6,
			MaxCandidates:   32,
			SearchTimeoutMs: 5000,
			DefaultOrder:    Order{P: 1, D: 1, Period: 0},
		},
		Volatility: VolatilityConfig{
			MaxIterations:   400,
			MinObservations: 60,
			EWMALambda:      0.94,
			ReturnScale:     100,
		},
		Backtest: BacktestConfig{
			MinTrainRows:    60,
			StepDays:        7,
			MaxFolds:        20,
			MinObservations: 5,
			TimeoutSeconds:  300,
		},
		Readiness: ReadinessConfig{
			TrackingTarget:        50,
			OperatingDays:         7,
			FreshnessDays:         7,
			StaleScore:            30,
			BaselineTarget:        10,
			PassThreshold:         60,
			LogMaxBytes:           50 << 20,
			OversizedLogScore:     40,
			UnknownStabilityScore: 70,
			Levels:                Levels{Cautious: 60, Ready: 75, Optimal: 90},
			Drift:                 Drift{RecentWindow: 10, BaselineWindow: 30, MaxRatio: 1.5},
			RetentionDays:         730,
		},
		Artifacts: ArtifactConfig{Keep: 3},
	}
}

func weights(tree, seasonal float64) map[contracts.ModelType]float64 {
	return map[contracts.ModelType]float64{
		contracts.ModelTree:     tree,
		contracts.ModelSeasonal: seasonal,
	}
}
