package backtest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/models/seasonal"
	"github.com/wonny/fxcast/internal/models/tree"
	"github.com/wonny/fxcast/internal/modelconfig"
)

// Forecaster trains on a fold's training window and forecasts the horizon
// from its last row. train is a private copy.
type Forecaster interface {
	Name() string
	Model() contracts.ModelType
	Forecast(ctx context.Context, train *contracts.FeatureMatrix, h contracts.Horizon) ([]contracts.PointForecast, error)
}

// TreeForecaster adapts the gradient-boosted tree model
type TreeForecaster struct {
	trainer *tree.Trainer
}

// NewTreeForecaster creates a tree fold forecaster
func NewTreeForecaster(params tree.Params, logger zerolog.Logger) *TreeForecaster {
	return &TreeForecaster{trainer: tree.NewTrainer(params, logger)}
}

func (f *TreeForecaster) Name() string               { return string(contracts.ModelTree) }
func (f *TreeForecaster) Model() contracts.ModelType { return contracts.ModelTree }

func (f *TreeForecaster) Forecast(ctx context.Context, train *contracts.FeatureMatrix, h contracts.Horizon) ([]contracts.PointForecast, error) {
	m, err := f.trainer.Fit(ctx, train, train.Target, h)
	if err != nil {
		return nil, err
	}
	return m.Predict(train)
}

// SeasonalForecaster adapts the seasonal regressor
type SeasonalForecaster struct {
	trainer *seasonal.Trainer
}

// NewSeasonalForecaster creates a seasonal fold forecaster
func NewSeasonalForecaster(cfg modelconfig.SeasonalConfig, logger zerolog.Logger) *SeasonalForecaster {
	return &SeasonalForecaster{trainer: seasonal.NewTrainer(cfg, logger)}
}

func (f *SeasonalForecaster) Name() string               { return string(contracts.ModelSeasonal) }
func (f *SeasonalForecaster) Model() contracts.ModelType { return contracts.ModelSeasonal }

func (f *SeasonalForecaster) Forecast(ctx context.Context, train *contracts.FeatureMatrix, h contracts.Horizon) ([]contracts.PointForecast, error) {
	m, err := f.trainer.Fit(ctx, train, train.Target, h)
	if err != nil {
		return nil, err
	}
	return m.Predict(train)
}

// FuncForecaster wraps a function; useful for baselines
type FuncForecaster struct {
	ID   string
	Kind contracts.ModelType
	Fn   func(ctx context.Context, train *contracts.FeatureMatrix, h contracts.Horizon) ([]contracts.PointForecast, error)
}

func (f FuncForecaster) Name() string               { return f.ID }
func (f FuncForecaster) Model() contracts.ModelType { return f.Kind }

func (f FuncForecaster) Forecast(ctx context.Context, train *contracts.FeatureMatrix, h contracts.Horizon) ([]contracts.PointForecast, error) {
	return f.Fn(ctx, train, h)
}

// NaiveForecaster predicts the issue-date level for every step (random walk)
func NaiveForecaster() FuncForecaster {
	return FuncForecaster{
		ID:   "naive",
		Kind: contracts.ModelType("naive"),
		Fn: func(_ context.Context, train *contracts.FeatureMatrix, h contracts.Horizon) ([]contracts.PointForecast, error) {
			ti := train.ColIndex(train.Target)
			issue := contracts.Day(train.LastDate())
			last := train.Data[train.Rows()-1][ti]
			out := make([]contracts.PointForecast, h.Days())
			for s := 1; s <= h.Days(); s++ {
				out[s-1] = contracts.PointForecast{
					Horizon:    h,
					Step:       s,
					TargetDate: issue.AddDate(0, 0, s),
					Value:      last,
					Model:      contracts.ModelType("naive"),
				}
			}
			return out, nil
		},
	}
}
