package backtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/models/tree"
)

// Trial 하이퍼파라미터 후보 하나의 워크포워드 결과
type Trial struct {
	Params tree.Params `json:"params"`
	Status Status      `json:"status"`
	MAE    *float64    `json:"mae,omitempty"`
}

// TuneResult 탐색 결과. Best는 OK 상태 후보 중 MAE 최소
type TuneResult struct {
	Horizon  contracts.Horizon `json:"horizon"`
	Best     *tree.Params      `json:"best,omitempty"`
	BestMAE  float64           `json:"best_mae"`
	Trials   []Trial           `json:"trials"`
	TimedOut bool              `json:"timed_out"`
}

// TuneTree evaluates each candidate with walk-forward MAE under the engine's
// overall time budget. Running out of budget keeps the best candidate so far;
// ErrTimeout is returned only when no candidate finished.
func (e *Engine) TuneTree(ctx context.Context, fm *contracts.FeatureMatrix, h contracts.Horizon, grid []tree.Params) (*TuneResult, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: empty tuning grid", contracts.ErrConfiguration)
	}
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	out := &TuneResult{Horizon: h}
	for i, params := range grid {
		zl := e.logger.Zerolog()
		res, err := e.walk(ctx, fm, h, []Forecaster{NewTreeForecaster(params, zl)}, nil)
		if err != nil && !errors.Is(err, contracts.ErrTimeout) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
		if err != nil {
			out.TimedOut = true
			break
		}

		rep := res.Report(string(contracts.ModelTree))
		trial := Trial{Params: params, Status: rep.Status}
		if rep.Metrics != nil {
			mae := rep.Metrics.MAE
			trial.MAE = &mae
			if out.Best == nil || mae < out.BestMAE {
				p := params
				out.Best = &p
				out.BestMAE = mae
			}
		}
		out.Trials = append(out.Trials, trial)
	}

	e.logger.WithFields(map[string]interface{}{
		"horizon":   h.String(),
		"evaluated": len(out.Trials),
		"grid":      len(grid),
		"timed_out": out.TimedOut,
	}).Info("Tree tuning finished")

	if len(out.Trials) == 0 && out.TimedOut {
		return out, fmt.Errorf("%w: no tuning trial finished", contracts.ErrTimeout)
	}
	return out, nil
}

// DefaultGrid returns a small grid around base
func DefaultGrid(base tree.Params) []tree.Params {
	var grid []tree.Params
	for _, depth := range []int{base.MaxDepth - 1, base.MaxDepth, base.MaxDepth + 1} {
		if depth < 1 {
			continue
		}
		for _, lr := range []float64{base.LearningRate / 2, base.LearningRate, base.LearningRate * 2} {
			p := base
			p.MaxDepth = depth
			p.LearningRate = lr
			grid = append(grid, p)
		}
	}
	return grid
}
