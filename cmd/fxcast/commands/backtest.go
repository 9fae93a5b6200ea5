package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/fxcast/internal/backtest"
	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/features"
	"github.com/wonny/fxcast/internal/models/tree"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "워크포워드 백테스트",
	Long: `확장 윈도 워크포워드 검증으로 모델별 표본 외 오차를 측정합니다.

각 폴드는 cutoff 이전 데이터로만 학습하고 호라이즌 끝 값을 평가합니다.
관측치가 부족한 모델은 INSUFFICIENT_HISTORY로 표시됩니다.

Example:
  go run ./cmd/fxcast backtest --horizon 7
  go run ./cmd/fxcast backtest --horizon 30 --tune`,
	RunE: runBacktest,
}

var (
	backtestHorizon string
	backtestTune    bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestHorizon, "horizon", "7", "호라이즌 (7, 15, 30, 90)")
	backtestCmd.Flags().BoolVar(&backtestTune, "tune", false, "트리 하이퍼파라미터 그리드 탐색")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	h, err := contracts.ParseHorizon(backtestHorizon)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, ok := a.model.Horizon(h); !ok {
		return fmt.Errorf("%w: horizon %s not configured", contracts.ErrConfiguration, h)
	}

	src, err := a.source()
	if err != nil {
		return err
	}
	bundle, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}

	zl := a.log.Zerolog()
	fm, quality, err := features.NewPipeline(a.model.Features, zl).Build(bundle, h)
	if err != nil {
		return fmt.Errorf("build features: %w", err)
	}
	PrintKeyValue("Features", fmt.Sprintf("%d rows x %d cols (null density %.3f)", quality.Rows, quality.Columns, quality.NullDensity), 10)
	for _, fam := range quality.SkippedFamilies {
		PrintWarning("skipped feature family: " + fam)
	}

	engine := backtest.NewEngine(backtest.ConfigFrom(a.model.Backtest), a.log)

	if backtestTune {
		return printTuning(cmd, engine, fm, h, tree.ParamsFrom(a.model.Tree))
	}

	forecasters := []backtest.Forecaster{
		backtest.NewTreeForecaster(tree.ParamsFrom(a.model.Tree), zl),
		backtest.NewSeasonalForecaster(a.model.Seasonal, zl),
		backtest.NaiveForecaster(),
	}
	result, err := engine.Run(ctx, fm, h, forecasters, a.model.BlendTable()[h])
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	printBacktestResult(result)
	return nil
}

func printBacktestResult(result *backtest.Result) {
	PrintHeader(fmt.Sprintf("Backtest %s", result.Horizon))
	PrintKeyValue("Folds", fmt.Sprintf("%d/%d", result.Completed, result.Folds), 10)
	if !result.FirstCut.IsZero() {
		PrintKeyValue("Cutoffs", fmt.Sprintf("%s ~ %s", result.FirstCut.Format("2006-01-02"), result.LastCut.Format("2006-01-02")), 10)
	}
	PrintKeyValue("Duration", result.Duration.String(), 10)
	if result.TimedOut {
		PrintWarning("time budget exhausted; metrics cover completed folds only")
	}
	fmt.Println()

	names := make([]string, 0, len(result.Models))
	for name := range result.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	widths := []int{10, 22, 5, 10, 10, 8, 6, 5}
	PrintTableHeader([]string{"Model", "Status", "N", "MAE", "RMSE", "MAPE", "Hit", "Fail"}, widths)
	for _, name := range names {
		rep := result.Models[name]
		row := []string{name, string(rep.Status), "-", "-", "-", "-", "-", fmt.Sprint(rep.Failures)}
		if m := rep.Metrics; m != nil {
			row[2] = fmt.Sprint(m.Count)
			row[3] = fmt.Sprintf("%.4f", m.MAE)
			row[4] = fmt.Sprintf("%.4f", m.RMSE)
			row[5] = fmt.Sprintf("%.2f%%", m.MAPE*100)
			row[6] = fmt.Sprintf("%.0f%%", m.HitRate*100)
		}
		PrintTableRow(row, widths)
	}
	PrintDoubleSeparator()
}

func printTuning(cmd *cobra.Command, engine *backtest.Engine, fm *contracts.FeatureMatrix, h contracts.Horizon, base tree.Params) error {
	res, err := engine.TuneTree(cmd.Context(), fm, h, backtest.DefaultGrid(base))
	if err != nil {
		return fmt.Errorf("tune: %w", err)
	}

	PrintHeader(fmt.Sprintf("Tree tuning %s", h))
	widths := []int{6, 8, 22, 10}
	PrintTableHeader([]string{"Depth", "LR", "Status", "MAE"}, widths)
	for _, t := range res.Trials {
		PrintTableRow([]string{
			fmt.Sprint(t.Params.MaxDepth),
			fmt.Sprintf("%.3f", t.Params.LearningRate),
			string(t.Status),
			formatMetric(t.MAE, "%.4f"),
		}, widths)
	}
	PrintSeparator()
	if res.TimedOut {
		PrintWarning("time budget exhausted before the grid finished")
	}
	if res.Best == nil {
		PrintWarning("no candidate had enough observations")
		return nil
	}
	PrintSuccess(fmt.Sprintf("best: max_depth=%d learning_rate=%.3f (MAE %.4f)", res.Best.MaxDepth, res.Best.LearningRate, res.BestMAE))
	return nil
}
