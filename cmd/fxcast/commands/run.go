package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/fxcast/internal/brain"
	"github.com/wonny/fxcast/internal/contracts"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "예측 실행",
	Long: `스냅샷을 읽어 호라이즌별 예측을 생성합니다.

features → {tree, seasonal, volatility} → combine → commit

Flags:
  --date           데이터 기준일 (이후 관측 무시, 기본: 전체)
  --horizon        호라이즌 (반복 지정, 기본: 설정된 전체)
  --force-retrain  재학습 주기와 무관하게 재학습
  --dry-run        아티팩트/결과/예측 로그를 기록하지 않음
  --model-budget   점예측 모델별 적합 시간 한도

Example:
  go run ./cmd/fxcast run
  go run ./cmd/fxcast run --horizon 7 --horizon 15 --dry-run
  go run ./cmd/fxcast run --date 2024-06-28 --force-retrain`,
	RunE: runForecast,
}

var (
	runDate         string
	runHorizons     []string
	runForceRetrain bool
	runDryRun       bool
	runModelBudget  time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDate, "date", "", "데이터 기준일 (YYYY-MM-DD)")
	runCmd.Flags().StringSliceVar(&runHorizons, "horizon", nil, "호라이즌 (7, 15, 30, 90)")
	runCmd.Flags().BoolVar(&runForceRetrain, "force-retrain", false, "강제 재학습")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "커밋 없이 결과만 출력")
	runCmd.Flags().DurationVar(&runModelBudget, "model-budget", 0, "모델별 적합 시간 한도 (예: 2m)")
}

func parseHorizons(values []string) ([]contracts.Horizon, error) {
	out := make([]contracts.Horizon, 0, len(values))
	for _, v := range values {
		h, err := contracts.ParseHorizon(v)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func runForecast(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rc := brain.RunConfig{
		RunID:        brain.GenerateRunID(),
		ForceRetrain: runForceRetrain,
		DryRun:       runDryRun,
		ModelBudget:  runModelBudget,
	}
	if runDate != "" {
		parsed, err := time.Parse("2006-01-02", runDate)
		if err != nil {
			return fmt.Errorf("invalid date format: %w", err)
		}
		rc.Date = parsed
	}
	hs, err := parseHorizons(runHorizons)
	if err != nil {
		return err
	}
	rc.Horizons = hs

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator()
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	src, err := a.source()
	if err != nil {
		return err
	}
	bundle, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}

	PrintHeader("fxcast run " + rc.RunID)
	PrintKeyValue("Data", a.cfg.DataFile, 10)
	PrintKeyValue("Dry run", fmt.Sprint(rc.DryRun), 10)
	PrintSeparator()

	result, runErr := orch.Run(ctx, bundle, rc)
	if result != nil {
		printRunResult(result)
	}
	if runErr != nil {
		return fmt.Errorf("forecast run failed: %w", runErr)
	}
	return nil
}

func printRunResult(result *brain.RunResult) {
	for _, hr := range result.Horizons {
		fmt.Println()
		if hr.Err != nil {
			PrintError(fmt.Sprintf("%s: %v", hr.Horizon, hr.Err))
			continue
		}
		res := hr.Forecast
		final, _ := res.Final()
		PrintSuccess(fmt.Sprintf("%s  issue %s @ %.2f  (stages: %s)",
			hr.Horizon, res.IssueDate.Format("2006-01-02"), res.IssueValue, strings.Join(hr.CompletedStages, ",")))
		PrintKeyValue("Final", fmt.Sprintf("%s  %.2f  [80%% %.2f ~ %.2f]  [95%% %.2f ~ %.2f]",
			final.Date.Format("2006-01-02"), final.Mean, final.CI80Low, final.CI80High, final.CI95Low, final.CI95High), 10)
		PrintKeyValue("Models", fmt.Sprint(res.Models), 10)
		PrintKeyValue("Retrained", fmt.Sprint(hr.Retrained), 10)
		for _, w := range res.Warnings {
			PrintWarning(w)
		}
	}

	fmt.Println()
	PrintSeparator()
	fmt.Printf("Run %s: success=%v, paired=%d, %.2fs\n", result.RunID, result.Success, result.Paired, result.Duration.Seconds())
}
