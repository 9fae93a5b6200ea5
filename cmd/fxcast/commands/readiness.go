package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/fxcast/internal/readiness"
)

// readinessCmd represents the readiness command
var readinessCmd = &cobra.Command{
	Use:   "readiness",
	Short: "운영 준비도 평가",
	Long: `예측 로그와 운영 로그로부터 준비도를 다시 계산합니다.

기준:
  tracking   - 누적 예측 기록 수
  operating  - 첫 기록 이후 운영 일수
  freshness  - 마지막 기록 경과 일수
  stability  - 운영 로그의 오류 비율
  baseline   - 실측과 짝지어진 기록 수 (가장 적은 호라이즌 기준)

Example:
  go run ./cmd/fxcast readiness
  go run ./cmd/fxcast readiness --status
  go run ./cmd/fxcast readiness --json`,
	RunE: runReadiness,
}

var (
	readinessStatusOnly bool
	readinessJSON       bool
)

func init() {
	rootCmd.AddCommand(readinessCmd)

	readinessCmd.Flags().BoolVar(&readinessStatusOnly, "status", false, "LEVEL|timestamp 한 줄만 출력")
	readinessCmd.Flags().BoolVar(&readinessJSON, "json", false, "JSON 리포트 출력")
}

func runReadiness(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.readiness().Evaluate(cmd.Context(), time.Now().UTC())
	if err != nil {
		return err
	}

	switch {
	case readinessStatusOnly:
		fmt.Println(rep.StatusLine())
	case readinessJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	default:
		printReadiness(rep)
	}
	return nil
}

func printReadiness(rep *readiness.Report) {
	as := rep.Assessment
	PrintHeader(fmt.Sprintf("Readiness %s (%.1f)", as.Level, as.Score))

	widths := []int{10, 7, 6, 9, 40}
	PrintTableHeader([]string{"Criterion", "Score", "Pass", "Critical", "Detail"}, widths)
	for _, c := range as.Criteria {
		PrintTableRow([]string{c.Name, fmt.Sprintf("%.0f", c.Score), fmt.Sprint(c.Pass), fmt.Sprint(c.Critical), c.Detail}, widths)
	}

	fmt.Println()
	widths = []int{8, 22, 5, 10, 9, 6, 6}
	PrintTableHeader([]string{"Horizon", "Status", "N", "MAE", "Bias", "Cov80", "Cov95"}, widths)
	for _, acc := range rep.Accuracy {
		PrintTableRow([]string{
			acc.Horizon.String(),
			string(acc.Status),
			fmt.Sprint(acc.SampleCount),
			formatMetric(acc.MAE, "%.4f"),
			formatMetric(acc.MeanError, "%+.4f"),
			formatMetric(acc.Coverage80, "%.2f"),
			formatMetric(acc.Coverage95, "%.2f"),
		}, widths)
	}

	for _, d := range rep.Drift {
		if d.Drifted {
			PrintWarning(fmt.Sprintf("%s drift: recent MAE %s vs baseline %s (x%s)",
				d.Horizon, formatMetric(d.RecentMAE, "%.4f"), formatMetric(d.BaselineMAE, "%.4f"), formatMetric(d.Ratio, "%.2f")))
		}
	}

	fmt.Println()
	if rep.Recommendation.Allowed {
		PrintSuccess("enable recommended: " + rep.Recommendation.Reason)
	} else {
		PrintWarning("enable not recommended: " + rep.Recommendation.Reason)
	}
	PrintDoubleSeparator()
}
