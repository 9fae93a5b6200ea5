package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	modelConfigFile string
	dataLocation    string
	verbose         bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fxcast",
	Short: "fxcast - 환율 다중 호라이즌 예측",
	Long: `fxcast Unified CLI

7/15/30/90일 환율 예측 (트리 + 계절 회귀 앙상블, GARCH 구간)과
예측 로그 기반 운영 준비도 평가.

Usage:
  go run ./cmd/fxcast [command]

Examples:
  go run ./cmd/fxcast run --horizon 7 --horizon 15
  go run ./cmd/fxcast backtest --horizon 30
  go run ./cmd/fxcast readiness --status
  go run ./cmd/fxcast artifacts list
  go run ./cmd/fxcast serve
  go run ./cmd/fxcast scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelConfigFile, "model-config", "", "모델 설정 YAML (기본: MODEL_CONFIG 또는 내장 기본값)")
	rootCmd.PersistentFlags().StringVar(&dataLocation, "data", "", "원천 시계열 CSV 경로 또는 URL (기본: DATA_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug 로그 출력")
}
