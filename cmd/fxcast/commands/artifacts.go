package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/fxcast/internal/artifact"
	"github.com/wonny/fxcast/internal/contracts"
)

// artifactsCmd represents the artifacts command
var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "모델 아티팩트 관리",
	Long: `버전별로 보존된 모델 아티팩트를 조회하거나 이전 버전으로 되돌립니다.

Subcommands:
  list      - (모델, 호라이즌)별 보존 버전과 현재 버전
  rollback  - 현재 버전을 직전 버전으로 되돌림

Example:
  go run ./cmd/fxcast artifacts list
  go run ./cmd/fxcast artifacts rollback --model tree --horizon 7`,
}

var (
	artifactsListCmd = &cobra.Command{
		Use:   "list",
		Short: "아티팩트 버전 목록",
		RunE:  listArtifacts,
	}

	artifactsRollbackCmd = &cobra.Command{
		Use:   "rollback",
		Short: "직전 버전으로 롤백",
		RunE:  rollbackArtifact,
	}
)

var (
	artifactModel   string
	artifactHorizon string
)

func init() {
	rootCmd.AddCommand(artifactsCmd)
	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsRollbackCmd)

	artifactsRollbackCmd.Flags().StringVar(&artifactModel, "model", "", "모델 (tree, seasonal, volatility)")
	artifactsRollbackCmd.Flags().StringVar(&artifactHorizon, "horizon", "", "호라이즌 (7, 15, 30, 90)")
	_ = artifactsRollbackCmd.MarkFlagRequired("model")
	_ = artifactsRollbackCmd.MarkFlagRequired("horizon")
}

var artifactModels = []contracts.ModelType{contracts.ModelTree, contracts.ModelSeasonal, contracts.ModelVolatility}

func listArtifacts(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	PrintHeader("Model artifacts (" + a.cfg.ArtifactDir + ")")
	widths := []int{8, 11, 22, 9}
	PrintTableHeader([]string{"Horizon", "Model", "Current", "Versions"}, widths)
	for _, h := range a.model.HorizonList() {
		for _, m := range artifactModels {
			versions, err := a.artifacts.Versions(m, h)
			if err != nil {
				return err
			}
			current, err := a.artifacts.CurrentVersion(m, h)
			if errors.Is(err, artifact.ErrNotFound) {
				current = "-"
			} else if err != nil {
				return err
			}
			PrintTableRow([]string{h.String(), string(m), current, fmt.Sprint(len(versions))}, widths)
		}
	}
	PrintDoubleSeparator()
	return nil
}

func rollbackArtifact(cmd *cobra.Command, args []string) error {
	h, err := contracts.ParseHorizon(artifactHorizon)
	if err != nil {
		return err
	}
	m := contracts.ModelType(artifactModel)
	switch m {
	case contracts.ModelTree, contracts.ModelSeasonal, contracts.ModelVolatility:
	default:
		return fmt.Errorf("%w: unknown model %q", contracts.ErrConfiguration, artifactModel)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	version, err := a.artifacts.Rollback(m, h)
	if err != nil {
		return fmt.Errorf("rollback %s/%s: %w", m, h, err)
	}
	a.log.WithFields(map[string]interface{}{
		"model":   string(m),
		"horizon": h.String(),
		"version": version,
	}).Info("Artifact rolled back")
	PrintSuccess(fmt.Sprintf("%s/%s now at %s", m, h, version))
	return nil
}
