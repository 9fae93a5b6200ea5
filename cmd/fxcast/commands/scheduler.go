package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/fxcast/internal/scheduler"
	"github.com/wonny/fxcast/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `호라이즌별 예측 주기와 유지보수 작업을 스케줄합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업과 다음 실행 시각
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/fxcast scheduler start
  go run ./cmd/fxcast scheduler list
  go run ./cmd/fxcast scheduler run forecast_7d`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- forecast_<N>d: 모델 설정의 호라이즌별 cron
- readiness_status: 매시 정각 (LEVEL|timestamp 기록)
- prediction_retention: 매일 오전 3시 (오래된 예측 기록 정리)

실행 중인 작업이 끝나기 전 같은 작업은 건너뜁니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

var (
	schedulerRetries   int
	schedulerRunBudget time.Duration
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	defaults := scheduler.DefaultOptions()
	schedulerCmd.PersistentFlags().IntVar(&schedulerRetries, "retries", defaults.MaxRetries, "일시적 실패 재시도 횟수")
	schedulerCmd.PersistentFlags().DurationVar(&schedulerRunBudget, "run-budget", defaults.RunBudget, "작업당 전체 시간 한도")
}

// initScheduler registers every job against a fresh app
func initScheduler(a *app) (*scheduler.Scheduler, error) {
	orch, err := a.orchestrator()
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}
	src, err := a.source()
	if err != nil {
		return nil, err
	}

	opts := scheduler.DefaultOptions()
	opts.MaxRetries = schedulerRetries
	opts.RunBudget = schedulerRunBudget
	sched := scheduler.New(a.log, opts)

	for _, job := range jobs.NewForecastJobs(a.model, src, orch, a.log) {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	if err := sched.AddJob(jobs.NewReadinessJob(a.readiness(), a.statusPath(), a.cache, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewRetentionJob(a.tracker, a.model.Readiness.RetentionDays, a.log)); err != nil {
		return nil, err
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	PrintSuccess("Scheduler started")
	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.GetAllJobs() {
		next, _ := sched.NextRun(name)
		fmt.Printf("  - %-22s next %s\n", name, next.Format(time.RFC3339))
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()
	widths := []int{22, 18}
	PrintTableHeader([]string{"Job", "Schedule"}, widths)
	for _, name := range sched.GetAllJobs() {
		PrintTableRow([]string{name, stats[name].Schedule}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer sched.Stop()

	fmt.Printf("Running job: %s\n", jobName)
	res, err := sched.RunJobSync(jobName)
	if err != nil {
		return err
	}

	if !res.Success {
		PrintError(fmt.Sprintf("%s failed after %d attempt(s): %s", jobName, res.Attempts, res.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, res.Duration))
	return nil
}
