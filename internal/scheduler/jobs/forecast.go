package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/fxcast/internal/brain"
	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/dataio"
	"github.com/wonny/fxcast/internal/modelconfig"
	"github.com/wonny/fxcast/internal/scheduler"
	"github.com/wonny/fxcast/pkg/logger"
)

// Runner is the orchestrator surface a forecast job needs
type Runner interface {
	Run(ctx context.Context, bundle contracts.RawSeriesBundle, config brain.RunConfig) (*brain.RunResult, error)
}

// ForecastJob runs one horizon on its configured cadence
// 7d/15d는 평일 매일, 30d는 주간, 90d는 월간 (modelconfig 스케줄)
type ForecastJob struct {
	horizon  contracts.Horizon
	schedule string
	source   dataio.Source
	runner   Runner
	logger   *logger.Logger
}

// NewForecastJob creates a new forecast job
func NewForecastJob(hc modelconfig.HorizonConfig, source dataio.Source, runner Runner, log *logger.Logger) *ForecastJob {
	return &ForecastJob{
		horizon:  hc.Horizon(),
		schedule: hc.Schedule,
		source:   source,
		runner:   runner,
		logger:   log,
	}
}

// NewForecastJobs creates one job per configured horizon
func NewForecastJobs(cfg *modelconfig.Config, source dataio.Source, runner Runner, log *logger.Logger) []*ForecastJob {
	out := make([]*ForecastJob, 0, len(cfg.Horizons))
	for _, hc := range cfg.Horizons {
		out = append(out, NewForecastJob(hc, source, runner, log))
	}
	return out
}

// Name returns the job name
func (j *ForecastJob) Name() string {
	return fmt.Sprintf("forecast_%dd", j.horizon.Days())
}

// Schedule returns the cron schedule
func (j *ForecastJob) Schedule() string {
	return j.schedule
}

// Run loads a fresh snapshot and forecasts the horizon
func (j *ForecastJob) Run(ctx context.Context) error {
	_, err := j.RunWithReport(ctx)
	return err
}

// RunWithReport runs the forecast and reports the run ID and issue date it produced
func (j *ForecastJob) RunWithReport(ctx context.Context) (scheduler.RunReport, error) {
	rep := scheduler.RunReport{RunID: brain.GenerateRunID(), Horizon: j.horizon}
	log := j.logger.WithFields(map[string]interface{}{"horizon": j.horizon.String(), "run_id": rep.RunID})
	log.Info("Starting scheduled forecast")

	bundle, err := j.source.Load(ctx)
	if err != nil {
		return rep, fmt.Errorf("load series: %w", err)
	}

	result, err := j.runner.Run(ctx, bundle, brain.RunConfig{
		RunID:    rep.RunID,
		Horizons: []contracts.Horizon{j.horizon},
	})
	if err != nil {
		return rep, err
	}

	if hr := result.Horizon(j.horizon); hr != nil && hr.Forecast != nil {
		rep.IssueDate = hr.Forecast.IssueDate
		rep.Degraded = hr.Forecast.Degraded
		final, _ := hr.Forecast.Final()
		log.WithFields(map[string]interface{}{
			"issue_date": hr.Forecast.IssueDate.Format("2006-01-02"),
			"mean":       final.Mean,
			"ci95_low":   final.CI95Low,
			"ci95_high":  final.CI95High,
			"degraded":   hr.Forecast.Degraded,
		}).Info("Scheduled forecast completed")
	}
	return rep, nil
}
