package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/fxcast/internal/artifact"
	"github.com/wonny/fxcast/internal/forecast"
	"github.com/wonny/fxcast/internal/readiness"
	"github.com/wonny/fxcast/pkg/logger"
	"github.com/wonny/fxcast/pkg/redis"
)

// Evaluator computes a readiness report on demand
type Evaluator interface {
	Evaluate(ctx context.Context, now time.Time) (*readiness.Report, error)
}

// ReadinessJob logs the LEVEL|timestamp status line every hour
type ReadinessJob struct {
	evaluator  Evaluator
	statusPath string       // 비어 있으면 파일 생략
	cache      *redis.Cache // nil 허용
	logger     *logger.Logger
	now        func() time.Time
}

// NewReadinessJob creates a new readiness status job
func NewReadinessJob(ev Evaluator, statusPath string, cache *redis.Cache, log *logger.Logger) *ReadinessJob {
	return &ReadinessJob{
		evaluator:  ev,
		statusPath: statusPath,
		cache:      cache,
		logger:     log,
		now:        time.Now,
	}
}

// Name returns the job name
func (j *ReadinessJob) Name() string {
	return "readiness_status"
}

// Schedule returns the cron schedule (top of every hour)
func (j *ReadinessJob) Schedule() string {
	return "0 0 * * * *"
}

// Run evaluates readiness and publishes the status line
func (j *ReadinessJob) Run(ctx context.Context) error {
	rep, err := j.evaluator.Evaluate(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("evaluate readiness: %w", err)
	}
	line := rep.StatusLine()

	if j.statusPath != "" {
		if err := artifact.WriteFileAtomic(j.statusPath, []byte(line+"\n")); err != nil {
			return fmt.Errorf("write status line: %w", err)
		}
	}
	if j.cache != nil && j.cache.Enabled() {
		if err := j.cache.Set(ctx, redis.ReadinessKey(), rep, 2*time.Hour); err != nil {
			j.logger.WithError(err).Warn("Readiness cache write failed")
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"status":      line,
		"score":       rep.Assessment.Score,
		"recommended": rep.Recommendation.Allowed,
	}).Info("Readiness status")
	return nil
}

// RetentionJob prunes prediction records older than the retention window
type RetentionJob struct {
	tracker       *forecast.Tracker
	retentionDays int
	logger        *logger.Logger
	now           func() time.Time
}

// NewRetentionJob creates a new retention job
func NewRetentionJob(tracker *forecast.Tracker, retentionDays int, log *logger.Logger) *RetentionJob {
	return &RetentionJob{
		tracker:       tracker,
		retentionDays: retentionDays,
		logger:        log,
		now:           time.Now,
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "prediction_retention"
}

// Schedule returns the cron schedule (daily at 3 AM)
func (j *RetentionJob) Schedule() string {
	return "0 0 3 * * *"
}

// Run executes the retention pass
func (j *RetentionJob) Run(ctx context.Context) error {
	removed, err := j.tracker.ApplyRetention(ctx, j.retentionDays, j.now().UTC())
	if err != nil {
		return fmt.Errorf("apply retention: %w", err)
	}

	if removed > 0 {
		j.logger.WithField("removed", removed).Info("Prediction retention completed")
	}
	return nil
}
