package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	calls    atomic.Int32
	run      func(ctx context.Context, call int32) error
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }
func (j *fakeJob) Run(ctx context.Context) error {
	n := j.calls.Add(1)
	if j.run == nil {
		return nil
	}
	return j.run(ctx, n)
}

func newTestScheduler() *Scheduler {
	return New(logger.Nop(), Options{MaxRetries: 2, RetryDelay: time.Millisecond})
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddJob(&fakeJob{name: "b", schedule: "0 0 18 * * 1-5"}))
	require.NoError(t, s.AddJob(&fakeJob{name: "a", schedule: "@hourly"}))
	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	err := s.AddJob(&fakeJob{name: "a", schedule: "@hourly"})
	assert.Error(t, err)

	err = s.AddJob(&fakeJob{name: "bad", schedule: "0 18 * *"})
	assert.ErrorIs(t, err, contracts.ErrConfiguration)

	next, ok := s.NextRun("b")
	require.True(t, ok)
	assert.True(t, next.IsZero(), "not started yet")

	require.NoError(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("a"))
}

func TestRunJob_Retries(t *testing.T) {
	tests := []struct {
		name         string
		run          func(ctx context.Context, call int32) error
		wantSuccess  bool
		wantAttempts int
	}{
		{
			name:         "succeeds first time",
			wantSuccess:  true,
			wantAttempts: 1,
		},
		{
			name: "transient failure then success",
			run: func(_ context.Context, call int32) error {
				if call < 2 {
					return errors.New("upstream 503")
				}
				return nil
			},
			wantSuccess:  true,
			wantAttempts: 2,
		},
		{
			name:         "exhausts retries",
			run:          func(context.Context, int32) error { return errors.New("still down") },
			wantAttempts: 3,
		},
		{
			name: "data quality is not retried",
			run: func(context.Context, int32) error {
				return fmt.Errorf("7d: %w: null density 0.2", contracts.ErrDataQuality)
			},
			wantAttempts: 1,
		},
		{
			name: "configuration is not retried",
			run: func(context.Context, int32) error {
				return fmt.Errorf("%w: weights", contracts.ErrConfiguration)
			},
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler()
			job := &fakeJob{name: "job", schedule: "@daily", run: tt.run}
			require.NoError(t, s.AddJob(job))

			res, err := s.RunJobSync("job")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantAttempts, res.Attempts)
			assert.Equal(t, int32(tt.wantAttempts), job.calls.Load())
			if !tt.wantSuccess {
				assert.NotEmpty(t, res.Error)
			}

			history, err := s.GetJobHistory("job")
			require.NoError(t, err)
			assert.Len(t, history.Results, 1)
		})
	}
}

func TestRunJob_Budget(t *testing.T) {
	s := New(logger.Nop(), Options{RunBudget: 20 * time.Millisecond})
	job := &fakeJob{name: "slow", schedule: "@daily", run: func(ctx context.Context, _ int32) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunJobSync("slow")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, contracts.ErrTimeout.Error())
}

func TestStop_CancelsRunningJobs(t *testing.T) {
	s := newTestScheduler()
	started := make(chan struct{})
	job := &fakeJob{name: "blocking", schedule: "@daily", run: func(ctx context.Context, _ int32) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	require.NoError(t, s.AddJob(job))
	s.Start()

	require.NoError(t, s.RunJob("blocking"))
	<-started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	// 취소는 재시도하지 않음
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestGetJobStats(t *testing.T) {
	s := newTestScheduler()
	ok := &fakeJob{name: "ok", schedule: "@daily"}
	bad := &fakeJob{name: "bad", schedule: "@hourly", run: func(context.Context, int32) error {
		return fmt.Errorf("%w", contracts.ErrDataQuality)
	}}
	require.NoError(t, s.AddJob(ok))
	require.NoError(t, s.AddJob(bad))

	for i := 0; i < 2; i++ {
		_, err := s.RunJobSync("ok")
		require.NoError(t, err)
	}
	_, err := s.RunJobSync("bad")
	require.NoError(t, err)

	stats := s.GetJobStats()
	require.Len(t, stats, 2)
	assert.Equal(t, 2, stats["ok"].SuccessCount)
	assert.Equal(t, 1.0, stats["ok"].SuccessRate)
	assert.NotNil(t, stats["ok"].LastSuccess)
	assert.Equal(t, 1, stats["bad"].FailureCount)
	assert.NotNil(t, stats["bad"].LastFailure)
	assert.Equal(t, "@hourly", stats["bad"].Schedule)
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	assert.Equal(t, 0.0, h.GetSuccessRate())
	assert.Empty(t, h.GetLatestResults(5))

	for i := 0; i < 120; i++ {
		h.AddResult(JobResult{Success: i%4 != 0})
	}
	assert.Len(t, h.Results, 100)
	assert.Len(t, h.GetLatestResults(10), 10)
	assert.Len(t, h.GetFailedResults(), 25)
	assert.InDelta(t, 0.75, h.GetSuccessRate(), 1e-9)
}

type reportingJob struct {
	fakeJob
	report func(call int32) RunReport
}

func (j *reportingJob) RunWithReport(ctx context.Context) (RunReport, error) {
	err := j.Run(ctx)
	return j.report(j.calls.Load()), err
}

func TestRunJob_RecordsForecastRun(t *testing.T) {
	issue := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name         string
		run          func(ctx context.Context, call int32) error
		wantSuccess  bool
		wantRunID    string
		wantDegraded int
	}{
		{
			name:         "success keeps run identity",
			wantSuccess:  true,
			wantRunID:    "run_1",
			wantDegraded: 1,
		},
		{
			name: "retried run reports the last attempt",
			run: func(_ context.Context, call int32) error {
				if call < 2 {
					return errors.New("upstream 503")
				}
				return nil
			},
			wantSuccess:  true,
			wantRunID:    "run_2",
			wantDegraded: 1,
		},
		{
			name: "failed run still records its ID",
			run: func(context.Context, int32) error {
				return fmt.Errorf("%w: null density 0.2", contracts.ErrDataQuality)
			},
			wantRunID: "run_1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler()
			job := &reportingJob{
				fakeJob: fakeJob{name: "forecast_7d", schedule: "@daily", run: tt.run},
				report: func(call int32) RunReport {
					return RunReport{RunID: fmt.Sprintf("run_%d", call), Horizon: contracts.Horizon7, IssueDate: issue, Degraded: true}
				},
			}
			require.NoError(t, s.AddJob(job))

			res, err := s.RunJobSync("forecast_7d")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantRunID, res.RunID)
			assert.Equal(t, "7d", res.Horizon)
			require.NotNil(t, res.IssueDate)
			assert.Equal(t, issue, *res.IssueDate)

			stats := s.GetJobStats()["forecast_7d"]
			assert.Equal(t, tt.wantRunID, stats.LastRunID)
			assert.Equal(t, tt.wantDegraded, stats.Degraded)
		})
	}
}

func TestJobHistory_LastRunID(t *testing.T) {
	h := &JobHistory{}
	assert.Empty(t, h.LastRunID())

	h.AddResult(JobResult{RunID: "run_a", Success: true, Degraded: true})
	h.AddResult(JobResult{Success: false})
	assert.Equal(t, "run_a", h.LastRunID())
	assert.Len(t, h.GetDegradedResults(), 1)
}
