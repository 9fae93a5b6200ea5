package scheduler

import (
	"context"
	"time"

	"github.com/wonny/fxcast/internal/contracts"
)

// historyLimit 작업별 보관 실행 이력 수
const historyLimit = 100

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name (forecast_7d, maintenance)
	Name() string

	// Run executes the job
	Run(ctx context.Context) error

	// Schedule returns the cron schedule expression (초 포함 6필드)
	// 예: "0 0 18 * * 1-5" (평일 18시), "@daily"
	Schedule() string
}

// RunReport 예측 작업 1회 실행의 식별 정보
type RunReport struct {
	RunID     string
	Horizon   contracts.Horizon
	IssueDate time.Time
	Degraded  bool
}

// ReportingJob is a Job whose attempts report which forecast run they produced.
// 스케줄러는 Run 대신 RunWithReport를 호출해 결과를 JobResult에 남김
type ReportingJob interface {
	Job
	RunWithReport(ctx context.Context) (RunReport, error)
}

// JobResult 작업 실행 1회 기록. 예측 작업이면 run_id/horizon이 채워짐
type JobResult struct {
	JobName   string        `json:"job_name"`
	RunID     string        `json:"run_id,omitempty"`
	Horizon   string        `json:"horizon,omitempty"`
	IssueDate *time.Time    `json:"issue_date,omitempty"`
	Degraded  bool          `json:"degraded,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
}

// apply copies the forecast run identity onto the result
func (r *JobResult) apply(rep RunReport) {
	r.RunID = rep.RunID
	if rep.Horizon.Valid() {
		r.Horizon = rep.Horizon.String()
	}
	if !rep.IssueDate.IsZero() {
		d := rep.IssueDate
		r.IssueDate = &d
	}
	r.Degraded = rep.Degraded
}

// JobHistory 작업별 최근 실행 이력 (최대 historyLimit건)
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, dropping the oldest beyond historyLimit
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// GetLatestResults returns the latest N results
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n == 0 {
		return []JobResult{}
	}
	return h.Results[len(h.Results)-n:]
}

// GetFailedResults returns all failed results
func (h *JobHistory) GetFailedResults() []JobResult {
	failed := make([]JobResult, 0)
	for _, result := range h.Results {
		if !result.Success {
			failed = append(failed, result)
		}
	}
	return failed
}

// GetDegradedResults returns successful forecast runs that published a degraded result
func (h *JobHistory) GetDegradedResults() []JobResult {
	out := make([]JobResult, 0)
	for _, result := range h.Results {
		if result.Success && result.Degraded {
			out = append(out, result)
		}
	}
	return out
}

// LastRunID returns the run ID of the most recent attempt that recorded one
func (h *JobHistory) LastRunID() string {
	for i := len(h.Results) - 1; i >= 0; i-- {
		if h.Results[i].RunID != "" {
			return h.Results[i].RunID
		}
	}
	return ""
}

// GetSuccessRate returns the success rate (0.0 - 1.0)
func (h *JobHistory) GetSuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0.0
	}
	successCount := 0
	for _, result := range h.Results {
		if result.Success {
			successCount++
		}
	}
	return float64(successCount) / float64(len(h.Results))
}
