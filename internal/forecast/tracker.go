package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/contracts"
)

// Tracker 예측 기록 + 실현값 짝짓기
type Tracker struct {
	repo Repository
	log  zerolog.Logger
}

// NewTracker 새 추적기 생성
func NewTracker(repo Repository, log zerolog.Logger) *Tracker {
	return &Tracker{
		repo: repo,
		log:  log.With().Str("component", "forecast.tracker").Logger(),
	}
}

// Repository returns the underlying prediction log
func (t *Tracker) Repository() Repository {
	return t.repo
}

// LogResults appends one PredictionRecord per result (end-of-horizon step)
func (t *Tracker) LogResults(ctx context.Context, results []*contracts.ForecastResult, loggedAt time.Time) (int, error) {
	recs := make([]contracts.PredictionRecord, 0, len(results))
	for _, r := range results {
		rec, ok := contracts.NewPredictionRecord(r, loggedAt)
		if !ok {
			continue
		}
		recs = append(recs, rec)
	}
	n, err := t.repo.AppendPredictions(ctx, recs)
	if err != nil {
		return n, err
	}
	if n < len(recs) {
		t.log.Info().
			Int("offered", len(recs)).
			Int("inserted", n).
			Msg("prediction already logged for issue date, kept original")
	}
	return n, nil
}

// PairFromSeries records actuals for every logged target date that the
// observed target series now covers
func (t *Tracker) PairFromSeries(ctx context.Context, target contracts.Series, observedAt time.Time) (int, error) {
	preds, err := t.repo.ListPredictions(ctx)
	if err != nil {
		return 0, err
	}

	values := make(map[time.Time]float64, target.Len())
	for i, d := range target.Dates {
		v := target.Values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		values[contracts.Day(d)] = v
	}

	seen := make(map[time.Time]bool)
	var acts []contracts.ActualRecord
	for _, p := range preds {
		d := contracts.Day(p.TargetDate)
		if seen[d] {
			continue
		}
		v, ok := values[d]
		if !ok {
			continue
		}
		seen[d] = true
		acts = append(acts, contracts.ActualRecord{TargetDate: d, Value: v, ObservedAt: observedAt})
	}

	n, err := t.repo.RecordActuals(ctx, acts)
	if err != nil {
		return n, fmt.Errorf("record actuals: %w", err)
	}

	t.log.Info().
		Int("predictions", len(preds)).
		Int("observable", len(acts)).
		Int("new_actuals", n).
		Msg("actuals paired")
	return n, nil
}

// ApplyRetention prunes records older than retentionDays before now
func (t *Tracker) ApplyRetention(ctx context.Context, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := contracts.Day(now).AddDate(0, 0, -retentionDays)
	n, err := t.repo.Prune(ctx, cutoff)
	if err != nil {
		return n, err
	}
	if n > 0 {
		t.log.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("retention applied")
	}
	return n, nil
}
