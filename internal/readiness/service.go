package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/forecast"
	"github.com/wonny/fxcast/internal/modelconfig"
)

// Report 외부 공개용 준비도 리포트
type Report struct {
	Assessment     contracts.ReadinessAssessment `json:"assessment"`
	Recommendation Recommendation                `json:"recommendation"`
	Accuracy       []forecast.AccuracyReport     `json:"accuracy"`
	Drift          []forecast.DriftReport        `json:"drift"`
	Stability      Stability                     `json:"stability"`
}

// StatusLine returns LEVEL|timestamp
func (r *Report) StatusLine() string {
	return r.Assessment.StatusLine()
}

// Service loads history from the prediction log and assesses it on demand
type Service struct {
	repo       forecast.Repository
	monitor    *Monitor
	aggregator *forecast.Aggregator
	horizons   []contracts.Horizon
	logPath    string
	logLimit   int64
	log        zerolog.Logger
}

// NewService wires the monitor to a prediction log and an operational log path
func NewService(repo forecast.Repository, cfg *modelconfig.Config, minObservations int, logPath string, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		monitor:    NewMonitor(cfg.Readiness, log),
		aggregator: forecast.NewAggregator(minObservations, cfg.Readiness.Drift, log),
		horizons:   cfg.HorizonList(),
		logPath:    logPath,
		logLimit:   cfg.Readiness.LogMaxBytes,
		log:        log.With().Str("component", "readiness.service").Logger(),
	}
}

// Evaluate recomputes the report from current history
func (s *Service) Evaluate(ctx context.Context, now time.Time) (*Report, error) {
	preds, err := s.repo.ListPredictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load predictions: %w", err)
	}
	paired, err := s.repo.ListPaired(ctx)
	if err != nil {
		return nil, fmt.Errorf("load paired records: %w", err)
	}

	stab := ScanOperationalLog(s.logPath, s.logLimit)
	a := s.monitor.Assess(History{Horizons: s.horizons, Predictions: preds, Paired: paired}, stab, now)

	rep := &Report{
		Assessment:     a,
		Recommendation: RecommendEnable(a),
		Accuracy:       s.aggregator.Accuracy(paired, s.horizons),
		Drift:          s.aggregator.Drift(paired, s.horizons),
		Stability:      stab,
	}

	s.log.Info().
		Str("status", rep.StatusLine()).
		Float64("score", a.Score).
		Int("predictions", len(preds)).
		Int("paired", len(paired)).
		Msg("readiness evaluated")
	return rep, nil
}
