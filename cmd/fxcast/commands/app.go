package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/wonny/fxcast/internal/artifact"
	"github.com/wonny/fxcast/internal/brain"
	"github.com/wonny/fxcast/internal/dataio"
	"github.com/wonny/fxcast/internal/forecast"
	"github.com/wonny/fxcast/internal/modelconfig"
	"github.com/wonny/fxcast/internal/readiness"
	"github.com/wonny/fxcast/pkg/config"
	"github.com/wonny/fxcast/pkg/database"
	"github.com/wonny/fxcast/pkg/httputil"
	"github.com/wonny/fxcast/pkg/logger"
	"github.com/wonny/fxcast/pkg/redis"
)

// app 커맨드 공통 의존성
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	model *modelconfig.Config

	redis *redis.Client
	cache *redis.Cache
	db    *database.DB

	repo      forecast.Repository
	tracker   *forecast.Tracker
	artifacts *artifact.Store
	results   *forecast.ResultStore
}

// newApp loads configuration and opens every store the commands share
func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if modelConfigFile != "" {
		cfg.ModelConfig = modelConfigFile
	}
	if dataLocation != "" {
		cfg.DataFile = dataLocation
	}

	// 2. Initialize logger
	log := logger.New(cfg)
	a := &app{cfg: cfg, log: log}

	// 3. Model config (검증 실패는 학습 전에 중단)
	a.model, err = modelconfig.LoadOrDefault(cfg.ModelConfig)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load model config: %w", err)
	}
	for _, w := range modelconfig.Warn(a.model) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	// 4. Redis (선택)
	a.redis, err = redis.New(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.cache = redis.NewCache(a.redis, cfg.Redis.Prefix)

	// 5. Prediction log: Postgres if configured, JSON file otherwise
	if cfg.Database.Enabled() {
		a.db, err = database.New(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		pg := forecast.NewPostgresRepository(a.db.Pool)
		if err := pg.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate prediction log: %w", err)
		}
		a.repo = pg
		log.Info("Prediction log: postgres")
	} else {
		fr, err := forecast.OpenFileRepository(cfg.PredictLog)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.repo = fr
		log.WithField("path", cfg.PredictLog).Info("Prediction log: file")
	}
	a.tracker = forecast.NewTracker(a.repo, log.Zerolog())

	// 6. Artifact and result stores
	a.artifacts, err = artifact.NewStore(cfg.ArtifactDir, a.model.Artifacts.Keep, log.Zerolog())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.results = forecast.NewResultStore(cfg.OutputDir, a.cache, cfg.Redis.TTL, log.Zerolog())

	return a, nil
}

// Close releases connections
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.log.Close()
}

// source opens the configured series snapshot
func (a *app) source() (dataio.Source, error) {
	// 스냅샷은 수 MB까지 커질 수 있어 기본 30초보다 길게
	client := httputil.NewWithTimeout(a.cfg, a.log, 2*time.Minute).WithLocalLimit(2, 1)
	if a.redis.Enabled() {
		client.WithRateLimiter(redis.NewRateLimiter(a.redis, a.cfg.Redis.Prefix), redis.PerSecond("data_source", 2, 1))
	}
	return dataio.Open(a.cfg.DataFile, "", client, a.log.Zerolog())
}

// orchestrator wires the forecasting pipeline to the stores
func (a *app) orchestrator() (*brain.Orchestrator, error) {
	return brain.NewOrchestrator(a.model, brain.Deps{
		Artifacts: a.artifacts,
		Results:   a.results,
		Tracker:   a.tracker,
	}, a.log)
}

// readiness builds the on-demand readiness service
func (a *app) readiness() *readiness.Service {
	return readiness.NewService(a.repo, a.model, a.model.Backtest.MinObservations, a.cfg.LogFile, a.log.Zerolog())
}

// statusPath is where the hourly LEVEL|timestamp line is written
func (a *app) statusPath() string {
	return filepath.Join(a.cfg.OutputDir, "readiness_status.txt")
}
