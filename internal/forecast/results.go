package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/artifact"
	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/pkg/redis"
)

// ErrNoForecast 해당 호라이즌의 발행된 예측 없음
var ErrNoForecast = errors.New("no forecast published")

const (
	latestFile      = "latest.json"
	forecastChannel = "forecast"
)

// ResultStore 확정된 ForecastResult 발행처
// 파일: <dir>/<horizon>/<issue_date>.json + latest.json (write-then-rename)
// Redis가 켜져 있으면 최신 결과를 캐시하고 채널로 알림
type ResultStore struct {
	dir   string
	cache *redis.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewResultStore creates a result store. cache may be nil.
func NewResultStore(dir string, cache *redis.Cache, ttl time.Duration, log zerolog.Logger) *ResultStore {
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}
	return &ResultStore{
		dir:   dir,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "forecast.results").Logger(),
	}
}

// Commit writes the result files then publishes to the cache.
// Cache failures are logged; the files are the record.
func (s *ResultStore) Commit(ctx context.Context, r *contracts.ForecastResult) (string, error) {
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", contracts.ErrDataQuality, err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal forecast: %w", err)
	}

	dir := s.horizonDir(r.Horizon)
	path := filepath.Join(dir, contracts.Day(r.IssueDate).Format("2006-01-02")+".json")
	if err := artifact.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("write forecast: %w", err)
	}
	if err := artifact.WriteFileAtomic(filepath.Join(dir, latestFile), data); err != nil {
		return "", fmt.Errorf("write latest forecast: %w", err)
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.SetAndPublish(ctx, redis.ForecastKey(r.Horizon.Days()), r, s.ttl, forecastChannel); err != nil {
			s.log.Warn().Err(err).Str("horizon", r.Horizon.String()).Msg("forecast cache publish failed")
		}
	}

	s.log.Info().
		Str("horizon", r.Horizon.String()).
		Str("issue_date", r.IssueDate.Format("2006-01-02")).
		Str("path", path).
		Msg("forecast committed")
	return path, nil
}

// Latest returns the most recent committed result, cache first
func (s *ResultStore) Latest(ctx context.Context, h contracts.Horizon) (*contracts.ForecastResult, error) {
	if s.cache != nil && s.cache.Enabled() {
		var r contracts.ForecastResult
		found, err := s.cache.Get(ctx, redis.ForecastKey(h.Days()), &r)
		if err != nil {
			s.log.Warn().Err(err).Str("horizon", h.String()).Msg("forecast cache read failed, falling back to file")
		} else if found {
			return &r, nil
		}
	}

	data, err := os.ReadFile(filepath.Join(s.horizonDir(h), latestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for %s", ErrNoForecast, h)
		}
		return nil, fmt.Errorf("read latest forecast: %w", err)
	}
	var r contracts.ForecastResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode latest forecast: %w", err)
	}
	return &r, nil
}

func (s *ResultStore) horizonDir(h contracts.Horizon) string {
	return filepath.Join(s.dir, strconv.Itoa(h.Days()))
}
