package dataio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/pkg/httputil"
)

// Source 원천 시계열 스냅샷 제공자 (외부 수집기 경계)
type Source interface {
	Load(ctx context.Context) (contracts.RawSeriesBundle, error)
}

// FileSource reads a local CSV snapshot
type FileSource struct {
	Path   string
	Target string
	log    zerolog.Logger
}

// HTTPSource fetches a CSV snapshot over HTTP
type HTTPSource struct {
	URL    string
	Target string
	client *httputil.Client
	log    zerolog.Logger
}

// Open picks a source by location. http(s) URLs need a client.
func Open(location, target string, client *httputil.Client, log zerolog.Logger) (Source, error) {
	log = log.With().Str("component", "dataio.source").Logger()
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if client == nil {
			return nil, fmt.Errorf("%w: http source %s needs a client", contracts.ErrConfiguration, location)
		}
		return &HTTPSource{URL: location, Target: target, client: client, log: log}, nil
	}
	if location == "" {
		return nil, fmt.Errorf("%w: data location is empty", contracts.ErrConfiguration)
	}
	return &FileSource{Path: location, Target: target, log: log}, nil
}

// Load parses the file
func (s *FileSource) Load(ctx context.Context) (contracts.RawSeriesBundle, error) {
	if err := ctx.Err(); err != nil {
		return contracts.RawSeriesBundle{}, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return contracts.RawSeriesBundle{}, fmt.Errorf("read %s: %w", s.Path, err)
	}
	b, err := Parse(bytes.NewReader(data), s.Target)
	if err != nil {
		return contracts.RawSeriesBundle{}, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	logLoaded(s.log, s.Path, b)
	return b, nil
}

// Load downloads and parses the snapshot
func (s *HTTPSource) Load(ctx context.Context) (contracts.RawSeriesBundle, error) {
	data, err := s.client.GetBytes(ctx, s.URL)
	if err != nil {
		return contracts.RawSeriesBundle{}, fmt.Errorf("fetch %s: %w", s.URL, err)
	}
	b, err := Parse(bytes.NewReader(data), s.Target)
	if err != nil {
		return contracts.RawSeriesBundle{}, fmt.Errorf("parse %s: %w", s.URL, err)
	}
	logLoaded(s.log, s.URL, b)
	return b, nil
}

func logLoaded(log zerolog.Logger, from string, b contracts.RawSeriesBundle) {
	ev := log.Info().Str("from", from).Int("series", len(b.Series))
	if t, err := b.TargetSeries(); err == nil {
		if d, _, ok := t.Last(); ok {
			ev = ev.Str("last_target_date", d.Format(DateLayout)).Int("target_rows", t.Len())
		}
	}
	ev.Msg("series snapshot loaded")
}

func sortDates(ds []time.Time) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })
}
