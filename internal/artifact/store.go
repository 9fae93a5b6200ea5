package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/contracts"
)

const (
	currentFile = "CURRENT"
	extension   = ".json"
	minKeep     = 2
)

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrNoPrevious = errors.New("no previous artifact version")
)

// Key 아티팩트 슬롯 (모델 종류 + 호라이즌)
type Key struct {
	Model   contracts.ModelType
	Horizon contracts.Horizon
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Model, k.Horizon)
}

// Snapshot 현재 아티팩트 집합의 불변 스냅샷
type Snapshot map[Key]*contracts.ModelArtifact

// Get returns the current artifact for a slot
func (s Snapshot) Get(model contracts.ModelType, h contracts.Horizon) (*contracts.ModelArtifact, bool) {
	a, ok := s[Key{Model: model, Horizon: h}]
	return a, ok
}

// Store 버전 관리되는 아티팩트 저장소
// 디스크 레이아웃: <dir>/<model>/<horizon>/<version>.json + CURRENT 포인터
// ⭐ SSOT: 아티팩트 교체는 Promote/Rollback 에서만
type Store struct {
	dir  string
	keep int

	mu       sync.Mutex // 쓰기 직렬화
	snapshot atomic.Pointer[Snapshot]

	log zerolog.Logger
}

// NewStore creates a store rooted at dir keeping at least two versions per slot
func NewStore(dir string, keep int, log zerolog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: artifact dir is empty", contracts.ErrConfiguration)
	}
	if keep < minKeep {
		keep = minKeep
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	s := &Store{
		dir:  dir,
		keep: keep,
		log:  log.With().Str("component", "artifact.store").Logger(),
	}
	empty := Snapshot{}
	s.snapshot.Store(&empty)
	return s, nil
}

// Keep returns the effective retention count
func (s *Store) Keep() int {
	return s.keep
}

// Snapshot returns the in-process view. Readers holding it never see a later promote.
func (s *Store) Snapshot() Snapshot {
	return *s.snapshot.Load()
}

// Save writes a candidate version without making it current
func (s *Store) Save(a contracts.ModelArtifact) (string, error) {
	if a.Meta.Model == "" || !a.Meta.Horizon.Valid() {
		return "", fmt.Errorf("%w: artifact meta missing model or horizon", contracts.ErrConfiguration)
	}
	if a.Meta.Version == "" {
		a.Meta.Version = contracts.NewVersion(a.Meta.TrainedAt)
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.slotDir(Key{Model: a.Meta.Model, Horizon: a.Meta.Horizon})
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create slot dir: %w", err)
	}
	if err := WriteFileAtomic(filepath.Join(dir, a.Meta.Version+extension), data); err != nil {
		return "", err
	}
	return a.Meta.Version, nil
}

// Promote makes version current for the slot and prunes old versions
func (s *Store) Promote(model contracts.ModelType, h contracts.Horizon, version string) error {
	key := Key{Model: model, Horizon: h}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key, version)
	if err != nil {
		return err
	}
	if err := s.point(key, version); err != nil {
		return err
	}
	s.publish(key, a)

	removed, err := s.prune(key, version)
	if err != nil {
		// 이미 승격됨: 정리 실패는 경고만
		s.log.Warn().Err(err).Str("slot", key.String()).Msg("prune failed")
	}

	s.log.Info().
		Str("slot", key.String()).
		Str("version", version).
		Int("pruned", removed).
		Bool("degraded", a.Meta.Degraded).
		Msg("artifact promoted")
	return nil
}

// Commit saves and promotes in one step
func (s *Store) Commit(a contracts.ModelArtifact) (string, error) {
	version, err := s.Save(a)
	if err != nil {
		return "", err
	}
	if err := s.Promote(a.Meta.Model, a.Meta.Horizon, version); err != nil {
		return "", err
	}
	return version, nil
}

// Discard removes a saved candidate that never became current
func (s *Store) Discard(model contracts.ModelType, h contracts.Horizon, version string) error {
	key := Key{Model: model, Horizon: h}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, err := s.currentVersion(key); err == nil && cur == version {
		return fmt.Errorf("refusing to discard current version %s@%s", key, version)
	}
	err := os.Remove(filepath.Join(s.slotDir(key), version+extension))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard %s@%s: %w", key, version, err)
	}
	return nil
}

// Rollback points the slot at the version preceding the current one
func (s *Store) Rollback(model contracts.ModelType, h contracts.Horizon) (string, error) {
	key := Key{Model: model, Horizon: h}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.currentVersion(key)
	if err != nil {
		return "", err
	}
	versions, err := s.versions(key)
	if err != nil {
		return "", err
	}

	idx := sort.SearchStrings(versions, cur)
	if idx >= len(versions) || versions[idx] != cur {
		return "", fmt.Errorf("%w: %s current %s missing on disk", ErrNotFound, key, cur)
	}
	if idx == 0 {
		return "", fmt.Errorf("%w: %s at %s", ErrNoPrevious, key, cur)
	}
	prev := versions[idx-1]

	a, err := s.read(key, prev)
	if err != nil {
		return "", err
	}
	if err := s.point(key, prev); err != nil {
		return "", err
	}
	s.publish(key, a)

	s.log.Warn().
		Str("slot", key.String()).
		Str("from", cur).
		Str("to", prev).
		Msg("artifact rolled back")
	return prev, nil
}

// Current returns the current artifact, loading it from disk on first use
func (s *Store) Current(model contracts.ModelType, h contracts.Horizon) (*contracts.ModelArtifact, error) {
	if a, ok := s.Snapshot().Get(model, h); ok {
		return a, nil
	}

	key := Key{Model: model, Horizon: h}
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.currentVersion(key)
	if err != nil {
		return nil, err
	}
	a, err := s.read(key, version)
	if err != nil {
		return nil, err
	}
	s.publish(key, a)
	return a, nil
}

// Versions lists stored versions oldest first
func (s *Store) Versions(model contracts.ModelType, h contracts.Horizon) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions(Key{Model: model, Horizon: h})
}

// CurrentVersion returns the version the CURRENT pointer names
func (s *Store) CurrentVersion(model contracts.ModelType, h contracts.Horizon) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentVersion(Key{Model: model, Horizon: h})
}

func (s *Store) slotDir(k Key) string {
	return filepath.Join(s.dir, string(k.Model), strconv.Itoa(k.Horizon.Days()))
}

func (s *Store) read(k Key, version string) (*contracts.ModelArtifact, error) {
	data, err := os.ReadFile(filepath.Join(s.slotDir(k), version+extension))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, k, version)
		}
		return nil, fmt.Errorf("read artifact %s@%s: %w", k, version, err)
	}
	var a contracts.ModelArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s@%s: %w", k, version, err)
	}
	return &a, nil
}

func (s *Store) point(k Key, version string) error {
	return WriteFileAtomic(filepath.Join(s.slotDir(k), currentFile), []byte(version+"\n"))
}

func (s *Store) currentVersion(k Key) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.slotDir(k), currentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s has no current version", ErrNotFound, k)
		}
		return "", fmt.Errorf("read current pointer %s: %w", k, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) versions(k Key) ([]string, error) {
	entries, err := os.ReadDir(s.slotDir(k))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", k, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, extension) {
			continue
		}
		out = append(out, strings.TrimSuffix(name, extension))
	}
	sort.Strings(out)
	return out, nil
}

// prune removes the oldest versions beyond keep; current is never removed
func (s *Store) prune(k Key, current string) (int, error) {
	versions, err := s.versions(k)
	if err != nil {
		return 0, err
	}
	if len(versions) <= s.keep {
		return 0, nil
	}

	removed := 0
	for _, v := range versions[:len(versions)-s.keep] {
		if v == current {
			continue
		}
		if err := os.Remove(filepath.Join(s.slotDir(k), v+extension)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove %s@%s: %w", k, v, err)
		}
		removed++
	}
	return removed, nil
}

// publish swaps in a new snapshot map (copy on write)
func (s *Store) publish(k Key, a *contracts.ModelArtifact) {
	old := *s.snapshot.Load()
	next := make(Snapshot, len(old)+1)
	for key, v := range old {
		next[key] = v
	}
	next[k] = a
	s.snapshot.Store(&next)
}

// WriteFileAtomic writes to a temp file in the target directory then renames it
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
