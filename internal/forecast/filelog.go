package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/wonny/fxcast/internal/artifact"
	"github.com/wonny/fxcast/internal/contracts"
)

// FileRepository 단일 JSON 파일에 보존되는 예측 로그 (DATABASE_URL 없는 단독 실행용)
// 변경 연산마다 전체 스냅샷을 write-then-rename 으로 다시 씀
type FileRepository struct {
	path string
	mem  *MemoryRepository
	mu   sync.Mutex // 저장 직렬화
}

type fileSnapshot struct {
	Predictions []contracts.PredictionRecord `json:"predictions"`
	Actuals     []contracts.ActualRecord     `json:"actuals"`
}

// OpenFileRepository loads path if it exists
func OpenFileRepository(path string) (*FileRepository, error) {
	r := &FileRepository{path: path, mem: NewMemoryRepository()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prediction log: %w", err)
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode prediction log %s: %w", path, err)
	}
	ctx := context.Background()
	if _, err := r.mem.AppendPredictions(ctx, snap.Predictions); err != nil {
		return nil, err
	}
	if _, err := r.mem.RecordActuals(ctx, snap.Actuals); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRepository) AppendPredictions(ctx context.Context, recs []contracts.PredictionRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.mem.AppendPredictions(ctx, recs)
	if err != nil || n == 0 {
		return n, err
	}
	return n, r.save()
}

func (r *FileRepository) RecordActuals(ctx context.Context, acts []contracts.ActualRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.mem.RecordActuals(ctx, acts)
	if err != nil || n == 0 {
		return n, err
	}
	return n, r.save()
}

func (r *FileRepository) ListPredictions(ctx context.Context) ([]contracts.PredictionRecord, error) {
	return r.mem.ListPredictions(ctx)
}

func (r *FileRepository) ListPaired(ctx context.Context) ([]contracts.PairedRecord, error) {
	return r.mem.ListPaired(ctx)
}

func (r *FileRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.mem.Prune(ctx, cutoff)
	if err != nil || n == 0 {
		return n, err
	}
	return n, r.save()
}

func (r *FileRepository) save() error {
	preds, _ := r.mem.ListPredictions(context.Background())

	r.mem.mu.RLock()
	acts := make([]contracts.ActualRecord, 0, len(r.mem.actuals))
	for _, a := range r.mem.actuals {
		acts = append(acts, a)
	}
	r.mem.mu.RUnlock()
	sort.Slice(acts, func(i, j int) bool { return acts[i].TargetDate.Before(acts[j].TargetDate) })

	data, err := json.MarshalIndent(fileSnapshot{Predictions: preds, Actuals: acts}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prediction log: %w", err)
	}
	if err := artifact.WriteFileAtomic(r.path, data); err != nil {
		return fmt.Errorf("write prediction log: %w", err)
	}
	return nil
}
