package forecast

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/fxcast/internal/contracts"
)

type predictionKey struct {
	horizon contracts.Horizon
	issue   time.Time
}

// MemoryRepository 프로세스 내 예측 로그 (DATABASE_URL 미설정 시, 테스트)
type MemoryRepository struct {
	mu          sync.RWMutex
	predictions map[predictionKey]contracts.PredictionRecord
	actuals     map[time.Time]contracts.ActualRecord
}

// NewMemoryRepository 새 메모리 저장소
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		predictions: make(map[predictionKey]contracts.PredictionRecord),
		actuals:     make(map[time.Time]contracts.ActualRecord),
	}
}

func (r *MemoryRepository) AppendPredictions(_ context.Context, recs []contracts.PredictionRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for _, p := range recs {
		p.IssueDate = contracts.Day(p.IssueDate)
		p.TargetDate = contracts.Day(p.TargetDate)
		k := predictionKey{p.Horizon, p.IssueDate}
		if _, ok := r.predictions[k]; ok {
			continue
		}
		r.predictions[k] = p
		inserted++
	}
	return inserted, nil
}

func (r *MemoryRepository) RecordActuals(_ context.Context, acts []contracts.ActualRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for _, a := range acts {
		d := contracts.Day(a.TargetDate)
		if _, ok := r.actuals[d]; ok {
			continue
		}
		a.TargetDate = d
		r.actuals[d] = a
		inserted++
	}
	return inserted, nil
}

func (r *MemoryRepository) ListPredictions(_ context.Context) ([]contracts.PredictionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contracts.PredictionRecord, 0, len(r.predictions))
	for _, p := range r.predictions {
		out = append(out, p)
	}
	sortPredictions(out)
	return out, nil
}

func (r *MemoryRepository) ListPaired(ctx context.Context) ([]contracts.PairedRecord, error) {
	preds, _ := r.ListPredictions(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []contracts.PairedRecord
	for _, p := range preds {
		if a, ok := r.actuals[p.TargetDate]; ok {
			out = append(out, contracts.PairedRecord{PredictionRecord: p, Actual: a.Value})
		}
	}
	return out, nil
}

func (r *MemoryRepository) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := contracts.Day(cutoff)
	var removed int64
	referenced := make(map[time.Time]bool)
	for k, p := range r.predictions {
		if p.IssueDate.Before(c) {
			delete(r.predictions, k)
			removed++
			continue
		}
		referenced[p.TargetDate] = true
	}
	for d := range r.actuals {
		if d.Before(c) && !referenced[d] {
			delete(r.actuals, d)
		}
	}
	return removed, nil
}

func sortPredictions(ps []contracts.PredictionRecord) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Horizon != ps[j].Horizon {
			return ps[i].Horizon < ps[j].Horizon
		}
		return ps[i].IssueDate.Before(ps[j].IssueDate)
	})
}
