package tree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/modelconfig"
)

// Params 고정 하이퍼파라미터 (외부 탐색 대상)
type Params struct {
	Estimators   int     `json:"estimators"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	MinLeaf      int     `json:"min_leaf"`
	Lambda       float64 `json:"lambda"`
	MaxAnchors   int     `json:"max_anchors"`
}

// ParamsFrom converts the tree section of the model config
func ParamsFrom(cfg modelconfig.TreeConfig) Params {
	return Params{
		Estimators:   cfg.Estimators,
		MaxDepth:     cfg.MaxDepth,
		LearningRate: cfg.LearningRate,
		MinLeaf:      cfg.MinLeaf,
		Lambda:       cfg.Lambda,
		MaxAnchors:   cfg.MaxAnchors,
	}
}

// Model 그래디언트 부스팅 트리 모델: 앵커 스텝별 직접 회귀
// 목표값: ln(P[t+s] / P[t]). 예측값을 다음 스텝 입력으로 되먹이지 않음
type Model struct {
	Horizon    contracts.Horizon  `json:"horizon"`
	Target     string             `json:"target"`
	Features   []string           `json:"features"`
	Anchors    []int              `json:"anchors"`
	Boosters   []booster          `json:"boosters"`
	Importance map[string]float64 `json:"importance"`
	Params     Params             `json:"params"`
	TrainStart time.Time          `json:"train_start"`
	TrainEnd   time.Time          `json:"train_end"`
	TrainRMSE  float64            `json:"train_rmse"`
}

// Trainer fits tree models
type Trainer struct {
	params Params
	logger zerolog.Logger
}

// NewTrainer creates a trainer with fixed hyperparameters
func NewTrainer(params Params, logger zerolog.Logger) *Trainer {
	return &Trainer{
		params: params,
		logger: logger.With().Str("component", "models.tree").Logger(),
	}
}

// Fit trains one booster per anchor step
func (t *Trainer) Fit(ctx context.Context, fm *contracts.FeatureMatrix, target string, h contracts.Horizon) (*Model, error) {
	if !h.Valid() {
		return nil, fmt.Errorf("%w: horizon %d", contracts.ErrConfiguration, h)
	}
	if t.params.Estimators < 1 || t.params.MaxDepth < 1 || t.params.LearningRate <= 0 || t.params.MinLeaf < 1 {
		return nil, fmt.Errorf("%w: tree params %+v", contracts.ErrConfiguration, t.params)
	}
	ti := fm.ColIndex(target)
	if ti < 0 {
		return nil, fmt.Errorf("%w: target column %q missing", contracts.ErrDataQuality, target)
	}

	featIdx := make([]int, 0, len(fm.Columns)-1)
	features := make([]string, 0, len(fm.Columns)-1)
	for j, c := range fm.Columns {
		if j == ti {
			continue
		}
		featIdx = append(featIdx, j)
		features = append(features, c)
	}

	m := &Model{
		Horizon:    h,
		Target:     target,
		Features:   features,
		Anchors:    Anchors(h.Days(), t.params.MaxAnchors),
		Params:     t.params,
		Importance: make(map[string]float64, len(features)),
	}
	dateIdx := fm.DateIndex()
	totalGain := make([]float64, len(features))
	var lastRMSE float64

	for _, step := range m.Anchors {
		var x [][]float64
		var y []float64
		for i, d := range fm.Dates {
			j, ok := dateIdx[contracts.Day(d).AddDate(0, 0, step)]
			if !ok {
				continue
			}
			p0, p1 := fm.Data[i][ti], fm.Data[j][ti]
			if p0 <= 0 || p1 <= 0 {
				continue
			}
			row := make([]float64, len(featIdx))
			for k, c := range featIdx {
				row[k] = fm.Data[i][c]
			}
			x = append(x, row)
			y = append(y, math.Log(p1/p0))
			if m.TrainStart.IsZero() || d.Before(m.TrainStart) {
				m.TrainStart = d
			}
			if d.After(m.TrainEnd) {
				m.TrainEnd = d
			}
		}
		if len(x) < 2*t.params.MinLeaf {
			return nil, fmt.Errorf("%w: %d samples for step %d", contracts.ErrInsufficientHistory, len(x), step)
		}

		b, rmse, err := t.boost(ctx, x, y, totalGain)
		if err != nil {
			return nil, err
		}
		m.Boosters = append(m.Boosters, b)
		lastRMSE = rmse
	}
	m.TrainRMSE = lastRMSE

	sum := 0.0
	for _, g := range totalGain {
		sum += g
	}
	for k, name := range features {
		if sum > 0 {
			m.Importance[name] = totalGain[k] / sum
		} else {
			m.Importance[name] = 0
		}
	}

	t.logger.Debug().
		Str("horizon", h.String()).
		Ints("anchors", m.Anchors).
		Int("features", len(features)).
		Float64("train_rmse", m.TrainRMSE).
		Msg("tree model fitted")

	return m, nil
}

func (t *Trainer) boost(ctx context.Context, x [][]float64, y []float64, gainAcc []float64) (booster, float64, error) {
	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(len(y))

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = base
	}
	residue := make([]float64, len(y))
	g := newGrower(x, t.params)
	b := booster{Base: base, LearningRate: t.params.LearningRate}

	for e := 0; e < t.params.Estimators; e++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return b, 0, fmt.Errorf("%w: tree fit: %v", contracts.ErrTimeout, err)
			}
			return b, 0, err
		}
		for i := range y {
			residue[i] = y[i] - pred[i]
		}
		tr := g.grow(residue)
		b.Trees = append(b.Trees, tr)
		for i := range pred {
			pred[i] += t.params.LearningRate * tr.predict(x[i])
		}
	}
	for k := range gainAcc {
		gainAcc[k] += g.gain[k]
	}

	sse := 0.0
	for i := range y {
		d := y[i] - pred[i]
		sse += d * d
	}
	return b, math.Sqrt(sse / float64(len(y))), nil
}

// Predict forecasts every step of the horizon from the last row of fm
func (m *Model) Predict(fm *contracts.FeatureMatrix) ([]contracts.PointForecast, error) {
	return m.PredictAt(fm, fm.Rows()-1)
}

// PredictAt forecasts from an arbitrary issue row
func (m *Model) PredictAt(fm *contracts.FeatureMatrix, row int) ([]contracts.PointForecast, error) {
	if row < 0 || row >= fm.Rows() {
		return nil, fmt.Errorf("%w: issue row %d out of range", contracts.ErrInsufficientHistory, row)
	}
	ti := fm.ColIndex(m.Target)
	if ti < 0 {
		return nil, fmt.Errorf("%w: target column %q missing", contracts.ErrDataQuality, m.Target)
	}
	x := make([]float64, len(m.Features))
	for k, name := range m.Features {
		j := fm.ColIndex(name)
		if j < 0 {
			return nil, fmt.Errorf("%w: feature %q missing at predict", contracts.ErrDataQuality, name)
		}
		x[k] = fm.Data[row][j]
	}

	anchorRet := make([]float64, len(m.Anchors))
	for a := range m.Anchors {
		anchorRet[a] = m.Boosters[a].predict(x)
	}

	issue := fm.Dates[row]
	level := fm.Data[row][ti]
	out := make([]contracts.PointForecast, 0, m.Horizon.Days())
	for s := 1; s <= m.Horizon.Days(); s++ {
		r := interpolate(m.Anchors, anchorRet, s)
		out = append(out, contracts.PointForecast{
			Horizon:    m.Horizon,
			Step:       s,
			TargetDate: contracts.Day(issue).AddDate(0, 0, s),
			Value:      level * math.Exp(r),
			Model:      contracts.ModelTree,
		})
	}
	return out, nil
}

// TopFeatures returns the n most important features, descending
func (m *Model) TopFeatures(n int) []string {
	names := append([]string(nil), m.Features...)
	sort.SliceStable(names, func(a, b int) bool { return m.Importance[names[a]] > m.Importance[names[b]] })
	if n < len(names) {
		names = names[:n]
	}
	return names
}

// Artifact serializes the fitted model
func (m *Model) Artifact(trainedAt time.Time, configHash string) (contracts.ModelArtifact, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return contracts.ModelArtifact{}, fmt.Errorf("marshal tree model: %w", err)
	}
	return contracts.ModelArtifact{
		Meta: contracts.ArtifactMeta{
			Model:      contracts.ModelTree,
			Horizon:    m.Horizon,
			Version:    contracts.NewVersion(trainedAt),
			TrainStart: m.TrainStart,
			TrainEnd:   m.TrainEnd,
			Hyperparams: map[string]any{
				"estimators":    m.Params.Estimators,
				"max_depth":     m.Params.MaxDepth,
				"learning_rate": m.Params.LearningRate,
				"min_leaf":      m.Params.MinLeaf,
				"lambda":        m.Params.Lambda,
				"anchors":       m.Anchors,
			},
			Features:   m.Features,
			TrainedAt:  trainedAt,
			Metrics:    map[string]float64{"train_rmse_logret": m.TrainRMSE},
			ConfigHash: configHash,
		},
		Payload: payload,
	}, nil
}

// FromArtifact restores a model
func FromArtifact(a contracts.ModelArtifact) (*Model, error) {
	if a.Meta.Model != contracts.ModelTree {
		return nil, fmt.Errorf("%w: artifact model %q is not %q", contracts.ErrConfiguration, a.Meta.Model, contracts.ModelTree)
	}
	var m Model
	if err := json.Unmarshal(a.Payload, &m); err != nil {
		return nil, fmt.Errorf("unmarshal tree model: %w", err)
	}
	if len(m.Boosters) != len(m.Anchors) || len(m.Anchors) == 0 {
		return nil, fmt.Errorf("%w: corrupt tree artifact", contracts.ErrConfiguration)
	}
	return &m, nil
}

// Anchors returns evenly spaced steps in [1, h], always including 1 and h
func Anchors(h, maxAnchors int) []int {
	if h <= maxAnchors {
		out := make([]int, h)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}
	out := make([]int, 0, maxAnchors)
	for k := 0; k < maxAnchors; k++ {
		s := int(math.Round(1 + float64(k)*float64(h-1)/float64(maxAnchors-1)))
		if len(out) == 0 || s > out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// interpolate linearly between anchor log-returns; steps before the first anchor scale from zero
func interpolate(anchors []int, values []float64, step int) float64 {
	for a, s := range anchors {
		if s == step {
			return values[a]
		}
		if s > step {
			if a == 0 {
				return values[0] * float64(step) / float64(s)
			}
			s0, v0 := anchors[a-1], values[a-1]
			w := float64(step-s0) / float64(s-s0)
			return v0 + w*(values[a]-v0)
		}
	}
	return values[len(values)-1]
}
