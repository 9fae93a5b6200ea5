package features

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/modelconfig"
)

// Pipeline 원천 시계열 묶음 → 피처 행렬
// 입력만의 순수 함수: 동일 입력이면 바이트 단위로 동일한 출력
type Pipeline struct {
	cfg    modelconfig.FeatureConfig
	logger zerolog.Logger
}

// QualityReport 품질 게이트 결과
type QualityReport struct {
	CalendarRows    int      `json:"calendar_rows"`
	WarmupRows      int      `json:"warmup_rows"`
	RawNullDensity  float64  `json:"raw_null_density"` // 워밍업 포함 전체
	NullDensity     float64  `json:"null_density"`     // 워밍업 이후 (게이트 대상)
	NonFinite       int      `json:"non_finite"`
	DroppedRows     int      `json:"dropped_rows"`
	Rows            int      `json:"rows"`
	Columns         int      `json:"columns"`
	SkippedFamilies []string `json:"skipped_families,omitempty"`
	Passed          bool     `json:"passed"`
}

// NewPipeline creates a feature pipeline
func NewPipeline(cfg modelconfig.FeatureConfig, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		logger: logger.With().Str("component", "features.pipeline").Logger(),
	}
}

// Build produces the model-ready matrix for a horizon.
// 반환 행렬에는 결측/무한값이 없음. 게이트 실패 시 ErrDataQuality.
func (p *Pipeline) Build(bundle contracts.RawSeriesBundle, h contracts.Horizon) (*contracts.FeatureMatrix, *QualityReport, error) {
	fm, report, err := p.assemble(bundle, h)
	if err != nil {
		return nil, report, err
	}

	if err := p.gate(fm, report); err != nil {
		p.logger.Error().
			Str("horizon", h.String()).
			Float64("null_density", report.NullDensity).
			Int("non_finite", report.NonFinite).
			Msg("feature matrix rejected")
		return nil, report, err
	}

	report.DroppedRows = fm.DropIncomplete()
	report.Rows = fm.Rows()
	if fm.Rows() == 0 {
		return nil, report, fmt.Errorf("%w: no complete rows after warm-up", contracts.ErrDataQuality)
	}
	report.Passed = true

	p.logger.Debug().
		Str("horizon", h.String()).
		Int("rows", report.Rows).
		Int("columns", report.Columns).
		Int("dropped", report.DroppedRows).
		Strs("skipped", report.SkippedFamilies).
		Msg("feature matrix built")

	return fm, report, nil
}

// assemble aligns, fills and computes every enabled family (pre-drop matrix)
func (p *Pipeline) assemble(bundle contracts.RawSeriesBundle, h contracts.Horizon) (*contracts.FeatureMatrix, *QualityReport, error) {
	report := &QualityReport{}
	target, err := bundle.TargetSeries()
	if err != nil {
		return nil, report, err
	}
	for _, name := range bundle.Names() {
		if err := bundle.Series[name].Validate(); err != nil {
			return nil, report, err
		}
	}

	dates := calendar(target)
	f := &frame{dates: dates, series: make(map[string][]float64), target: bundle.TargetName()}
	for _, name := range bundle.Names() {
		s, ok := bundle.Get(name)
		if !ok {
			continue
		}
		values := alignTo(s, dates)
		forwardFill(values, p.cfg.FFillLimit)
		backFillLeading(values, p.cfg.BFillLimit)
		f.series[name] = values
	}
	report.CalendarRows = len(dates)

	cols := []column{{name: f.target, values: f.series[f.target]}}
	warmup := 0
	for _, fam := range families(p.cfg, f.target) {
		missing := ""
		for _, req := range fam.requires {
			if !f.has(req) {
				missing = req
				break
			}
		}
		if missing != "" {
			report.SkippedFamilies = append(report.SkippedFamilies, fam.name)
			p.logger.Warn().Str("family", fam.name).Str("missing", missing).Msg("feature family skipped")
			continue
		}
		famCols, skipped := fam.build(f)
		cols = append(cols, famCols...)
		report.SkippedFamilies = append(report.SkippedFamilies, skipped...)
		if fam.warmup > warmup {
			warmup = fam.warmup
		}
	}
	report.WarmupRows = warmup
	report.Columns = len(cols)

	fm := &contracts.FeatureMatrix{
		Horizon:         h,
		Target:          f.target,
		Dates:           dates,
		Columns:         make([]string, len(cols)),
		Data:            make([][]float64, len(dates)),
		SkippedFamilies: report.SkippedFamilies,
	}
	for j, c := range cols {
		fm.Columns[j] = c.name
	}
	for i := range dates {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = c.values[i]
		}
		fm.Data[i] = row
	}
	return fm, report, nil
}

// gate rejects matrices whose post-warm-up null density exceeds the limit or that hold infinities
func (p *Pipeline) gate(fm *contracts.FeatureMatrix, report *QualityReport) error {
	report.RawNullDensity = fm.NullDensity()
	report.NonFinite = fm.NonFiniteCount()

	post := &contracts.FeatureMatrix{Columns: fm.Columns}
	if report.WarmupRows < fm.Rows() {
		post.Data = fm.Data[report.WarmupRows:]
	}
	report.NullDensity = post.NullDensity()

	if report.NonFinite > 0 {
		return fmt.Errorf("%w: %d infinite values", contracts.ErrDataQuality, report.NonFinite)
	}
	if report.NullDensity > p.cfg.MaxNullDensity {
		return fmt.Errorf("%w: null density %.4f exceeds %.4f", contracts.ErrDataQuality, report.NullDensity, p.cfg.MaxNullDensity)
	}
	return nil
}

// CheckMatrix re-validates a matrix handed to a model: no NaN, no infinities
func CheckMatrix(fm *contracts.FeatureMatrix) error {
	for i, row := range fm.Data {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d column %s not finite", contracts.ErrDataQuality, i, fm.Columns[j])
			}
		}
	}
	return nil
}
