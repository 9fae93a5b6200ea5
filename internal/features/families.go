package features

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/modelconfig"
)

// column 이름이 붙은 피처 열
type column struct {
	name   string
	values []float64
}

// family 선언적 스키마를 가진 피처 패밀리
// requires 중 하나라도 없으면 패밀리 전체를 건너뜀 (다른 열로 대체하지 않음)
type family struct {
	name     string
	requires []string
	warmup   int
	build    func(f *frame) ([]column, []string)
}

// 패밀리 이름
const (
	FamilyLags      = "lags"
	FamilyTechnical = "technical"
	FamilyMacro     = "macro"
	FamilyDerived   = "derived"
	FamilyCalendar  = "calendar"
)

var (
	returnWindows = []int{1, 7, 30}
	volWindows    = []int{10, 30}
	pctWindows    = []int{5, 20}
)

const (
	trendWindow   = 20
	maDistWindow  = 20
	derivedWarmup = 31 // vol_30 needs 30 daily returns
)

// families returns the enabled families in column order
func families(cfg modelconfig.FeatureConfig, target string) []family {
	var out []family

	if cfg.Families.Lags {
		out = append(out, family{
			name:     FamilyLags,
			requires: []string{target},
			warmup:   maxInt(cfg.TargetLags),
			build: func(f *frame) ([]column, []string) {
				var cols []column
				var skipped []string
				for _, l := range cfg.TargetLags {
					cols = append(cols, column{target + "_lag_" + strconv.Itoa(l), lag(f.series[target], l)})
				}
				for _, name := range cfg.Exogenous {
					if !f.has(name) {
						skipped = append(skipped, FamilyLags+"."+name)
						continue
					}
					for _, l := range cfg.ExogLags {
						cols = append(cols, column{name + "_lag_" + strconv.Itoa(l), lag(f.series[name], l)})
					}
				}
				return cols, skipped
			},
		})
	}

	if cfg.Families.Technical {
		out = append(out, family{
			name:     FamilyTechnical,
			requires: []string{target},
			warmup:   technicalWarmup(),
			build: func(f *frame) ([]column, []string) {
				var cols []column
				var skipped []string
				for _, name := range cfg.TechnicalSeries {
					if !f.has(name) {
						skipped = append(skipped, FamilyTechnical+"."+name)
						continue
					}
					cols = append(cols, technicalColumns(name, f.series[name])...)
				}
				return cols, skipped
			},
		})
	}

	if cfg.Families.Macro {
		out = append(out, family{
			name:     FamilyMacro,
			requires: []string{contracts.SeriesRateDomestic, contracts.SeriesRateForeign},
			warmup:   pctWindows[len(pctWindows)-1],
			build: func(f *frame) ([]column, []string) {
				dom := f.series[contracts.SeriesRateDomestic]
				fgn := f.series[contracts.SeriesRateForeign]
				spread := make([]float64, f.len())
				for i := range spread {
					spread[i] = dom[i] - fgn[i]
				}
				cols := []column{{"rate_spread", spread}}

				var skipped []string
				for _, name := range cfg.Exogenous {
					if !f.has(name) {
						skipped = append(skipped, FamilyMacro+"."+name)
						continue
					}
					for _, w := range pctWindows {
						cols = append(cols, column{name + "_pct_" + strconv.Itoa(w), pctChange(f.series[name], w)})
					}
				}
				return cols, skipped
			},
		})
	}

	if cfg.Families.Derived {
		out = append(out, family{
			name:     FamilyDerived,
			requires: []string{target},
			warmup:   derivedWarmup,
			build: func(f *frame) ([]column, []string) {
				v := f.series[target]
				var cols []column
				for _, w := range returnWindows {
					cols = append(cols, column{"ret_" + strconv.Itoa(w), pctChange(v, w)})
				}
				lr := logReturns(v)
				for _, w := range volWindows {
					cols = append(cols, column{"vol_" + strconv.Itoa(w), rollingStdNaN(lr, w)})
				}
				cols = append(cols,
					column{"trend_slope_" + strconv.Itoa(trendWindow), trendSlope(v, trendWindow)},
					column{"ma_dist_" + strconv.Itoa(maDistWindow), maDistance(v, maDistWindow)},
				)
				return cols, nil
			},
		})
	}

	if cfg.Families.Calendar {
		out = append(out, family{
			name: FamilyCalendar,
			build: func(f *frame) ([]column, []string) {
				dow := make([]float64, f.len())
				month := make([]float64, f.len())
				quarter := make([]float64, f.len())
				for i, d := range f.dates {
					dow[i] = float64(d.Weekday())
					month[i] = float64(d.Month())
					quarter[i] = float64((int(d.Month())-1)/3 + 1)
				}
				return []column{{"dow", dow}, {"month", month}, {"quarter", quarter}}, nil
			},
		})
	}

	return out
}

// lag shifts values forward by k rows
func lag(values []float64, k int) []float64 {
	out := nanSlice(len(values))
	for i := k; i < len(values); i++ {
		out[i] = values[i-k]
	}
	return out
}

// pctChange returns v[t]/v[t-k] - 1
func pctChange(values []float64, k int) []float64 {
	out := nanSlice(len(values))
	for i := k; i < len(values); i++ {
		out[i] = values[i]/values[i-k] - 1
	}
	return out
}

// logReturns returns ln(v[t]/v[t-1]), NaN at index 0
func logReturns(values []float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		out[i] = math.Log(values[i] / values[i-1])
	}
	return out
}

// rollingStdNaN is the trailing sample std; any NaN in the window yields NaN
func rollingStdNaN(values []float64, w int) []float64 {
	out := nanSlice(len(values))
	for i := w - 1; i < len(values); i++ {
		window := values[i-w+1 : i+1]
		if hasNaN(window) {
			continue
		}
		out[i] = stat.StdDev(window, nil)
	}
	return out
}

// trendSlope is the OLS slope of the trailing window, relative to the current level
func trendSlope(values []float64, w int) []float64 {
	out := nanSlice(len(values))
	xs := make([]float64, w)
	for i := range xs {
		xs[i] = float64(i)
	}
	for i := w - 1; i < len(values); i++ {
		window := values[i-w+1 : i+1]
		if hasNaN(window) {
			continue
		}
		_, beta := stat.LinearRegression(xs, window, nil, false)
		out[i] = beta / values[i]
	}
	return out
}

// maDistance is v[t] / SMA_w[t] - 1
func maDistance(values []float64, w int) []float64 {
	out := nanSlice(len(values))
	for i := w - 1; i < len(values); i++ {
		window := values[i-w+1 : i+1]
		if hasNaN(window) {
			continue
		}
		out[i] = values[i]/stat.Mean(window, nil) - 1
	}
	return out
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

func maxInt(xs []int) int {
	m := 0
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

func fmtPeriod(name string, p int) string {
	return name + "_" + strconv.Itoa(p)
}
