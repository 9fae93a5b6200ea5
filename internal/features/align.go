package features

import (
	"math"
	"time"

	"github.com/wonny/fxcast/internal/contracts"
)

// frame 달력 정렬 + 결측 처리가 끝난 시계열 모음
type frame struct {
	dates  []time.Time
	series map[string][]float64
	target string
}

func (f *frame) len() int {
	return len(f.dates)
}

func (f *frame) has(name string) bool {
	_, ok := f.series[name]
	return ok
}

// calendar returns one UTC day per entry from first to last target observation
func calendar(target contracts.Series) []time.Time {
	if target.Len() == 0 {
		return nil
	}
	start := contracts.Day(target.Dates[0])
	end := contracts.Day(target.Dates[target.Len()-1])
	days := int(end.Sub(start).Hours()/24) + 1
	out := make([]time.Time, days)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

// alignTo places series values on the calendar. Days without an observation are NaN.
func alignTo(s contracts.Series, dates []time.Time) []float64 {
	out := nanSlice(len(dates))
	if len(dates) == 0 {
		return out
	}
	start := dates[0]
	for i, d := range s.Dates {
		idx := int(contracts.Day(d).Sub(start).Hours() / 24)
		if idx < 0 || idx >= len(out) {
			continue
		}
		out[idx] = s.Values[i]
	}
	return out
}

// forwardFill carries the last known value across at most limit consecutive gaps
func forwardFill(values []float64, limit int) {
	last := math.NaN()
	run := 0
	for i, v := range values {
		if !math.IsNaN(v) {
			last = v
			run = 0
			continue
		}
		if math.IsNaN(last) {
			continue
		}
		run++
		if run <= limit {
			values[i] = last
		}
	}
}

// backFillLeading fills at most limit missing values at the series start
func backFillLeading(values []float64, limit int) {
	first := -1
	for i, v := range values {
		if !math.IsNaN(v) {
			first = i
			break
		}
	}
	if first <= 0 {
		return
	}
	for i := first - 1; i >= 0 && first-i <= limit; i-- {
		values[i] = values[first]
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
