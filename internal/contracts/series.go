package contracts

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// 표준 시계열 이름
const (
	SeriesFX           = "fx"            // 대상 환율
	SeriesCopper       = "copper"        // 원자재 가격
	SeriesDXY          = "dxy"           // 달러 인덱스
	SeriesVIX          = "vix"           // 변동성 지수
	SeriesRateDomestic = "rate_domestic" // 국내 기준금리
	SeriesRateForeign  = "rate_foreign"  // 해외 기준금리
)

// RequiredSeries lists the series an upstream loader is expected to supply
func RequiredSeries() []string {
	return []string{SeriesFX, SeriesCopper, SeriesDXY, SeriesVIX, SeriesRateDomestic, SeriesRateForeign}
}

// Series 단일 시계열 (하루 1개 값, 결측은 NaN)
type Series struct {
	Name   string      `json:"name"`
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// Validate checks lengths and strictly increasing dates
func (s Series) Validate() error {
	if len(s.Dates) != len(s.Values) {
		return fmt.Errorf("%w: series %s has %d dates and %d values", ErrDataQuality, s.Name, len(s.Dates), len(s.Values))
	}
	for i := 1; i < len(s.Dates); i++ {
		if !Day(s.Dates[i]).After(Day(s.Dates[i-1])) {
			return fmt.Errorf("%w: series %s index not increasing at %s", ErrDataQuality, s.Name, s.Dates[i].Format("2006-01-02"))
		}
	}
	return nil
}

// Len returns number of observations
func (s Series) Len() int {
	return len(s.Values)
}

// Last returns the last finite observation
func (s Series) Last() (time.Time, float64, bool) {
	for i := len(s.Values) - 1; i >= 0; i-- {
		if !math.IsNaN(s.Values[i]) && !math.IsInf(s.Values[i], 0) {
			return s.Dates[i], s.Values[i], true
		}
	}
	return time.Time{}, 0, false
}

// ValueAt returns the observation on the given day
func (s Series) ValueAt(date time.Time) (float64, bool) {
	d := Day(date)
	i := sort.Search(len(s.Dates), func(i int) bool { return !Day(s.Dates[i]).Before(d) })
	if i < len(s.Dates) && Day(s.Dates[i]).Equal(d) && !math.IsNaN(s.Values[i]) {
		return s.Values[i], true
	}
	return 0, false
}

// RawSeriesBundle 외부 로더가 제공하는 원천 시계열 묶음 (런마다 불변 스냅샷)
type RawSeriesBundle struct {
	Target string            `json:"target"`
	Series map[string]Series `json:"series"`
}

// Get returns the named series if present and non-empty
func (b RawSeriesBundle) Get(name string) (Series, bool) {
	s, ok := b.Series[name]
	if !ok || s.Len() == 0 {
		return Series{}, false
	}
	return s, true
}

// TargetName defaults to the fx series
func (b RawSeriesBundle) TargetName() string {
	if b.Target == "" {
		return SeriesFX
	}
	return b.Target
}

// TargetSeries returns the series being forecast
func (b RawSeriesBundle) TargetSeries() (Series, error) {
	s, ok := b.Get(b.TargetName())
	if !ok {
		return Series{}, fmt.Errorf("%w: target series %q missing", ErrDataQuality, b.TargetName())
	}
	return s, nil
}

// Names returns series names in sorted order
func (b RawSeriesBundle) Names() []string {
	names := make([]string, 0, len(b.Series))
	for name := range b.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Day truncates t to a UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
