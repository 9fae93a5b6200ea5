package testutil

import (
	"math"
	"math/rand"
	"time"

	"github.com/wonny/fxcast/internal/contracts"
)

// SynthOptions 합성 시계열 생성 옵션
type SynthOptions struct {
	Days      int
	Start     time.Time
	Base      float64 // 대상 시계열 시작 레벨
	Drift     float64 // 일별 선형 추세
	Amplitude float64 // 계절 진폭
	Period    float64 // 계절 주기 (일)
	Noise     float64 // 관측 잡음 표준편차
	Seed      int64
	GapEvery  int // 0이면 결측 없음
	GapLen    int // 연속 결측 일수
}

// DefaultSynthOptions returns a 200-day drifting sinusoid around 1300
func DefaultSynthOptions() SynthOptions {
	return SynthOptions{
		Days:      200,
		Start:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Base:      1300,
		Drift:     0.8,
		Amplitude: 15,
		Period:    7,
		Noise:     1.5,
		Seed:      42,
	}
}

// TargetFunc returns the noiseless generating function for day index i
func (o SynthOptions) TargetFunc() func(i int) float64 {
	return func(i int) float64 {
		return o.Base + o.Drift*float64(i) + o.Amplitude*math.Sin(2*math.Pi*float64(i)/o.Period)
	}
}

// SyntheticBundle builds a deterministic bundle holding every required series
func SyntheticBundle(o SynthOptions) contracts.RawSeriesBundle {
	rng := rand.New(rand.NewSource(o.Seed))
	f := o.TargetFunc()

	dates := make([]time.Time, o.Days)
	for i := range dates {
		dates[i] = o.Start.AddDate(0, 0, i)
	}

	fx := make([]float64, o.Days)
	copper := make([]float64, o.Days)
	dxy := make([]float64, o.Days)
	vix := make([]float64, o.Days)
	rd := make([]float64, o.Days)
	rf := make([]float64, o.Days)

	for i := 0; i < o.Days; i++ {
		fx[i] = f(i) + rng.NormFloat64()*o.Noise
		copper[i] = 8500 - 2*float64(i) + 40*math.Sin(2*math.Pi*float64(i)/30) + rng.NormFloat64()*10
		dxy[i] = 103 + 0.01*float64(i) + 0.5*math.Sin(2*math.Pi*float64(i)/o.Period) + rng.NormFloat64()*0.1
		vix[i] = 16 + 2*math.Abs(math.Sin(2*math.Pi*float64(i)/45)) + math.Abs(rng.NormFloat64())*0.5
		rd[i] = 3.5
		rf[i] = 5.25
		if i >= o.Days/2 {
			rd[i] = 3.25
		}
	}

	series := map[string][]float64{
		contracts.SeriesFX:           fx,
		contracts.SeriesCopper:       copper,
		contracts.SeriesDXY:          dxy,
		contracts.SeriesVIX:          vix,
		contracts.SeriesRateDomestic: rd,
		contracts.SeriesRateForeign:  rf,
	}

	bundle := contracts.RawSeriesBundle{Target: contracts.SeriesFX, Series: map[string]contracts.Series{}}
	offset := 0
	for _, name := range contracts.RequiredSeries() {
		values := series[name]
		if o.GapEvery > 0 && o.GapLen > 0 {
			// 시리즈마다 결측 위치를 어긋나게 둠
			for start := o.GapEvery + offset; start+o.GapLen < o.Days; start += o.GapEvery {
				for k := 0; k < o.GapLen; k++ {
					values[start+k] = math.NaN()
				}
			}
			offset++
		}
		bundle.Series[name] = contracts.Series{
			Name:   name,
			Dates:  append([]time.Time(nil), dates...),
			Values: values,
		}
	}
	return bundle
}
