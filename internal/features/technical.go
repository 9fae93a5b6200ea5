package features

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"gonum.org/v1/gonum/stat"
)

// 기술적 지표 기간
const (
	bollingerPeriod = 20
	bollingerK      = 2.0
	rsiPeriod       = 14
	atrPeriod       = 14 // volatility.NewAtr 기본 기간
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
)

var (
	smaPeriods = []int{5, 10, 20, 50}
	emaPeriods = []int{macdFast, macdSlow}
)

// technicalWarmup is the longest look-back of the technical family
func technicalWarmup() int {
	return max(smaPeriods[len(smaPeriods)-1]-1, macdSlow+macdSignal-2, atrPeriod, rsiPeriod, bollingerPeriod-1)
}

// technicalColumns computes indicators for one series.
// 지표는 NaN을 처리하지 못하므로 인과적 forward-fill 사본에서 계산 후 원래 결측 위치를 다시 NaN 처리
func technicalColumns(prefix string, values []float64) []column {
	n := len(values)
	start, work := causalSpan(values)
	if start < 0 {
		return nil
	}

	var cols []column
	add := func(name string, out []float64) {
		cols = append(cols, column{name: prefix + "_" + name, values: mask(pad(start, out, n), values)})
	}

	for _, p := range smaPeriods {
		add(fmtPeriod("sma", p), sma(work, p))
	}
	emas := make(map[int][]float64, len(emaPeriods))
	for _, p := range emaPeriods {
		emas[p] = ema(work, p)
		add(fmtPeriod("ema", p), emas[p])
	}

	add(fmtPeriod("rsi", rsiPeriod), rsi(work, rsiPeriod))

	mid := sma(work, bollingerPeriod)
	std := rollingStd(work, bollingerPeriod)
	upper := make([]float64, len(mid))
	lower := make([]float64, len(mid))
	width := make([]float64, len(mid))
	for i := range mid {
		s := std[len(std)-len(mid)+i]
		upper[i] = mid[i] + bollingerK*s
		lower[i] = mid[i] - bollingerK*s
		width[i] = (upper[i] - lower[i]) / mid[i]
	}
	add(fmtPeriod("bb_upper", bollingerPeriod), upper)
	add(fmtPeriod("bb_lower", bollingerPeriod), lower)
	add(fmtPeriod("bb_width", bollingerPeriod), width)

	// 종가만 있는 시계열: high = low = close 이므로 true range = |Δclose|
	add(fmtPeriod("atr", atrPeriod), atr(work))

	macdLine, signal, hist := macd(emas[macdFast], emas[macdSlow])
	add("macd", macdLine)
	add("macd_signal", signal)
	add("macd_hist", hist)

	return cols
}

// causalSpan returns the first finite index and a forward-filled copy starting there
func causalSpan(values []float64) (int, []float64) {
	start := -1
	for i, v := range values {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 {
		return -1, nil
	}
	work := append([]float64(nil), values[start:]...)
	for i := 1; i < len(work); i++ {
		if math.IsNaN(work[i]) {
			work[i] = work[i-1]
		}
	}
	return start, work
}

func sma(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	ind := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(ind.Compute(helper.SliceToChan(values)))
}

func ema(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	ind := trend.NewEmaWithPeriod[float64](period)
	return helper.ChanToSlice(ind.Compute(helper.SliceToChan(values)))
}

func rsi(values []float64, period int) []float64 {
	if len(values) <= period {
		return nil
	}
	ind := momentum.NewRsiWithPeriod[float64](period)
	return helper.ChanToSlice(ind.Compute(helper.SliceToChan(values)))
}

func atr(values []float64) []float64 {
	if len(values) <= atrPeriod {
		return nil
	}
	ind := volatility.NewAtr[float64]()
	return helper.ChanToSlice(ind.Compute(
		helper.SliceToChan(values),
		helper.SliceToChan(values),
		helper.SliceToChan(values),
	))
}

// macd derives MACD from already computed fast/slow EMAs, tail aligned
func macd(fast, slow []float64) (line, signal, hist []float64) {
	if len(slow) == 0 || len(fast) < len(slow) {
		return nil, nil, nil
	}
	offset := len(fast) - len(slow)
	line = make([]float64, len(slow))
	for i := range slow {
		line[i] = fast[offset+i] - slow[i]
	}
	signal = ema(line, macdSignal)
	if len(signal) == 0 {
		return line, nil, nil
	}
	hist = make([]float64, len(signal))
	off := len(line) - len(signal)
	for i := range signal {
		hist[i] = line[off+i] - signal[i]
	}
	return line, signal, hist
}

// rollingStd returns the sample standard deviation over each full window
func rollingStd(values []float64, window int) []float64 {
	if len(values) < window {
		return nil
	}
	out := make([]float64, 0, len(values)-window+1)
	for i := window; i <= len(values); i++ {
		out = append(out, stat.StdDev(values[i-window:i], nil))
	}
	return out
}

// pad aligns an indicator output (which omits its warm-up) to the tail of an n-length column
func pad(start int, out []float64, n int) []float64 {
	res := nanSlice(n)
	if len(out) > n-start {
		out = out[len(out)-(n-start):]
	}
	off := n - len(out)
	copy(res[off:], out)
	return res
}

// mask restores NaN where the source series had no value
func mask(col, source []float64) []float64 {
	for i, v := range source {
		if math.IsNaN(v) {
			col[i] = math.NaN()
		}
	}
	return col
}
