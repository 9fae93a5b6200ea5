package volatility

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// 양측 신뢰수준 z값
var (
	Z80 = distuv.UnitNormal.Quantile(0.90)  // ≈ 1.2816
	Z95 = distuv.UnitNormal.Quantile(0.975) // ≈ 1.9600
)

// Band 스텝별 가격 구간
type Band struct {
	Step   int
	Sigma  float64 // 누적 로그수익률 표준편차
	Low80  float64
	High80 float64
	Low95  float64
	High95 float64
}

// CumulativeSigma returns sqrt(Σ_{j<=k} σ²_j) for every step k
func CumulativeSigma(variances []float64) []float64 {
	out := make([]float64, len(variances))
	acc := 0.0
	for i, v := range variances {
		if v > 0 && !math.IsNaN(v) {
			acc += v
		}
		out[i] = math.Sqrt(acc)
	}
	return out
}

// Bands scales cumulative sigma around each mean: mean ± mean·z·σ_k.
// 95% 오프셋 ≥ 80% 오프셋이므로 구간 포함 관계가 구성상 보장됨. 하한은 0 미만으로 내려가지 않음.
func Bands(means, variances []float64) []Band {
	sigmas := CumulativeSigma(variances)
	out := make([]Band, len(means))
	for i, mean := range means {
		sig := 0.0
		if i < len(sigmas) {
			sig = sigmas[i]
		}
		scale := math.Abs(mean)
		off80 := scale * Z80 * sig
		off95 := scale * Z95 * sig
		out[i] = Band{
			Step:   i + 1,
			Sigma:  sig,
			Low80:  floorZero(mean-off80, mean),
			High80: mean + off80,
			Low95:  floorZero(mean-off95, mean),
			High95: mean + off95,
		}
	}
	return out
}

func floorZero(v, mean float64) float64 {
	if mean >= 0 && v < 0 {
		return 0
	}
	return v
}
