package seasonal

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errSingular = errors.New("normal equations not positive definite")

// olsResult 최소제곱 적합 결과
type olsResult struct {
	beta  []float64
	rss   float64
	n     int
	k     int
	sigma float64 // 잔차 표준편차 (자유도 보정)
}

// fitOLS solves (XᵀX + ridge·I)β = Xᵀy by Cholesky
func fitOLS(rows [][]float64, y []float64, ridge float64) (olsResult, error) {
	n := len(rows)
	if n == 0 {
		return olsResult{}, errSingular
	}
	k := len(rows[0])
	if n <= k+1 {
		return olsResult{}, errors.New("not enough rows for regressors")
	}

	flat := make([]float64, 0, n*k)
	for _, r := range rows {
		flat = append(flat, r...)
	}
	x := mat.NewDense(n, k, flat)
	yv := mat.NewVecDense(n, append([]float64(nil), y...))

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	for i := 0; i < k; i++ {
		xtx.SetSym(i, i, xtx.At(i, i)+ridge)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), yv)

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return olsResult{}, errSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return olsResult{}, err
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	rss := 0.0
	for i := 0; i < n; i++ {
		d := y[i] - fitted.AtVec(i)
		rss += d * d
	}
	if math.IsNaN(rss) || math.IsInf(rss, 0) {
		return olsResult{}, errSingular
	}

	out := olsResult{beta: make([]float64, k), rss: rss, n: n, k: k}
	for i := 0; i < k; i++ {
		out.beta[i] = beta.AtVec(i)
	}
	out.sigma = math.Sqrt(rss / float64(n-k))
	return out, nil
}

// aic = n·ln(RSS/n) + 2k
func (r olsResult) aic() float64 {
	rss := r.rss
	if rss <= 0 {
		rss = 1e-300
	}
	return float64(r.n)*math.Log(rss/float64(r.n)) + 2*float64(r.k)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
