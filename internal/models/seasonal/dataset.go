package seasonal

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/fxcast/internal/contracts"
)

// dataset 로그가격과 외생 열을 날짜로 조회
type dataset struct {
	fm        *contracts.FeatureMatrix
	logLevel  map[time.Time]float64
	exogIdx   []int
	exogNames []string
	first     time.Time
}

func newDataset(fm *contracts.FeatureMatrix, target string, exog []string) (*dataset, error) {
	ti := fm.ColIndex(target)
	if ti < 0 {
		return nil, fmt.Errorf("%w: target column %q missing", contracts.ErrDataQuality, target)
	}
	if fm.Rows() == 0 {
		return nil, fmt.Errorf("%w: empty feature matrix", contracts.ErrInsufficientHistory)
	}
	d := &dataset{fm: fm, logLevel: make(map[time.Time]float64, fm.Rows()), first: contracts.Day(fm.Dates[0])}
	for i, date := range fm.Dates {
		v := fm.Data[i][ti]
		if v <= 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("%w: non-positive target level at %s", contracts.ErrDataQuality, date.Format("2006-01-02"))
		}
		d.logLevel[contracts.Day(date)] = math.Log(v)
	}
	// 선언된 외생 열 중 존재하는 것만 사용
	for _, name := range exog {
		if j := fm.ColIndex(name); j >= 0 {
			d.exogIdx = append(d.exogIdx, j)
			d.exogNames = append(d.exogNames, name)
		}
	}
	return d, nil
}

func (d *dataset) z(date time.Time) (float64, bool) {
	v, ok := d.logLevel[date]
	return v, ok
}

// regressors builds [1, AR terms, seasonal analog, exogenous] known at issue date t for step s
func (d *dataset) regressors(t time.Time, row int, o Order, s int) ([]float64, bool) {
	x := make([]float64, 0, 2+o.P+len(d.exogIdx))
	x = append(x, 1)

	for j := 0; j < o.P; j++ {
		cur, ok := d.z(t.AddDate(0, 0, -j))
		if !ok {
			return nil, false
		}
		if o.D == 1 {
			prev, ok := d.z(t.AddDate(0, 0, -j-1))
			if !ok {
				return nil, false
			}
			cur -= prev
		}
		x = append(x, cur)
	}

	if o.Period > 0 {
		// 지난 계절의 같은 구간 변화: z[t+s-kP] - z[t-kP], kP >= s 이므로 인과적
		k := (s + o.Period - 1) / o.Period
		a, ok1 := d.z(t.AddDate(0, 0, s-k*o.Period))
		b, ok2 := d.z(t.AddDate(0, 0, -k*o.Period))
		if !ok1 || !ok2 {
			return nil, false
		}
		x = append(x, a-b)
	}

	for _, j := range d.exogIdx {
		x = append(x, d.fm.Data[row][j])
	}
	return x, true
}

// samples returns the design rows, responses (log level at t+s) and issue dates.
// minLookback, when set, restricts rows to a sample shared by every grid candidate.
func (d *dataset) samples(o Order, s int, minLookback *int) ([][]float64, []float64, []time.Time) {
	var rows [][]float64
	var y []float64
	var dates []time.Time
	for i, date := range d.fm.Dates {
		t := contracts.Day(date)
		if minLookback != nil && t.Before(d.first.AddDate(0, 0, *minLookback)) {
			continue
		}
		future, ok := d.z(t.AddDate(0, 0, s))
		if !ok {
			continue
		}
		x, ok := d.regressors(t, i, o, s)
		if !ok {
			continue
		}
		resp := future
		if o.D == 1 {
			zt, _ := d.z(t)
			resp -= zt
		}
		rows = append(rows, x)
		y = append(y, resp)
		dates = append(dates, t)
	}
	return rows, y, dates
}
