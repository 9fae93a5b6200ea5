package contracts

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// FeatureMatrix 모델 입력용 피처 테이블
// 각 행의 값은 해당 행 날짜 이전(포함) 데이터만으로 계산됨. 결측은 NaN.
type FeatureMatrix struct {
	Horizon         Horizon     `json:"horizon"`
	Target          string      `json:"target"` // 대상 레벨 컬럼 이름
	Dates           []time.Time `json:"dates"`
	Columns         []string    `json:"columns"`
	Data            [][]float64 `json:"data"` // row-major
	SkippedFamilies []string    `json:"skipped_families,omitempty"`
}

// Rows returns the number of rows
func (m *FeatureMatrix) Rows() int {
	return len(m.Data)
}

// ColIndex returns the position of a column or -1
func (m *FeatureMatrix) ColIndex(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Col returns a copy of a column
func (m *FeatureMatrix) Col(name string) ([]float64, bool) {
	j := m.ColIndex(name)
	if j < 0 {
		return nil, false
	}
	out := make([]float64, len(m.Data))
	for i, row := range m.Data {
		out[i] = row[j]
	}
	return out, true
}

// TargetValues returns the target level column
func (m *FeatureMatrix) TargetValues() ([]float64, bool) {
	return m.Col(m.Target)
}

// DateIndex maps calendar day to row index
func (m *FeatureMatrix) DateIndex() map[time.Time]int {
	idx := make(map[time.Time]int, len(m.Dates))
	for i, d := range m.Dates {
		idx[Day(d)] = i
	}
	return idx
}

// Clone returns a deep copy. Concurrent model fits each get their own.
func (m *FeatureMatrix) Clone() *FeatureMatrix {
	out := &FeatureMatrix{
		Horizon:         m.Horizon,
		Target:          m.Target,
		Dates:           append([]time.Time(nil), m.Dates...),
		Columns:         append([]string(nil), m.Columns...),
		Data:            make([][]float64, len(m.Data)),
		SkippedFamilies: append([]string(nil), m.SkippedFamilies...),
	}
	for i, row := range m.Data {
		out.Data[i] = append([]float64(nil), row...)
	}
	return out
}

// Before returns a deep copy of rows dated strictly before cutoff
func (m *FeatureMatrix) Before(cutoff time.Time) *FeatureMatrix {
	c := Day(cutoff)
	n := 0
	for n < len(m.Dates) && Day(m.Dates[n]).Before(c) {
		n++
	}
	return m.Head(n)
}

// Head returns a deep copy of the first n rows
func (m *FeatureMatrix) Head(n int) *FeatureMatrix {
	if n > len(m.Data) {
		n = len(m.Data)
	}
	out := &FeatureMatrix{
		Horizon:         m.Horizon,
		Target:          m.Target,
		Dates:           append([]time.Time(nil), m.Dates[:n]...),
		Columns:         append([]string(nil), m.Columns...),
		Data:            make([][]float64, n),
		SkippedFamilies: append([]string(nil), m.SkippedFamilies...),
	}
	for i := 0; i < n; i++ {
		out.Data[i] = append([]float64(nil), m.Data[i]...)
	}
	return out
}

// LastDate returns the date of the final row
func (m *FeatureMatrix) LastDate() time.Time {
	if len(m.Dates) == 0 {
		return time.Time{}
	}
	return m.Dates[len(m.Dates)-1]
}

// NullDensity returns the share of NaN cells
func (m *FeatureMatrix) NullDensity() float64 {
	cells, nulls := 0, 0
	for _, row := range m.Data {
		for _, v := range row {
			cells++
			if math.IsNaN(v) {
				nulls++
			}
		}
	}
	if cells == 0 {
		return 0
	}
	return float64(nulls) / float64(cells)
}

// NonFiniteCount counts infinite cells (NaN is a null, not a non-finite value here)
func (m *FeatureMatrix) NonFiniteCount() int {
	n := 0
	for _, row := range m.Data {
		for _, v := range row {
			if math.IsInf(v, 0) {
				n++
			}
		}
	}
	return n
}

// DropIncomplete removes rows holding any NaN and reports how many were dropped
func (m *FeatureMatrix) DropIncomplete() int {
	keptDates := m.Dates[:0]
	keptData := m.Data[:0]
	dropped := 0
	for i, row := range m.Data {
		complete := true
		for _, v := range row {
			if math.IsNaN(v) {
				complete = false
				break
			}
		}
		if !complete {
			dropped++
			continue
		}
		keptDates = append(keptDates, m.Dates[i])
		keptData = append(keptData, row)
	}
	m.Dates = keptDates
	m.Data = keptData
	return dropped
}

// MarshalBinary encodes the matrix deterministically (little endian, float bits verbatim)
func (m *FeatureMatrix) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	w := func(v any) {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	str := func(s string) {
		w(uint32(len(s)))
		buf.WriteString(s)
	}

	w(int32(m.Horizon))
	str(m.Target)
	w(uint32(len(m.Columns)))
	for _, c := range m.Columns {
		str(c)
	}
	w(uint32(len(m.Data)))
	for i, row := range m.Data {
		w(Day(m.Dates[i]).Unix())
		for _, v := range row {
			w(math.Float64bits(v))
		}
	}
	w(uint32(len(m.SkippedFamilies)))
	for _, f := range m.SkippedFamilies {
		str(f)
	}
	return buf.Bytes(), nil
}
