package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/fxcast/internal/contracts"
)

// DateLayout CSV 날짜 컬럼 포맷
const DateLayout = "2006-01-02"

// missing 값으로 취급하는 셀
var missingTokens = map[string]bool{"": true, "na": true, "nan": true, "null": true, "-": true}

// Parse reads a wide CSV snapshot: a date column followed by one column per series.
// Blank cells are unobserved days; each series keeps only its observed dates.
func Parse(r io.Reader, target string) (contracts.RawSeriesBundle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return contracts.RawSeriesBundle{}, fmt.Errorf("%w: empty csv", contracts.ErrDataQuality)
	}
	if err != nil {
		return contracts.RawSeriesBundle{}, fmt.Errorf("%w: read header: %v", contracts.ErrDataQuality, err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "date") {
		return contracts.RawSeriesBundle{}, fmt.Errorf("%w: header must start with date and name at least one series", contracts.ErrDataQuality)
	}

	names := make([]string, len(header)-1)
	seen := map[string]bool{}
	for i, h := range header[1:] {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" || seen[name] {
			return contracts.RawSeriesBundle{}, fmt.Errorf("%w: blank or duplicate column %q", contracts.ErrDataQuality, h)
		}
		seen[name] = true
		names[i] = name
	}

	series := make(map[string]*contracts.Series, len(names))
	for _, n := range names {
		series[n] = &contracts.Series{Name: n}
	}

	var prev time.Time
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return contracts.RawSeriesBundle{}, fmt.Errorf("%w: line %d: %v", contracts.ErrDataQuality, line, err)
		}

		d, err := time.Parse(DateLayout, strings.TrimSpace(rec[0]))
		if err != nil {
			return contracts.RawSeriesBundle{}, fmt.Errorf("%w: line %d: date %q", contracts.ErrDataQuality, line, rec[0])
		}
		if !prev.IsZero() && !d.After(prev) {
			return contracts.RawSeriesBundle{}, fmt.Errorf("%w: line %d: date %s not after %s", contracts.ErrDataQuality, line, d.Format(DateLayout), prev.Format(DateLayout))
		}
		prev = d

		for i, cell := range rec[1:] {
			cell = strings.TrimSpace(cell)
			if missingTokens[strings.ToLower(cell)] {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
				return contracts.RawSeriesBundle{}, fmt.Errorf("%w: line %d column %s: value %q", contracts.ErrDataQuality, line, names[i], cell)
			}
			s := series[names[i]]
			s.Dates = append(s.Dates, d)
			s.Values = append(s.Values, v)
		}
	}

	b := contracts.RawSeriesBundle{Target: target, Series: make(map[string]contracts.Series, len(series))}
	for n, s := range series {
		if s.Len() == 0 {
			continue
		}
		b.Series[n] = *s
	}
	if _, err := b.TargetSeries(); err != nil {
		return contracts.RawSeriesBundle{}, err
	}
	return b, nil
}

// AsOf drops observations dated after the cutoff day
func AsOf(b contracts.RawSeriesBundle, cutoff time.Time) contracts.RawSeriesBundle {
	day := contracts.Day(cutoff)
	out := contracts.RawSeriesBundle{Target: b.Target, Series: make(map[string]contracts.Series, len(b.Series))}
	for name, s := range b.Series {
		n := len(s.Dates)
		for n > 0 && contracts.Day(s.Dates[n-1]).After(day) {
			n--
		}
		if n == 0 {
			continue
		}
		out.Series[name] = contracts.Series{
			Name:   s.Name,
			Dates:  append([]time.Time(nil), s.Dates[:n]...),
			Values: append([]float64(nil), s.Values[:n]...),
		}
	}
	return out
}

// Write renders a bundle in the wide CSV format Parse reads
func Write(w io.Writer, b contracts.RawSeriesBundle) error {
	names := b.Names()
	index := map[time.Time]int{}
	var dates []time.Time
	for _, n := range names {
		for _, d := range b.Series[n].Dates {
			day := contracts.Day(d)
			if _, ok := index[day]; !ok {
				index[day] = len(dates)
				dates = append(dates, day)
			}
		}
	}
	sortDates(dates)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"date"}, names...)); err != nil {
		return err
	}
	for _, d := range dates {
		row := make([]string, len(names)+1)
		row[0] = d.Format(DateLayout)
		for i, n := range names {
			if v, ok := b.Series[n].ValueAt(d); ok {
				row[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
