// Package feed supplies ordered price series from recorded files or live sources.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/repque/intraday/internal/market"
	"github.com/repque/intraday/internal/metrics"
)

// Feed hands out one point per call and io.EOF once the series is exhausted.
// Strategy drivers treat io.EOF as the expected terminal condition and any
// other error as a fault.
type Feed interface {
	Next() (market.Point, error)
}

const replayTimeLayout = "20060102 150405"

// Replay walks a recorded day file of symbol,date,time,price rows, ordered by
// timestamp. An optional day filter restricts the replay to one calendar day.
type Replay struct {
	symbol string
	points []market.Point
	idx    int
}

// OpenReplay loads <dir>/<symbol>.csv, optionally filtered to day (zero means
// all recorded days).
func OpenReplay(dir, symbol string, day time.Time) (*Replay, error) {
	path := filepath.Join(dir, symbol+".csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 4

	var points []market.Point
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		ts, err := time.Parse(replayTimeLayout, row[1]+" "+row[2])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", row[1]+" "+row[2], err)
		}
		price, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", row[3], err)
		}
		if !day.IsZero() {
			y1, m1, d1 := day.Date()
			y2, m2, d2 := ts.Date()
			if y1 != y2 || m1 != m2 || d1 != d2 {
				continue
			}
		}
		points = append(points, market.Point{Ts: ts, Price: price})
	}
	return &Replay{symbol: symbol, points: points}, nil
}

// Next returns the following recorded point, or io.EOF past the last one.
func (r *Replay) Next() (market.Point, error) {
	if r.idx >= len(r.points) {
		return market.Point{}, io.EOF
	}
	p := r.points[r.idx]
	r.idx++
	metrics.PointsTotal.WithLabelValues(r.symbol).Inc()
	return p, nil
}

// Synthetic emits a deterministic minute-spaced series, useful for tests and
// offline runs.
type Synthetic struct {
	symbol string
	next   market.Point
	step   float64
	left   int
}

// NewSynthetic produces count points starting at start/startPrice, advancing
// one minute and step price units per point.
func NewSynthetic(symbol string, start time.Time, startPrice, step float64, count int) *Synthetic {
	return &Synthetic{
		symbol: symbol,
		next:   market.Point{Ts: start, Price: startPrice},
		step:   step,
		left:   count,
	}
}

// Next returns the following generated point, or io.EOF once count is spent.
func (s *Synthetic) Next() (market.Point, error) {
	if s.left == 0 {
		return market.Point{}, io.EOF
	}
	p := s.next
	s.left--
	s.next = market.Point{Ts: p.Ts.Add(time.Minute), Price: p.Price + s.step}
	metrics.PointsTotal.WithLabelValues(s.symbol).Inc()
	return p, nil
}
