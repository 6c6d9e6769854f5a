// Package report writes run artifacts for the downstream charting/reporting sink.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/repque/intraday/internal/market"
	"github.com/repque/intraday/internal/portfolio"
)

// record is one JSONL line; Kind tells consumers how to decode Body.
type record struct {
	Kind string      `json:"kind"`
	Body interface{} `json:"body"`
}

// chartBody carries everything a plotting sink needs for one symbol: the
// ordered in-session points plus where and why buys and sells happened.
type chartBody struct {
	Symbol string           `json:"symbol"`
	Points []market.Point   `json:"points"`
	Buys   []portfolio.Mark `json:"buys"`
	Sells  []portfolio.Mark `json:"sells"`
}

// Writer appends run records as JSON lines.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewWriter creates/opens the target file and returns a writer.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open report file: %w", err)
	}
	return &Writer{file: file, enc: json.NewEncoder(file)}, nil
}

// RecordTrade writes a single executed trade.
func (w *Writer) RecordTrade(trade market.Trade) {
	w.write(record{Kind: "trade", Body: trade})
}

// WriteChart emits the chart series for one symbol.
func (w *Writer) WriteChart(symbol string, pos *portfolio.Position) {
	if pos == nil {
		return
	}
	w.write(record{Kind: "chart", Body: chartBody{
		Symbol: symbol,
		Points: pos.Points,
		Buys:   pos.Buys,
		Sells:  pos.Sells,
	}})
}

// WriteSummary emits the final PnL report.
func (w *Writer) WriteSummary(rep portfolio.Report) {
	w.write(record{Kind: "summary", Body: rep})
}

func (w *Writer) write(r record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return
	}
	_ = w.enc.Encode(r)
}

// Close flushes and closes the file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
