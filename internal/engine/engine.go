// Package engine runs the round-robin event loop over configured strategies.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/repque/intraday/internal/market"
	"github.com/repque/intraday/internal/metrics"
	"github.com/repque/intraday/internal/portfolio"
	"github.com/repque/intraday/internal/strategy"
)

// Executor resolves signals into trades; nil, nil means the signal was dropped.
type Executor interface {
	Execute(sig *market.Signal) (*market.Trade, error)
}

// Book receives fills and produces the final report.
type Book interface {
	ApplyFill(trade market.Trade, desc string)
	Report() portfolio.Report
}

// Recorder captures executed trades for later inspection.
type Recorder interface {
	RecordTrade(trade market.Trade)
}

// Option configures Loop construction.
type Option func(*Loop)

// WithInterval sets the sleep between rounds; zero (the default) runs rounds
// back to back, which is what replays want.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithRecorder attaches a trade recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// Loop advances every active strategy by exactly one tick per round, in fixed
// order, until none remain active. Strategies deactivate themselves; the loop
// only routes their signals and always finishes with a report.
type Loop struct {
	drivers  []*strategy.Driver
	executor Executor
	book     Book
	recorder Recorder
	interval time.Duration
	log      zerolog.Logger
}

// New assembles the loop over the given drivers.
func New(drivers []*strategy.Driver, executor Executor, book Book, log zerolog.Logger, opts ...Option) *Loop {
	l := &Loop{drivers: drivers, executor: executor, book: book, log: log}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run blocks until every strategy has deactivated or the context is canceled,
// then returns the final report.
func (l *Loop) Run(ctx context.Context) portfolio.Report {
	for {
		active := 0
		for _, driver := range l.drivers {
			if ctx.Err() != nil {
				l.log.Info().Msg("run canceled")
				return l.book.Report()
			}
			if !driver.Active() {
				continue
			}
			active++
			l.step(driver)
		}
		if active == 0 {
			l.log.Info().Msg("all strategies finished")
			return l.book.Report()
		}
		if l.interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(l.interval):
			}
		}
	}
}

func (l *Loop) step(driver *strategy.Driver) {
	sig, err := driver.Tick()
	if err != nil {
		// the driver already deactivated itself; the rest of the loop goes on
		l.log.Error().Err(err).Str("symbol", driver.Symbol()).Msg("strategy deactivated")
		return
	}
	if sig == nil {
		return
	}

	side := market.Sell
	if sig.IsEntry {
		side = market.Buy
	}
	metrics.SignalsTotal.WithLabelValues(sig.Symbol, string(side)).Inc()
	l.log.Info().Str("symbol", sig.Symbol).Str("side", string(side)).Str("desc", sig.Desc).Msg("signal")

	trade, err := l.executor.Execute(sig)
	if err != nil {
		l.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("execution failed, signal dropped")
		return
	}
	if trade == nil {
		return
	}
	l.book.ApplyFill(*trade, sig.Desc)
	if l.recorder != nil {
		l.recorder.RecordTrade(*trade)
	}
}
