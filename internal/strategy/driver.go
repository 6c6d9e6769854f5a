// Package strategy drives one instrument's rule set against its price feed.
package strategy

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/repque/intraday/internal/market"
	"github.com/repque/intraday/internal/metrics"
	"github.com/repque/intraday/internal/rules"
)

// Feed supplies the ordered price series for one symbol; io.EOF ends the run.
type Feed interface {
	Next() (market.Point, error)
}

// Ledger receives point storage and mark-to-market updates for in-session points.
type Ledger interface {
	ObservePoint(symbol string, p market.Point)
	MarkToMarket(symbol string, p market.Point)
}

// Session is the trading window within which points are processed. Points
// outside it are fully ignored: no detector updates, no mark-to-market, no
// chart storage.
type Session struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// DefaultSession covers the 9:30-16:00 cash session.
var DefaultSession = Session{OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0}

// Contains reports whether ts falls inside the window. The open is inclusive,
// the close exclusive: a 9:30-16:00 session processes 9:30 through 15:59.
func (s Session) Contains(ts time.Time) bool {
	minute := ts.Hour()*60 + ts.Minute()
	return minute >= s.OpenHour*60+s.OpenMinute && minute < s.CloseHour*60+s.CloseMinute
}

// eodTime is one minute before the close, when open positions are forced out.
func (s Session) eodTime() (int, int) {
	minute := s.CloseHour*60 + s.CloseMinute - 1
	return minute / 60, minute % 60
}

// Config binds one symbol to its capital allocation and ordered rule lists.
type Config struct {
	Symbol     string
	Allocation float64
	EntryRules []rules.Rule
	ExitRules  []rules.Rule
}

// Driver owns one configured strategy's state across ticks: the live/flat
// flag, the active flag, and a hard end-of-day exit detector that runs ahead
// of the configured exit rules.
type Driver struct {
	cfg        Config
	feed       Feed
	ledger     Ledger
	session    Session
	eodExit    rules.Rule
	inPosition bool
	active     bool
	log        zerolog.Logger
}

// NewDriver wires a config to its feed and ledger. The end-of-day exit is
// derived from the session close, independent of the configured exit rules.
func NewDriver(cfg Config, f Feed, ledger Ledger, session Session, log zerolog.Logger) *Driver {
	hour, minute := session.eodTime()
	return &Driver{
		cfg:     cfg,
		feed:    f,
		ledger:  ledger,
		session: session,
		eodExit: rules.NewTimeTrigger(hour, minute),
		active:  true,
		log:     log.With().Str("symbol", cfg.Symbol).Logger(),
	}
}

// Symbol returns the instrument this driver trades.
func (d *Driver) Symbol() string { return d.cfg.Symbol }

// Active reports whether the driver still participates in loop rounds. Once
// false it stays false: feed exhaustion and faults are both terminal.
func (d *Driver) Active() bool { return d.active }

// InPosition reports the live/flat state.
func (d *Driver) InPosition() bool { return d.inPosition }

// Tick pulls the next point and runs one round of rule evaluation, returning
// at most one stamped signal. A nil, nil return means nothing fired this tick.
// Any error has already deactivated the driver; other strategies are unaffected.
func (d *Driver) Tick() (sig *market.Signal, err error) {
	if !d.active {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			d.deactivate("fault")
			sig = nil
			err = fmt.Errorf("tick %s: %v", d.cfg.Symbol, r)
		}
	}()

	point, err := d.feed.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			d.deactivate("exhausted")
			d.log.Debug().Msg("feed exhausted")
			return nil, nil
		}
		d.deactivate("fault")
		return nil, fmt.Errorf("next point for %s: %w", d.cfg.Symbol, err)
	}

	if !d.session.Contains(point.Ts) {
		return nil, nil
	}
	d.ledger.ObservePoint(d.cfg.Symbol, point)

	// forced end-of-day exit outranks the configured exit rules; the trigger
	// is only fed while a position is open so a flat tick in the EOD minute
	// does not consume its once-per-day fire
	if d.inPosition {
		if eod := d.eodExit.Observe(point); eod != nil {
			d.inPosition = false
			eod.Symbol = d.cfg.Symbol
			eod.IsEntry = false
			return eod, nil
		}
	}

	if d.inPosition {
		sig = firstMatch(d.cfg.ExitRules, point)
		if sig != nil {
			sig.IsEntry = false
		}
	} else {
		sig = firstMatch(d.cfg.EntryRules, point)
		if sig != nil {
			sig.IsEntry = true
			sig.Allocation = d.cfg.Allocation
		}
	}
	if sig != nil {
		sig.Symbol = d.cfg.Symbol
		d.inPosition = sig.IsEntry
		return sig, nil
	}

	d.ledger.MarkToMarket(d.cfg.Symbol, point)
	return nil, nil
}

func (d *Driver) deactivate(reason string) {
	d.active = false
	metrics.StrategiesDeactivated.WithLabelValues(d.cfg.Symbol, reason).Inc()
}

// firstMatch evaluates rules in list order; the first to fire wins and
// short-circuits the rest.
func firstMatch(list []rules.Rule, p market.Point) *market.Signal {
	for _, r := range list {
		if sig := r.Observe(p); sig != nil {
			return sig
		}
	}
	return nil
}
