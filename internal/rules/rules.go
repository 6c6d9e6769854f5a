// Package rules contains the condition detectors that turn price points into raw signals.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/repque/intraday/internal/market"
)

// Rule is a stateful detector fed one point at a time; a non-nil result means it fired.
// Detectors are single-shot per trigger: after firing they reset their trigger
// state so they can arm again, except where a type documents otherwise.
type Rule interface {
	Observe(p market.Point) *market.Signal
}

// TimeTrigger fires when a point's clock reads the configured hour and minute.
// Seconds are ignored. It fires at most once per calendar day, so feeding it
// several points within the trigger minute does not produce repeats.
type TimeTrigger struct {
	hour      int
	minute    int
	lastFired time.Time
}

// NewTimeTrigger builds a time-of-day detector.
func NewTimeTrigger(hour, minute int) *TimeTrigger {
	return &TimeTrigger{hour: hour, minute: minute}
}

// Observe fires when the point's time-of-day matches the target.
func (t *TimeTrigger) Observe(p market.Point) *market.Signal {
	if p.Ts.Hour() != t.hour || p.Ts.Minute() != t.minute {
		return nil
	}
	if sameDay(t.lastFired, p.Ts) {
		return nil
	}
	t.lastFired = p.Ts
	return &market.Signal{Point: p, Desc: fmt.Sprintf("hour: %d, minute: %d", t.hour, t.minute)}
}

// Breakout records the maximum price over the first N points of each calendar
// day and fires once a later point trades strictly above that level. The
// window resets whenever the point's date changes. With repeat=false the
// detector fires at most once per day and stays silent until the date
// advances; with repeat=true the level is kept and every point above it fires.
type Breakout struct {
	window   int
	repeat   bool
	counter  int
	maxPrice float64
	lastDay  time.Time
	fired    bool
}

// NewBreakout builds a breakout detector over the first window points of a day.
func NewBreakout(window int, repeat bool) *Breakout {
	return &Breakout{window: window, repeat: repeat}
}

// Observe accumulates the opening range, then compares later prices against it.
func (b *Breakout) Observe(p market.Point) *market.Signal {
	if !sameDay(b.lastDay, p.Ts) {
		b.counter = 0
		b.maxPrice = 0
		b.fired = false
		b.lastDay = p.Ts
	}
	if b.fired {
		return nil
	}
	if b.counter < b.window {
		b.counter++
		if p.Price > b.maxPrice {
			b.maxPrice = p.Price
		}
		return nil
	}
	if p.Price <= b.maxPrice {
		return nil
	}
	sig := &market.Signal{Point: p, Desc: fmt.Sprintf("break out above %.2f", b.maxPrice)}
	if !b.repeat {
		b.fired = true
	}
	return sig
}

// StopLoss arms on the first observed price and fires when a later price
// trades strictly below reference × (1 − percent). Firing clears the
// reference, so the next point re-arms the stop at a fresh level.
type StopLoss struct {
	percent   float64
	reference float64
	trigger   float64
}

// NewStopLoss builds a percentage stop-loss detector.
func NewStopLoss(percent float64) *StopLoss {
	return &StopLoss{percent: percent}
}

// Observe arms on the first point, then watches for a break below the trigger.
func (s *StopLoss) Observe(p market.Point) *market.Signal {
	if s.reference == 0 {
		s.reference = p.Price
		s.trigger = s.reference * (1 - s.percent)
		return nil
	}
	if p.Price >= s.trigger {
		return nil
	}
	desc := fmt.Sprintf("loss exit: broke below %.2f", s.trigger)
	s.reference = 0
	s.trigger = 0
	return &market.Signal{Point: p, Desc: desc}
}

// StopProfit is the StopLoss mirror: trigger = reference × (1 + percent),
// firing when price trades strictly above it.
type StopProfit struct {
	percent   float64
	reference float64
	trigger   float64
}

// NewStopProfit builds a percentage stop-profit detector.
func NewStopProfit(percent float64) *StopProfit {
	return &StopProfit{percent: percent}
}

// Observe arms on the first point, then watches for a break above the trigger.
func (s *StopProfit) Observe(p market.Point) *market.Signal {
	if s.reference == 0 {
		s.reference = p.Price
		s.trigger = s.reference * (1 + s.percent)
		return nil
	}
	if p.Price <= s.trigger {
		return nil
	}
	desc := fmt.Sprintf("profit exit: broke above %.2f", s.trigger)
	s.reference = 0
	s.trigger = 0
	return &market.Signal{Point: p, Desc: desc}
}

// AllOf forwards every point to each child and fires only when all of them
// fire on that same point. Children stay independently stateful and keep
// accumulating on points where the combinator does not fire.
type AllOf struct {
	children []Rule
}

// NewAllOf combines detectors with AND semantics. Nesting is allowed since
// AllOf is itself a Rule.
func NewAllOf(children ...Rule) *AllOf {
	return &AllOf{children: children}
}

// Observe fires iff every child fired, joining their descriptions.
func (a *AllOf) Observe(p market.Point) *market.Signal {
	descs := make([]string, 0, len(a.children))
	for _, child := range a.children {
		if sig := child.Observe(p); sig != nil {
			descs = append(descs, sig.Desc)
		}
	}
	if len(descs) == 0 || len(descs) != len(a.children) {
		return nil
	}
	return &market.Signal{Point: p, Desc: strings.Join(descs, "; ")}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
