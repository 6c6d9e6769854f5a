package strategy

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/repque/intraday/internal/market"
	"github.com/repque/intraday/internal/rules"
)

type sliceFeed struct {
	points []market.Point
	idx    int
	err    error
}

func (f *sliceFeed) Next() (market.Point, error) {
	if f.idx >= len(f.points) {
		if f.err != nil {
			return market.Point{}, f.err
		}
		return market.Point{}, io.EOF
	}
	p := f.points[f.idx]
	f.idx++
	return p, nil
}

type recordingLedger struct {
	observed int
	marked   int
}

func (l *recordingLedger) ObservePoint(string, market.Point) { l.observed++ }
func (l *recordingLedger) MarkToMarket(string, market.Point) { l.marked++ }

func points(start time.Time, prices ...float64) []market.Point {
	out := make([]market.Point, len(prices))
	for i, p := range prices {
		out[i] = market.Point{Ts: start.Add(time.Duration(i) * time.Minute), Price: p}
	}
	return out
}

func sessionStart() time.Time {
	return time.Date(2020, time.April, 6, 9, 30, 0, 0, time.UTC)
}

func TestTickEntersOnBreakout(t *testing.T) {
	feed := &sliceFeed{points: points(sessionStart(), 250.0, 250.5, 251.0, 251.5)}
	ledger := &recordingLedger{}
	entry, _ := rules.Build(rules.Spec{Type: "breakout", Window: 3})
	driver := NewDriver(Config{Symbol: "TEST", Allocation: 0.5, EntryRules: []rules.Rule{entry}},
		feed, ledger, DefaultSession, zerolog.Nop())

	for i := 0; i < 3; i++ {
		sig, err := driver.Tick()
		if err != nil {
			t.Fatalf("Tick returned error: %v", err)
		}
		if sig != nil {
			t.Fatalf("no signal expected while range forms, got %+v", sig)
		}
	}
	if driver.InPosition() {
		t.Fatalf("driver must be flat before the breakout")
	}

	sig, err := driver.Tick()
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if sig == nil {
		t.Fatalf("expected entry signal on the breakout tick")
	}
	if !sig.IsEntry || sig.Symbol != "TEST" || sig.Allocation != 0.5 {
		t.Fatalf("signal not stamped for entry: %+v", sig)
	}
	if !driver.InPosition() {
		t.Fatalf("driver must be in position after the entry signal")
	}
}

func TestTickExitFirstMatchWins(t *testing.T) {
	// in position, both stops armed at 100: the stop-loss is listed first and
	// fires; the stop-profit must not be consulted after the match
	start := sessionStart()
	feed := &sliceFeed{points: points(start, 100.0, 97.0)}
	stopLoss, _ := rules.Build(rules.Spec{Type: "stop_loss", Percent: 0.02})
	stopProfit, _ := rules.Build(rules.Spec{Type: "stop_profit", Percent: 0.02})
	driver := NewDriver(Config{Symbol: "TEST", ExitRules: []rules.Rule{stopLoss, stopProfit}},
		feed, &recordingLedger{}, DefaultSession, zerolog.Nop())
	driver.inPosition = true

	if sig, _ := driver.Tick(); sig != nil {
		t.Fatalf("arming tick must not fire, got %+v", sig)
	}
	sig, err := driver.Tick()
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if sig == nil || sig.IsEntry {
		t.Fatalf("expected exit signal, got %+v", sig)
	}
	if driver.InPosition() {
		t.Fatalf("driver must be flat after the exit signal")
	}
}

func TestTickIgnoresOutOfSessionPoints(t *testing.T) {
	afterHours := time.Date(2020, time.April, 6, 16, 30, 0, 0, time.UTC)
	feed := &sliceFeed{points: points(afterHours, 250.0, 251.0)}
	ledger := &recordingLedger{}
	entry, _ := rules.Build(rules.Spec{Type: "breakout", Window: 1})
	driver := NewDriver(Config{Symbol: "TEST", EntryRules: []rules.Rule{entry}},
		feed, ledger, DefaultSession, zerolog.Nop())

	for i := 0; i < 2; i++ {
		sig, err := driver.Tick()
		if err != nil {
			t.Fatalf("Tick returned error: %v", err)
		}
		if sig != nil {
			t.Fatalf("out-of-session point must not fire, got %+v", sig)
		}
	}
	if ledger.observed != 0 || ledger.marked != 0 {
		t.Fatalf("out-of-session points must not reach the ledger, got %d/%d", ledger.observed, ledger.marked)
	}
}

func TestTickForcesEndOfDayExit(t *testing.T) {
	eod := time.Date(2020, time.April, 6, 15, 59, 0, 0, time.UTC)
	stopLoss, _ := rules.Build(rules.Spec{Type: "stop_loss", Percent: 0.5})
	feed := &sliceFeed{points: []market.Point{{Ts: eod, Price: 250.0}}}
	driver := NewDriver(Config{Symbol: "TEST", ExitRules: []rules.Rule{stopLoss}},
		feed, &recordingLedger{}, DefaultSession, zerolog.Nop())
	driver.inPosition = true

	sig, err := driver.Tick()
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if sig == nil || sig.IsEntry {
		t.Fatalf("expected forced exit at end of day, got %+v", sig)
	}
	if driver.InPosition() {
		t.Fatalf("driver must be flat after the forced exit")
	}
}

func TestTickEndOfDayIgnoredWhenFlat(t *testing.T) {
	eod := time.Date(2020, time.April, 6, 15, 59, 0, 0, time.UTC)
	feed := &sliceFeed{points: []market.Point{{Ts: eod, Price: 250.0}}}
	ledger := &recordingLedger{}
	driver := NewDriver(Config{Symbol: "TEST"}, feed, ledger, DefaultSession, zerolog.Nop())

	sig, err := driver.Tick()
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if sig != nil {
		t.Fatalf("flat driver must not emit an end-of-day exit, got %+v", sig)
	}
	if ledger.marked != 1 {
		t.Fatalf("expected mark-to-market on a signal-less tick, got %d", ledger.marked)
	}
}

func TestTickEndOfDayExitAfterFlatTickSameMinute(t *testing.T) {
	// a flat tick inside the EOD minute must not consume the trigger's daily
	// fire; an entry seconds later is still forced out before the close
	eod := time.Date(2020, time.April, 6, 15, 59, 0, 0, time.UTC)
	feed := &sliceFeed{points: []market.Point{
		{Ts: eod, Price: 250.0},
		{Ts: eod.Add(10 * time.Second), Price: 251.0},
		{Ts: eod.Add(20 * time.Second), Price: 251.5},
	}}
	entry, _ := rules.Build(rules.Spec{Type: "breakout", Window: 1})
	driver := NewDriver(Config{Symbol: "TEST", Allocation: 0.5, EntryRules: []rules.Rule{entry}},
		feed, &recordingLedger{}, DefaultSession, zerolog.Nop())

	if sig, _ := driver.Tick(); sig != nil {
		t.Fatalf("flat tick in the EOD minute must stay quiet, got %+v", sig)
	}
	sig, err := driver.Tick()
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if sig == nil || !sig.IsEntry {
		t.Fatalf("expected entry on the breakout tick, got %+v", sig)
	}

	sig, err = driver.Tick()
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if sig == nil || sig.IsEntry {
		t.Fatalf("expected forced end-of-day exit, got %+v", sig)
	}
	if driver.InPosition() {
		t.Fatalf("driver must be flat after the forced exit")
	}
}

func TestTickMarksToMarketOnQuietTicks(t *testing.T) {
	feed := &sliceFeed{points: points(sessionStart(), 250.0, 250.5)}
	ledger := &recordingLedger{}
	entry, _ := rules.Build(rules.Spec{Type: "breakout", Window: 5})
	driver := NewDriver(Config{Symbol: "TEST", EntryRules: []rules.Rule{entry}},
		feed, ledger, DefaultSession, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if _, err := driver.Tick(); err != nil {
			t.Fatalf("Tick returned error: %v", err)
		}
	}
	if ledger.observed != 2 || ledger.marked != 2 {
		t.Fatalf("expected 2 observed and 2 marked, got %d/%d", ledger.observed, ledger.marked)
	}
}

func TestTickDeactivatesOnExhaustion(t *testing.T) {
	feed := &sliceFeed{points: points(sessionStart(), 250.0)}
	driver := NewDriver(Config{Symbol: "TEST"}, feed, &recordingLedger{}, DefaultSession, zerolog.Nop())

	if _, err := driver.Tick(); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	sig, err := driver.Tick()
	if err != nil {
		t.Fatalf("exhaustion is not an error, got %v", err)
	}
	if sig != nil {
		t.Fatalf("exhausted feed must not signal, got %+v", sig)
	}
	if driver.Active() {
		t.Fatalf("driver must deactivate once the feed is exhausted")
	}
}

func TestTickDeactivatesOnFault(t *testing.T) {
	feed := &sliceFeed{err: errors.New("source went away")}
	driver := NewDriver(Config{Symbol: "TEST"}, feed, &recordingLedger{}, DefaultSession, zerolog.Nop())

	if _, err := driver.Tick(); err == nil {
		t.Fatalf("expected fault to surface as an error")
	}
	if driver.Active() {
		t.Fatalf("driver must deactivate permanently on fault")
	}

	// a deactivated driver is inert
	sig, err := driver.Tick()
	if sig != nil || err != nil {
		t.Fatalf("deactivated driver must be inert, got %+v, %v", sig, err)
	}
}
