// Package market defines the value types shared between feeds, rules, execution, and the ledger.
package market

import "time"

// Point is a single timestamped price observation for one symbol.
type Point struct {
	Ts    time.Time `json:"ts"`
	Price float64   `json:"price"`
}

// Side enumerates trade directions.
type Side string

const (
	// Buy opens a long position.
	Buy Side = "BUY"
	// Sell closes it.
	Sell Side = "SELL"
)

// Signal expresses an entry or exit recommendation produced by rule evaluation.
// A detector fills in Point and Desc; the strategy driver stamps Symbol,
// IsEntry, and (for entries) Allocation before handing it to execution.
type Signal struct {
	Symbol     string
	Point      Point
	Desc       string
	IsEntry    bool
	Allocation float64
}

// Trade is the realized outcome of executing a signal.
type Trade struct {
	Symbol  string    `json:"symbol"`
	Qty     int       `json:"qty"`
	Price   float64   `json:"price"`
	IsEntry bool      `json:"is_entry"`
	Ts      time.Time `json:"ts"`
}

// Side maps the entry flag onto the order direction.
func (t Trade) Side() Side {
	if t.IsEntry {
		return Buy
	}
	return Sell
}

// Notional is the cash value of the trade.
func (t Trade) Notional() float64 { return float64(t.Qty) * t.Price }
