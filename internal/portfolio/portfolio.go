// Package portfolio tracks per-symbol positions, cash, and profit state for one run.
package portfolio

import (
	"time"

	"github.com/repque/intraday/internal/market"
)

// Mark remembers when and why a fill happened, for charting.
type Mark struct {
	Ts   time.Time `json:"ts"`
	Desc string    `json:"desc"`
}

// Position is the running ledger for one instrument. Quantity is zero (flat)
// or positive; shorts are not modeled. Exits always flatten.
type Position struct {
	Qty         int
	CostBasis   float64
	RealizedPl  float64
	MtmPl       float64
	Commissions float64

	// chart history for the reporting sink
	Points []market.Point
	Buys   []Mark
	Sells  []Mark
}

// Report is the whole-run PnL summary. Values are whole-unit; fractional
// precision is kept internally and dropped only here. TotalCommissions is
// reported negated since it is a cost.
type Report struct {
	StartingEquity   int `json:"starting_equity"`
	EndingEquity     int `json:"ending_equity"`
	Net              int `json:"net"`
	TotalPl          int `json:"total_pl"`
	TotalCommissions int `json:"total_commissions"`
}

// Portfolio owns every configured position plus the cash balances. It is
// mutated only from the single loop goroutine.
type Portfolio struct {
	startingCash   float64
	availableCash  float64
	commissionRate float64
	positions      map[string]*Position
}

// New creates a portfolio with a zeroed position for every configured symbol.
func New(symbols []string, cash, commissionRate float64) *Portfolio {
	positions := make(map[string]*Position, len(symbols))
	for _, sym := range symbols {
		positions[sym] = &Position{}
	}
	return &Portfolio{
		startingCash:   cash,
		availableCash:  cash,
		commissionRate: commissionRate,
		positions:      positions,
	}
}

// StartingCash returns the initial bankroll allocations are computed from.
func (p *Portfolio) StartingCash() float64 { return p.startingCash }

// AvailableCash reports free cash that can fund new entries.
func (p *Portfolio) AvailableCash() float64 { return p.availableCash }

// HeldQty returns the open quantity for the symbol.
func (p *Portfolio) HeldQty(symbol string) int {
	if pos := p.positions[symbol]; pos != nil {
		return pos.Qty
	}
	return 0
}

// Position returns the ledger for the symbol, or nil if it was never configured.
// The returned value is owned by the portfolio; callers must not mutate it.
func (p *Portfolio) Position(symbol string) *Position { return p.positions[symbol] }

// Symbols lists every configured symbol.
func (p *Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		out = append(out, sym)
	}
	return out
}

// ApplyFill books a trade into its position and moves cash. Commission accrues
// on both entry and exit fills. An entry sets quantity and cost basis and
// debits cash; an exit realizes PnL against the cost basis, flattens the
// position, and credits cash.
func (p *Portfolio) ApplyFill(trade market.Trade, desc string) {
	pos := p.positions[trade.Symbol]
	if pos == nil {
		return
	}
	pos.Commissions += float64(trade.Qty) * p.commissionRate

	if trade.IsEntry {
		pos.Qty = trade.Qty
		pos.CostBasis = trade.Notional()
		p.availableCash -= trade.Notional()
		pos.Buys = append(pos.Buys, Mark{Ts: trade.Ts, Desc: desc})
	} else {
		pos.RealizedPl += trade.Notional() - pos.CostBasis
		pos.Qty = 0
		p.availableCash += trade.Notional()
		pos.Sells = append(pos.Sells, Mark{Ts: trade.Ts, Desc: desc})
	}
	// the fill itself is the freshest mark: at the fill price an entry carries
	// no unrealized pnl yet and a flat position carries none at all
	pos.MtmPl = 0
}

// MarkToMarket refreshes the open position's unrealized PnL from the latest price.
func (p *Portfolio) MarkToMarket(symbol string, point market.Point) {
	pos := p.positions[symbol]
	if pos == nil {
		return
	}
	if pos.Qty > 0 {
		pos.MtmPl = float64(pos.Qty)*point.Price - pos.CostBasis
	} else {
		pos.MtmPl = 0
	}
}

// ObservePoint stores an in-session point for the symbol's chart history.
func (p *Portfolio) ObservePoint(symbol string, point market.Point) {
	if pos := p.positions[symbol]; pos != nil {
		pos.Points = append(pos.Points, point)
	}
}

// Report consolidates realized plus mark-to-market PnL and commissions across
// symbols. It is pure: calling it twice yields the same answer.
func (p *Portfolio) Report() Report {
	var pl, commissions float64
	for _, pos := range p.positions {
		pl += pos.RealizedPl + pos.MtmPl
		commissions += pos.Commissions
	}
	net := pl - commissions
	return Report{
		StartingEquity:   int(p.startingCash),
		EndingEquity:     int(p.startingCash + net),
		Net:              int(net),
		TotalPl:          int(pl),
		TotalCommissions: int(-commissions),
	}
}
