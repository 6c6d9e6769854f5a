// Package execution turns funded signals into trades against a fill backend.
package execution

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/repque/intraday/internal/market"
	"github.com/repque/intraday/internal/metrics"
)

// Lot sizing: computed quantities round down to the nearest multiple of ten.
const lotSize = 10

// Backend submits a fill request and reports the fill price. A zero price
// means the venue did not quote one and the signal's reference price applies.
type Backend interface {
	Submit(symbol string, qty int, isEntry bool) (float64, error)
}

// CashView exposes the portfolio balances sizing needs.
type CashView interface {
	StartingCash() float64
	AvailableCash() float64
	HeldQty(symbol string) int
}

// LogBackend records requested fills without touching a venue; replays and
// paper runs use it so every fill resolves at the reference price.
type LogBackend struct {
	log zerolog.Logger
}

// NewLogBackend wraps a logger for simulated order submission.
func NewLogBackend(log zerolog.Logger) *LogBackend { return &LogBackend{log: log} }

// Submit logs the request and leaves the fill price to the reference fallback.
func (b *LogBackend) Submit(symbol string, qty int, isEntry bool) (float64, error) {
	b.log.Info().Str("sym", symbol).Int("qty", qty).Bool("entry", isEntry).Msg("submit order")
	return 0, nil
}

// Executor sizes signals against the account and resolves fills.
type Executor struct {
	backend Backend
	cash    CashView
	log     zerolog.Logger
}

// NewExecutor binds a fill backend to the account view it sizes against.
func NewExecutor(backend Backend, cash CashView, log zerolog.Logger) *Executor {
	return &Executor{backend: backend, cash: cash, log: log}
}

// Execute resolves a signal into a trade. A nil, nil return means the signal
// was dropped: an entry the account cannot fund (soft rejection, warn only)
// or a quantity that sized to zero.
func (e *Executor) Execute(sig *market.Signal) (*market.Trade, error) {
	var qty int
	if sig.IsEntry {
		required := e.cash.StartingCash() * sig.Allocation
		if required > e.cash.AvailableCash() {
			metrics.EntriesRejectedTotal.WithLabelValues(sig.Symbol).Inc()
			e.log.Warn().
				Str("sym", sig.Symbol).
				Float64("required", required).
				Float64("available", e.cash.AvailableCash()).
				Msg("entry rejected: insufficient cash")
			return nil, nil
		}
		qty = int(required/sig.Point.Price) / lotSize * lotSize
	} else {
		qty = e.cash.HeldQty(sig.Symbol)
	}
	if qty == 0 {
		return nil, nil
	}

	price, err := e.backend.Submit(sig.Symbol, qty, sig.IsEntry)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", sig.Symbol, err)
	}
	if price <= 0 {
		price = sig.Point.Price
	}

	trade := &market.Trade{
		Symbol:  sig.Symbol,
		Qty:     qty,
		Price:   price,
		IsEntry: sig.IsEntry,
		Ts:      sig.Point.Ts,
	}
	metrics.OrdersTotal.WithLabelValues(trade.Symbol, string(trade.Side())).Inc()
	return trade, nil
}
