package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/repque/intraday/internal/market"
	"github.com/repque/intraday/internal/metrics"
)

// streamTrade is the wire shape of one trade message on the quote stream.
type streamTrade struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"` // epoch millis
}

// Stream consumes a trade websocket in the background and hands points out one
// at a time. Disconnects reconnect with growing backoff; context cancellation
// surfaces as io.EOF so the driver winds down like an exhausted replay.
type Stream struct {
	symbol string
	points chan market.Point
	cancel context.CancelFunc
	log    zerolog.Logger
}

// DialStream starts consuming url for the symbol's trades.
func DialStream(ctx context.Context, url, symbol string, log zerolog.Logger) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		symbol: symbol,
		points: make(chan market.Point, 256),
		cancel: cancel,
		log:    log,
	}
	go s.consume(ctx, url)
	return s
}

// Next blocks until a point arrives or the stream shuts down.
func (s *Stream) Next() (market.Point, error) {
	p, ok := <-s.points
	if !ok {
		return market.Point{}, io.EOF
	}
	metrics.PointsTotal.WithLabelValues(s.symbol).Inc()
	return p, nil
}

// Close stops the consumer; pending Next calls return io.EOF.
func (s *Stream) Close() { s.cancel() }

func (s *Stream) consume(ctx context.Context, url string) {
	defer close(s.points)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.readConn(ctx, url); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Str("sym", s.symbol).Msg("stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		backoff = time.Second
	}
}

func (s *Stream) readConn(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		var trade streamTrade
		if err := json.Unmarshal(payload, &trade); err != nil {
			s.log.Warn().Err(err).Msg("skipping malformed stream message")
			continue
		}
		if trade.Symbol != "" && trade.Symbol != s.symbol {
			continue
		}
		price, err := strconv.ParseFloat(trade.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		point := market.Point{Ts: time.UnixMilli(trade.TradeTime), Price: price}
		select {
		case s.points <- point:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
