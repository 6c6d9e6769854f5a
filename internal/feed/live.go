package feed

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/repque/intraday/internal/market"
	"github.com/repque/intraday/internal/metrics"
)

// Poller fetches the latest quote for one symbol over HTTP on every call.
// Transient failures are retried inside the client (5 attempts with short
// backoff) before an error surfaces to the driver as fatal.
type Poller struct {
	client *resty.Client
	symbol string
	log    zerolog.Logger
}

type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Ts     int64   `json:"ts"` // epoch millis; 0 means "stamp on receipt"
}

// NewPoller builds a quote poller against baseURL's /quote endpoint.
func NewPoller(baseURL, symbol string, log zerolog.Logger) *Poller {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(4).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Poller{client: client, symbol: symbol, log: log}
}

// Next polls the quote source once (plus retries) and returns the point.
func (p *Poller) Next() (market.Point, error) {
	var quote quoteResponse
	resp, err := p.client.R().
		SetQueryParam("symbol", p.symbol).
		SetResult(&quote).
		Get("/quote")
	if err != nil {
		return market.Point{}, fmt.Errorf("poll quote for %s: %w", p.symbol, err)
	}
	if resp.IsError() {
		return market.Point{}, fmt.Errorf("poll quote for %s: status %s", p.symbol, resp.Status())
	}
	if quote.Price <= 0 {
		return market.Point{}, fmt.Errorf("poll quote for %s: bad price %.4f", p.symbol, quote.Price)
	}

	ts := time.Now()
	if quote.Ts > 0 {
		ts = time.UnixMilli(quote.Ts)
	}
	metrics.PointsTotal.WithLabelValues(p.symbol).Inc()
	p.log.Debug().Str("sym", p.symbol).Float64("px", quote.Price).Msg("quote")
	return market.Point{Ts: ts, Price: quote.Price}, nil
}
