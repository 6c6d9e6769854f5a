// Package metrics registers the counters the loop and its collaborators increment.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PointsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "points_total", Help: "Price points pulled from feeds"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals produced by rule evaluation"},
		[]string{"symbol", "side"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders filled through execution"},
		[]string{"symbol", "side"},
	)
	EntriesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "entries_rejected_total", Help: "Entry signals dropped for insufficient cash"},
		[]string{"symbol"},
	)
	StrategiesDeactivated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "strategies_deactivated_total", Help: "Strategies removed from the loop"},
		[]string{"symbol", "reason"},
	)
)

func init() {
	prometheus.MustRegister(PointsTotal, SignalsTotal, OrdersTotal, EntriesRejectedTotal, StrategiesDeactivated)
}

// Serve exposes /metrics on addr; the listener runs until the server is closed.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
