package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hashink_ledger_ops_total",
		Help: "Ledger operations by kind and outcome.",
	}, []string{"op", "outcome"})

	heldBalance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hashink_held_balance",
		Help: "Total escrow held against pending requests.",
	})

	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hashink_events_total",
		Help: "Engine events by type.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(opsTotal, heldBalance, eventsTotal)
}

func recordOutcome(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opsTotal.WithLabelValues(op, outcome).Inc()
}

func setHeldBalance(v uint64) {
	heldBalance.Set(float64(v))
}

func recordEvent(typ string) {
	eventsTotal.WithLabelValues(typ).Inc()
}
