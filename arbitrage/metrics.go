package arbitrage

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeProfit      = "profit"
	outcomeNoArbitrage = "no_arbitrage"
	outcomeError       = "error"
)

// Metrics holds the collectors shared by every cycle registered on the same
// prometheus.Registerer.
type Metrics struct {
	CalculationDuration  *prometheus.HistogramVec
	CalculationsTotal    *prometheus.CounterVec
	ProbeFailuresTotal   *prometheus.CounterVec
	OptimizerEvaluations prometheus.Histogram
}

// NewMetrics creates the cycle collectors and registers them on reg. A
// collector that is already registered is reused, so any number of cycles
// can share one registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CalculationDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbcycle_calculation_duration_seconds",
				Help:    "Duration of one cycle calculation.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"cycle"},
		)),
		CalculationsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbcycle_calculations_total",
				Help: "Cycle calculations by outcome.",
			},
			[]string{"cycle", "outcome"},
		)),
		ProbeFailuresTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbcycle_probe_failures_total",
				Help: "Optimizer probes that failed to price the cycle.",
			},
			[]string{"cycle"},
		)),
		OptimizerEvaluations: register(reg, prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbcycle_optimizer_evaluations",
				Help:    "Objective evaluations per optimization.",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
		)),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeProfit
	case errors.Is(err, ErrNoArbitrage):
		return outcomeNoArbitrage
	default:
		return outcomeError
	}
}
