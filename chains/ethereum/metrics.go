package ethereum

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	refreshDuration prometheus.Histogram
	refreshErrors   prometheus.Counter
	resubscriptions prometheus.Counter
	poolUpdates     *prometheus.CounterVec
	blockNumber     prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		refreshDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbcycle_refresh_duration_seconds",
			Help:    "Time taken to re-read and apply every tracked pool at one block.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		})),
		refreshErrors: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbcycle_refresh_errors_total",
			Help: "Blocks skipped because a pool could not be read.",
		})),
		resubscriptions: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbcycle_head_resubscriptions_total",
			Help: "Times the new head subscription failed and was retried.",
		})),
		poolUpdates: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbcycle_pool_updates_total",
			Help: "Pool snapshots replaced after a refresh.",
		}, []string{"protocol"})),
		blockNumber: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbcycle_block_number",
			Help: "Last block the pools were refreshed at.",
		})),
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
