package registration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksSeenMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "regbot",
		Subsystem: "registration",
		Name:      "blocks_seen_total",
		Help:      "Number of new blocks observed by the poll loop",
	})

	submissionsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regbot",
		Subsystem: "registration",
		Name:      "submissions_total",
		Help:      "Number of submission attempts by outcome",
	}, []string{"outcome"})

	finalizationsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regbot",
		Subsystem: "registration",
		Name:      "finalizations_total",
		Help:      "Number of finalization watches resolved by outcome",
	}, []string{"outcome"})

	tooExpensiveMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "regbot",
		Subsystem: "registration",
		Name:      "skipped_too_expensive_total",
		Help:      "Number of matching blocks skipped because the burn cost exceeded the limit",
	})

	burnCostMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "regbot",
		Subsystem: "registration",
		Name:      "burn_cost_rao",
		Help:      "Last observed recycle (burn) cost of the subnet in RAO",
	})

	submitLatencyMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "regbot",
		Subsystem: "registration",
		Name:      "sign_and_submit_latency_seconds",
		Help:      "Latency of signing and submitting an extrinsic",
		Buckets:   prometheus.ExponentialBuckets(0.001, 1.5, 20),
	})

	finalizationLatencyMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "regbot",
		Subsystem: "registration",
		Name:      "finalization_latency_seconds",
		Help:      "Time from submission to finalization",
		Buckets:   prometheus.ExponentialBuckets(0.25, 1.5, 16),
	})
)
