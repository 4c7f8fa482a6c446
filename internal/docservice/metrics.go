package docservice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// reconstructionsTotal counts document reads by reconstruction outcome.
	reconstructionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perthro_reconstructions_total",
		Help: "Document reconstructions by outcome",
	}, []string{"outcome"})

	patchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perthro_patch_failures_total",
		Help: "Reconstructions aborted by a failing version patch",
	})

	reconstructionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "perthro_reconstruction_duration_seconds",
		Help:    "Time spent replaying version patches",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	})

	// referenceComparisons tracks the cross-product size of change resolution.
	referenceComparisons = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "perthro_reference_comparisons",
		Help:    "Reference/change comparisons per API change resolution",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	// sharedReadsTotal counts reads answered by an in-flight identical read.
	sharedReadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perthro_shared_reads_total",
		Help: "Document reads collapsed onto an identical in-flight read",
	})
)
