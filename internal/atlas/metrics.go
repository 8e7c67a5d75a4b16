package atlas

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// levelChangeTotal counts level and zoom changes by result
	levelChangeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mountainatlas_level_change_total",
		Help: "Total level and zoom changes by result",
	}, []string{"result"})

	// selectionDuration tracks select + cluster + commit latency
	selectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mountainatlas_selection_duration_seconds",
		Help:    "Time from a level change request to its committed layers",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	})

	// selectionPeaks tracks the number of peaks per selection
	selectionPeaks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mountainatlas_selection_peaks",
		Help:    "Number of peaks in a committed selection",
		Buckets: []float64{0, 10, 100, 1000, 10000, 100000},
	})

	// attachedLayers is the number of layers currently attached to the surface
	attachedLayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mountainatlas_attached_layers",
		Help: "Number of render layers currently attached",
	})

	// loadTotal counts dataset loads by result
	loadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mountainatlas_load_total",
		Help: "Total dataset loads and reloads by result",
	}, []string{"result"})

	// dataQualityWarnings counts excluded or degraded features by kind
	dataQualityWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mountainatlas_data_quality_warnings_total",
		Help: "Features excluded or degraded while loading, by kind",
	}, []string{"kind"})
)
