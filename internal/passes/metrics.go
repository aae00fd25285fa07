package passes

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passTransforms = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_pass_transforms_total",
		Help: "Total number of nodes rewritten by a pass",
	}, []string{"pass", "variant"})

	passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hls_pass_duration_seconds",
		Help:    "Time spent in a single pass transform",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"pass"})
)
