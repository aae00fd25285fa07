package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodesRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_nodes_rendered_total",
		Help: "Nodes rendered into a config block and kernel call",
	}, []string{"backend", "variant"})

	renderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_render_failures_total",
		Help: "Compilations aborted, by error kind",
	}, []string{"backend", "kind"})

	compileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hls_compile_duration_seconds",
		Help:    "Time spent compiling one graph",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})
)
