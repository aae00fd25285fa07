package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hls_result_cache_hits_total",
		Help: "Compile requests served from the result cache",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hls_result_cache_misses_total",
		Help: "Compile requests not found in the result cache",
	})
)
