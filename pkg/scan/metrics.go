package scan

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/elfdiff/pkg/util"
)

const (
	resultClassified = "classified"
	resultNotBinary  = "not_binary"
	resultFiltered   = "filtered"
	resultFailed     = "failed"

	cacheHit  = "hit"
	cacheMiss = "miss"
)

type metrics struct {
	files         *prometheus.CounterVec
	sections      *prometheus.CounterVec
	parseDuration prometheus.Histogram
	cacheOps      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elfdiff_files_total",
			Help: "Total number of files visited by result",
		}, []string{"result"}),
		sections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elfdiff_sections_total",
			Help: "Total number of sections classified by scheme",
		}, []string{"scheme"}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "elfdiff_parse_duration_seconds",
			Help:    "Time spent reading and parsing ELF headers",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elfdiff_cache_operations_total",
			Help: "Total number of parsed binary cache lookups by operation",
		}, []string{"operation"}),
	}
	if reg != nil {
		m.files = util.RegisterOrGet(reg, m.files)
		m.sections = util.RegisterOrGet(reg, m.sections)
		m.parseDuration = util.RegisterOrGet(reg, m.parseDuration)
		m.cacheOps = util.RegisterOrGet(reg, m.cacheOps)
	}
	return m
}
