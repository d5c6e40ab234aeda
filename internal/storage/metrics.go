package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbor",
		Subsystem: "page_cache",
		Name:      "hits_total",
		Help:      "Page loads served from the page cache.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbor",
		Subsystem: "page_cache",
		Name:      "misses_total",
		Help:      "Page loads that read the backend.",
	})

	pagesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbor",
		Subsystem: "pagestore",
		Name:      "pages_written_total",
		Help:      "Pages appended to the backend, by page kind.",
	}, []string{"kind"})

	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbor",
		Subsystem: "pagestore",
		Name:      "bytes_written_total",
		Help:      "Record bytes appended to the backend after compression.",
	})
)
