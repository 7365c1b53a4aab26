package bbv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the engine's self-observability counters. They are only
// allocated when the caller provides a registerer.
type metrics struct {
	blocksDiscovered   prometheus.Counter
	retranslations     prometheus.Counter
	intervalsEmitted   prometheus.Counter
	intervalsDiscarded prometheus.Counter
	bytesWritten       prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		blocksDiscovered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "bbv",
			Name:      "blocks_discovered_total",
			Help:      "Distinct translation blocks registered.",
		}),
		retranslations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "bbv",
			Name:      "block_retranslations_total",
			Help:      "Re-registrations of already known blocks.",
		}),
		intervalsEmitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "bbv",
			Name:      "intervals_emitted_total",
			Help:      "BBV records written to the output stream.",
		}),
		intervalsDiscarded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "bbv",
			Name:      "intervals_discarded_total",
			Help:      "Intervals dropped without a record (first checkpoint slice).",
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "bbv",
			Name:      "bytes_written_total",
			Help:      "Uncompressed record bytes handed to the sink.",
		}),
	}
}
