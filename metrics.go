package sserelay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors for a Server.
type metrics struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	failures       *prometheus.CounterVec
	messages       prometheus.Counter
	bytes          prometheus.Counter
	skipped        *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sserelay",
			Name:      "sessions_active",
			Help:      "Number of relay sessions currently open.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "sessions_total",
			Help:      "Total number of relay sessions started.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "session_failures_total",
			Help:      "Relay sessions torn down, by reason.",
		}, []string{"reason"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "messages_relayed_total",
			Help:      "Pub/sub messages written to clients.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "bytes_relayed_total",
			Help:      "Bytes of formatted events written to clients.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "events_skipped_total",
			Help:      "Pub/sub events consumed without being relayed, by kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.sessionsActive, m.sessionsTotal, m.failures, m.messages, m.bytes, m.skipped,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
