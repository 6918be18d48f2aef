package booking

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Invocations *prometheus.CounterVec
	Duration    prometheus.Histogram
}

// NewMetrics registers the booking collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_tool_invocations_total",
			Help: "Booking tool invocations by outcome",
		}, []string{"outcome"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_tool_duration_seconds",
			Help:    "Duration of booking tool invocations",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Invocations.WithLabelValues(outcome).Inc()
	m.Duration.Observe(elapsed.Seconds())
}
