package metrics

import (
	"time"

	"push_notification_server/internal/domain/notification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_deliveries_total",
		Help: "Delivery attempts by notification kind and outcome.",
	}, []string{"kind", "outcome"})

	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "push_pass_duration_seconds",
		Help:    "Duration of scheduler passes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"pass"})

	PassFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_pass_failures_total",
		Help: "Scheduler passes aborted by a store error.",
	}, []string{"pass"})

	LastPassTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "push_pass_last_run_timestamp_seconds",
		Help: "Unix time of the last finished pass.",
	}, []string{"pass"})
)

// PrometheusRecorder implements app.Recorder on the package collectors.
type PrometheusRecorder struct{}

func (PrometheusRecorder) RecordDelivery(kind notification.Kind, outcome notification.Outcome) {
	DeliveriesTotal.WithLabelValues(string(kind), outcome.String()).Inc()
}

func (PrometheusRecorder) RecordPass(pass string, took time.Duration, err error) {
	PassDuration.WithLabelValues(pass).Observe(took.Seconds())
	LastPassTimestamp.WithLabelValues(pass).SetToCurrentTime()
	if err != nil {
		PassFailuresTotal.WithLabelValues(pass).Inc()
	}
}
