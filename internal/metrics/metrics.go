// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline outcomes used as label values.
const (
	OutcomeAcknowledged = "acknowledged"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeReleased     = "released"
)

var (
	initOnce sync.Once

	eventsProcessedCounter  *prometheus.CounterVec
	deadLettersCounter      *prometheus.CounterVec
	sinkRetriesCounter      *prometheus.CounterVec
	sinkWriteDurationMetric *prometheus.HistogramVec
	receiveBatchSizeMetric  prometheus.Histogram
	eventsInFlightGauge     prometheus.Gauge
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		eventsProcessedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_events_total",
				Help: "Total number of events reaching a terminal pipeline outcome.",
			},
			[]string{"outcome"},
		)

		deadLettersCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_dead_letters_total",
				Help: "Total number of dead-lettered events by pipeline stage.",
			},
			[]string{"stage"},
		)

		sinkRetriesCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sink_retries_total",
				Help: "Total number of retried sink writes by sink.",
			},
			[]string{"sink"},
		)

		sinkWriteDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sink_write_duration_seconds",
				Help:    "Duration of individual sink write calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sink"},
		)

		receiveBatchSizeMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "source_receive_batch_size",
				Help:    "Number of messages returned per queue receive.",
				Buckets: []float64{0, 1, 2, 5, 10},
			},
		)

		eventsInFlightGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_events_in_flight",
				Help: "Events currently owned by a worker lane.",
			},
		)

		prometheus.MustRegister(
			eventsProcessedCounter,
			deadLettersCounter,
			sinkRetriesCounter,
			sinkWriteDurationMetric,
			receiveBatchSizeMetric,
			eventsInFlightGauge,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, outcome := range []string{
			OutcomeAcknowledged,
			OutcomeDeadLettered,
			OutcomeReleased,
		} {
			eventsProcessedCounter.WithLabelValues(outcome)
		}
	})
}

func IncEventOutcome(outcome string) {
	Init()
	eventsProcessedCounter.WithLabelValues(outcome).Inc()
}

func IncDeadLetter(stage string) {
	Init()
	deadLettersCounter.WithLabelValues(stage).Inc()
}

func IncSinkRetry(sink string) {
	Init()
	sinkRetriesCounter.WithLabelValues(sink).Inc()
}

func ObserveSinkWriteDuration(sink string, d time.Duration) {
	Init()
	sinkWriteDurationMetric.WithLabelValues(sink).Observe(d.Seconds())
}

func ObserveReceiveBatchSize(n int) {
	Init()
	receiveBatchSizeMetric.Observe(float64(n))
}

func AddEventsInFlight(delta int) {
	Init()
	eventsInFlightGauge.Add(float64(delta))
}
