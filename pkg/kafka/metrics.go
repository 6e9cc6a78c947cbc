package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsSubsystem = "kafka"

var (
	consumerLabels = []string{"topic", "consumer_group"}
	producerLabels = []string{"topic"}
)

func consumerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      name,
		Help:      help,
	}, consumerLabels)
}

func producerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      name,
		Help:      help,
	}, producerLabels)
}

var (
	consumedTotal   = consumerCounter("consumer_messages_processed_total", "Messages handled successfully")
	failedTotal     = consumerCounter("consumer_messages_failed_total", "Messages that exhausted handler retries")
	duplicateTotal  = consumerCounter("consumer_messages_duplicate_total", "Messages skipped by the idempotency guard")
	deadLetterTotal = consumerCounter("consumer_dlq_published_total", "Messages forwarded to a dead-letter topic")

	handleSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: metricsSubsystem,
		Name:      "consumer_processing_duration_seconds",
		Help:      "Handler execution time including retries",
		Buckets:   prometheus.DefBuckets,
	}, consumerLabels)

	publishedTotal    = producerCounter("producer_messages_published_total", "Messages published")
	publishErrorTotal = producerCounter("producer_publish_errors_total", "Publish failures")
)
