package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_service",
		Subsystem: "dispatcher",
		Name:      "requests_processed_total",
		Help:      "Number of request messages successfully handled and answered.",
	}, []string{"request_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_service",
		Subsystem: "dispatcher",
		Name:      "handler_errors_total",
		Help:      "Number of handler errors grouped by request type.",
	}, []string{"request_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_service",
		Subsystem: "dispatcher",
		Name:      "decode_errors_total",
		Help:      "Number of envelope decode failures per topic.",
	}, []string{"topic"})

	unknownTypeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_service",
		Subsystem: "dispatcher",
		Name:      "unknown_request_types_total",
		Help:      "Number of requests dropped because no handler matched the type tag.",
	}, []string{"request_type"})

	publishFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_service",
		Subsystem: "dispatcher",
		Name:      "publish_failures_total",
		Help:      "Number of handled requests whose response could not be published.",
	}, []string{"request_type"})

	restartCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "account_service",
		Subsystem: "dispatcher",
		Name:      "restarts_total",
		Help:      "Number of supervised restarts of the consumption loop.",
	})

	lastMessageGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "account_service",
		Subsystem: "dispatcher",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed request.",
	})
)

func init() {
	prometheus.MustRegister(
		processedCounter,
		handlerErrorCounter,
		decodeErrorCounter,
		unknownTypeCounter,
		publishFailureCounter,
		restartCounter,
		lastMessageGauge,
	)
}

func recordProcessed(requestType string, ts time.Time) {
	processedCounter.WithLabelValues(requestType).Inc()
	if !ts.IsZero() {
		lastMessageGauge.Set(float64(ts.Unix()))
	}
}

func recordHandlerError(requestType string) {
	handlerErrorCounter.WithLabelValues(requestType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

func recordUnknownType(requestType string) {
	unknownTypeCounter.WithLabelValues(requestType).Inc()
}

func recordPublishFailure(requestType string) {
	publishFailureCounter.WithLabelValues(requestType).Inc()
}

func recordRestart() {
	restartCounter.Inc()
}
