package publisher

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "account_service",
		Subsystem: "publisher",
		Name:      "responses_published_total",
		Help:      "Number of response envelopes published to the response channel.",
	})

	errorPublishedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "account_service",
		Subsystem: "publisher",
		Name:      "error_responses_published_total",
		Help:      "Number of error-tagged response envelopes published.",
	})
)

func init() {
	prometheus.MustRegister(publishedCounter, errorPublishedCounter)
}

func recordPublished() {
	publishedCounter.Inc()
}

func recordErrorPublished() {
	errorPublishedCounter.Inc()
}
