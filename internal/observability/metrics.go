package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registeredGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "account_service",
		Subsystem: "persistence",
		Name:      "last_account_registered_timestamp_seconds",
		Help:      "Unix timestamp of the most recent account persisted to Postgres.",
	})
	historyRowsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "account_service",
		Subsystem: "persistence",
		Name:      "history_rows_written_total",
		Help:      "Number of metrics-history audit rows appended.",
	})
	historyWrittenGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "account_service",
		Subsystem: "persistence",
		Name:      "last_history_written_timestamp_seconds",
		Help:      "Unix timestamp of the most recent audit row appended.",
	})
)

func init() {
	prometheus.MustRegister(registeredGauge, historyRowsCounter, historyWrittenGauge)
}

// RecordAccountRegistered updates the registration watermark gauge.
func RecordAccountRegistered(ts time.Time) {
	if ts.IsZero() {
		return
	}
	registeredGauge.Set(float64(ts.Unix()))
}

// RecordHistoryWritten counts appended audit rows and moves the watermark.
func RecordHistoryWritten(rows int, ts time.Time) {
	if rows <= 0 {
		return
	}
	historyRowsCounter.Add(float64(rows))
	if !ts.IsZero() {
		historyWrittenGauge.Set(float64(ts.Unix()))
	}
}
