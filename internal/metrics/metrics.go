package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session counters. Labels are omitted on purpose: one process runs one
// session at a time, and the group name is an unbounded label value.
var (
	EventsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "events_merged_total",
		Help:      "Events accepted into the message store.",
	})
	EventsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "events_deduped_total",
		Help:      "Redelivered events dropped by the dedup invariant.",
	})
	Publishes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "publishes_total",
		Help:      "Events published to the group channel.",
	})
	ConnectFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "connect_failures_total",
		Help:      "Channel connection attempts that failed.",
	})
	HistoryEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "history_events_total",
		Help:      "Events seeded from persisted history.",
	})
	ParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "parse_failures_total",
		Help:      "Inbound frames dropped because the payload failed to parse.",
	})
)

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
