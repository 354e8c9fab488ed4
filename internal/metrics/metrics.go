package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatengine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	CompletionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatengine",
			Subsystem: "completion",
			Name:      "calls_total",
			Help:      "Completion attempts by outcome",
		},
		[]string{"outcome"},
	)

	CompletionTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatengine",
			Subsystem: "completion",
			Name:      "tokens_total",
			Help:      "Tokens reported by the completion service",
		},
		[]string{"kind"},
	)

	CompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatengine",
			Subsystem: "completion",
			Name:      "duration_seconds",
			Help:      "Completion call duration including retries",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	RoutesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatengine",
			Subsystem: "routing",
			Name:      "decisions_total",
			Help:      "Routing outcomes by terminal state",
		},
		[]string{"state"},
	)

	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatengine",
			Subsystem: "query",
			Name:      "runs_total",
			Help:      "Data queries by outcome",
		},
		[]string{"outcome"},
	)

	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatengine",
			Subsystem: "webhook",
			Name:      "messages_sent_total",
			Help:      "Outbound provider messages by channel and result",
		},
		[]string{"channel", "result"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordRequest(route, status string) {
	RequestsTotal.WithLabelValues(route, status).Inc()
}

func RecordCompletion(outcome string, promptTokens, completionTokens int) {
	CompletionCallsTotal.WithLabelValues(outcome).Inc()
	if promptTokens > 0 {
		CompletionTokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		CompletionTokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
	}
}

func RecordRoute(state string) {
	RoutesTotal.WithLabelValues(state).Inc()
}

func RecordQuery(outcome string) {
	QueriesTotal.WithLabelValues(outcome).Inc()
}

func RecordSend(channel string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	MessagesSentTotal.WithLabelValues(channel, result).Inc()
}
