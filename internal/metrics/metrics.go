// Package metrics exposes relay counters over HTTP for Prometheus.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lmrelay"

// Metrics groups the relay's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived prometheus.Counter
	Commands         *prometheus.CounterVec
	RepliesSent      prometheus.Counter
	Inference        *prometheus.CounterVec
	InferenceLatency prometheus.Histogram
	HandlerFailures  prometheus.Counter
	PollFailures     prometheus.Counter
	TrackedUsers     prometheus.GaugeFunc
}

// New registers all collectors on a fresh registry. trackedUsers is sampled
// at scrape time.
func New(trackedUsers func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Text messages accepted for relaying.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Bot commands handled, by command.",
		}, []string{"command"}),
		RepliesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Replies delivered to users.",
		}),
		Inference: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Inference calls, by outcome class.",
		}, []string{"class"}),
		InferenceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Latency of inference calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}),
		HandlerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Updates whose handling failed and got the generic error reply.",
		}),
		PollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Failed getUpdates calls.",
		}),
		TrackedUsers: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_users",
			Help:      "Users with a transcript in memory. Never decreases.",
		}, func() float64 { return float64(trackedUsers()) }),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesReceived,
		m.Commands,
		m.RepliesSent,
		m.Inference,
		m.InferenceLatency,
		m.HandlerFailures,
		m.PollFailures,
		m.TrackedUsers,
	)
	return m
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}
