// Package metrics exposes sync telemetry as Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adamavenir/chatsync/internal/types"
)

var connStates = []types.ConnState{
	types.ConnDisconnected,
	types.ConnConnecting,
	types.ConnConnected,
	types.ConnDegradedPolling,
}

// Recorder implements the coordinator's Observer on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	duplicates   prometheus.Counter
	state        *prometheus.GaugeVec
	reconnects   prometheus.Counter
	degraded     prometheus.Counter
	sendFailures prometheus.Counter

	mu   sync.Mutex
	last types.ConnState
}

// New creates a recorder with Go runtime collectors registered alongside.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_events_total",
			Help: "Transport and fetch events by source, kind and whether they changed the store.",
		}, []string{"source", "kind", "applied"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_duplicate_inserts_total",
			Help: "Inserts dropped because the message id was already known.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatsync_connection_state",
			Help: "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_reconnect_attempts_total",
			Help: "Scheduled push reconnect attempts.",
		}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_degraded_transitions_total",
			Help: "Transitions into degraded polling.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_send_failures_total",
			Help: "Optimistic sends marked failed.",
		}),
	}
	r.registry.MustRegister(
		r.events,
		r.duplicates,
		r.state,
		r.reconnects,
		r.degraded,
		r.sendFailures,
		collectors.NewGoCollector(),
	)
	for _, state := range connStates {
		r.state.WithLabelValues(string(state)).Set(0)
	}
	r.state.WithLabelValues(string(types.ConnDisconnected)).Set(1)
	r.last = types.ConnDisconnected
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveEvent(source types.Source, kind string, applied bool) {
	r.events.WithLabelValues(string(source), kind, strconv.FormatBool(applied)).Inc()
	if kind == "insert" && !applied {
		r.duplicates.Inc()
	}
}

func (r *Recorder) ObserveState(state types.ConnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state == r.last {
		return
	}
	r.state.WithLabelValues(string(r.last)).Set(0)
	r.state.WithLabelValues(string(state)).Set(1)
	if state == types.ConnDegradedPolling {
		r.degraded.Inc()
	}
	r.last = state
}

func (r *Recorder) ObserveReconnect(int) {
	r.reconnects.Inc()
}

func (r *Recorder) ObserveSendFailure() {
	r.sendFailures.Inc()
}
