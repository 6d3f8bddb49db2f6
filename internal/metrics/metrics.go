// Package metrics exposes relay counters in the Prometheus format.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rendezvous"

// Drop reasons.
const (
	DropNotMember  = "not_member"
	DropSendFailed = "send_failed"
)

type Metrics struct {
	reg *prometheus.Registry

	relayed *prometheus.CounterVec
	dropped *prometheus.CounterVec
	errors  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		relayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_relayed_total",
			Help:      "Negotiation envelopes delivered to a peer, by type.",
		}, []string{"type"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_dropped_total",
			Help:      "Envelopes dropped before reaching a peer, by reason.",
		}, []string{"reason"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Error replies sent to peers, by code.",
		}, []string{"code"}),
	}
}

// TrackRooms exports the live room count read from fn at scrape time.
func (m *Metrics) TrackRooms(fn func() int) {
	m.gauge("rooms", "Live rooms.", fn)
}

// TrackConnections exports the live connection count read from fn at scrape time.
func (m *Metrics) TrackConnections(fn func() int) {
	m.gauge("connections", "Live signaling connections.", fn)
}

func (m *Metrics) gauge(name, help string, fn func() int) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
}

func (m *Metrics) Relayed(msgType string) {
	if m == nil {
		return
	}
	m.relayed.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Error(code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(code).Inc()
}

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
