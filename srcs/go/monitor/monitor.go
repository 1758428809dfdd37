package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lsds/moebench/srcs/go/plan"
)

const namespace = "moebench"

type netMonitor interface {
	Egress(n int64, a plan.PeerID)
	Ingress(n int64, a plan.PeerID)
}

type trainMonitor interface {
	Step(tokens int, d time.Duration, loss float64)
}

// Monitor collects transport and training metrics of one worker.
type Monitor interface {
	netMonitor
	trainMonitor

	Handler() http.Handler
}

type metrics struct {
	reg     *prometheus.Registry
	egress  *prometheus.CounterVec
	ingress *prometheus.CounterVec
	tokens  prometheus.Counter
	steps   prometheus.Counter
	stepDur prometheus.Histogram
	loss    prometheus.Gauge
}

// New creates a Monitor with its own registry.
func New() Monitor {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		egress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collective",
			Name:      "egress_bytes_total",
			Help:      "Bytes sent to each peer.",
		}, []string{"peer"}),
		ingress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collective",
			Name:      "ingress_bytes_total",
			Help:      "Bytes received from each peer.",
		}, []string{"peer"}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "tokens_total",
			Help:      "Tokens consumed by counted training steps.",
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "steps_total",
			Help:      "Counted training steps.",
		}),
		stepDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "step_seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		loss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "loss",
			Help:      "Loss of the last step.",
		}),
	}
	m.reg.MustRegister(m.egress, m.ingress, m.tokens, m.steps, m.stepDur, m.loss)
	return m
}

func (m *metrics) Egress(n int64, a plan.PeerID) {
	m.egress.WithLabelValues(a.String()).Add(float64(n))
}

func (m *metrics) Ingress(n int64, a plan.PeerID) {
	m.ingress.WithLabelValues(a.String()).Add(float64(n))
}

func (m *metrics) Step(tokens int, d time.Duration, loss float64) {
	m.tokens.Add(float64(tokens))
	m.steps.Inc()
	m.stepDur.Observe(d.Seconds())
	m.loss.Set(loss)
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

var defaultMonitor = New()

// GetMonitor returns the process wide monitor.
func GetMonitor() Monitor {
	return defaultMonitor
}
