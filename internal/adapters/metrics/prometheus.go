package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bnema/imsim/internal/domain"
	"github.com/bnema/imsim/internal/wire"
)

// Prometheus implements ports.Metrics and ports.Observer.
type Prometheus struct {
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	decodeErrors   *prometheus.CounterVec
	sessions       *prometheus.GaugeVec
}

func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	m := &Prometheus{
		framesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imsim_frames_sent_total",
				Help: "Total number of frames written to gateways",
			},
			[]string{"command"},
		),
		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imsim_frames_received_total",
				Help: "Total number of frames read from gateways",
			},
			[]string{"command"},
		),
		decodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imsim_decode_errors_total",
				Help: "Total number of frames dropped as malformed",
			},
			[]string{"command"},
		),
		sessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "imsim_sessions",
				Help: "Number of simulated sessions per status",
			},
			[]string{"status"},
		),
	}

	for _, c := range []prometheus.Collector{m.framesSent, m.framesReceived, m.decodeErrors, m.sessions} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Prometheus) FrameSent(cmd wire.Command) {
	m.framesSent.WithLabelValues(cmd.String()).Inc()
}

func (m *Prometheus) FrameReceived(cmd wire.Command) {
	m.framesReceived.WithLabelValues(cmd.String()).Inc()
}

func (m *Prometheus) DecodeFailed(cmd wire.Command) {
	m.decodeErrors.WithLabelValues(cmd.String()).Inc()
}

func (m *Prometheus) SessionsByStatus(counts map[domain.Status]int) {
	for status, n := range counts {
		m.sessions.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (m *Prometheus) Notify(sessions []domain.SessionStatus) {
	m.SessionsByStatus(domain.CountByStatus(sessions))
}

// Handler serves the metrics gathered by g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
