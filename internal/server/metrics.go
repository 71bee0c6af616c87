package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments served at /metrics. Each
// instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	SynthesisSeconds prometheus.Histogram
	AudioSeconds     prometheus.Counter
	InFlight         prometheus.Gauge
	SpeakRequests    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		SynthesisSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Wall time of /v1/tts syntheses.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		AudioSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesized_audio_seconds_total",
			Help:      "Seconds of audio produced.",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synthesis_in_flight",
			Help:      "Syntheses currently running.",
		}),
		SpeakRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speak_requests_total",
			Help:      "Speak requests by result.",
		}, []string{"result"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction.",
		}, []string{"direction"}),
	}
}

func (m *Metrics) ObserveSynthesis(wall time.Duration, audio time.Duration) {
	m.SynthesisSeconds.Observe(wall.Seconds())
	m.AudioSeconds.Add(audio.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
