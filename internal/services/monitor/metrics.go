package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
)

const namespace = "flood_monitor"

// Metrics are the service counters exported on /metrics. A nil *Metrics is a no-op.
type Metrics struct {
	Readings      *prometheus.CounterVec
	DecodeErrors  prometheus.Counter
	Duplicates    prometheus.Counter
	Notifications *prometheus.CounterVec
	Level         prometheus.Gauge
	Values        *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Readings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Readings classified, by resulting level.",
		}, []string{"level"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Payloads rejected at decode time.",
		}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_payloads_total",
			Help:      "Payloads dropped as redeliveries.",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert notifications sent, by result.",
		}, []string{"result"}),
		Level: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_level",
			Help:      "Current level: 0 normal, 1 caution, 2 warning, 3 critical.",
		}),
		Values: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_value",
			Help:      "Last value received per sensor field.",
		}, []string{"field"}),
	}
}

func (m *Metrics) observe(r *messages.SensorReading, c alert.Classification) {
	if m == nil {
		return
	}
	m.Readings.WithLabelValues(string(c.Level)).Inc()
	m.Level.Set(float64(c.Level.Rank()))
	if r == nil {
		return
	}
	for _, f := range alert.Fields {
		m.Values.WithLabelValues(string(f)).Set(alert.Value(*r, f))
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.DecodeErrors.Inc()
	}
}

func (m *Metrics) duplicate() {
	if m != nil {
		m.Duplicates.Inc()
	}
}

func (m *Metrics) notified(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Notifications.WithLabelValues("error").Inc()
		return
	}
	m.Notifications.WithLabelValues("ok").Inc()
}
