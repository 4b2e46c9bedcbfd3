package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"govee-bridge/internal/domain"
)

const namespace = "govee"

// Metrics records vendor request outcomes and the latest device readings.
// It satisfies both the transport observer and the state publisher
// interfaces.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	available       *prometheus.GaugeVec
	fields          *prometheus.GaugeVec
	lastUpdate      *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Govee API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Govee API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_available",
			Help:      "1 when the last refresh of the device succeeded.",
		}, []string{"device", "sku"}),
		fields: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_field",
			Help:      "Latest decoded device readings.",
		}, []string{"device", "sku", "field"}),
		lastUpdate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_last_update_timestamp_seconds",
			Help:      "Unix time of the last state change seen for the device.",
		}, []string{"device"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.available,
		m.fields,
		m.lastUpdate,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(endpoint, outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(endpoint, outcome).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) Name() string { return "metrics" }

// Publish exports the readings of state. Unknown readings are removed rather
// than exported as their sentinel values.
func (m *Metrics) Publish(_ context.Context, state domain.DeviceState) error {
	device := state.Device.Name
	sku := string(state.Device.Model)

	m.available.WithLabelValues(device, sku).Set(boolGauge(state.Available))
	if !state.UpdatedAt.IsZero() {
		m.lastUpdate.WithLabelValues(device).Set(float64(state.UpdatedAt.Unix()))
	}

	for field, value := range Fields(state) {
		if value == nil {
			m.fields.DeleteLabelValues(device, sku, field)
			continue
		}
		m.fields.WithLabelValues(device, sku, field).Set(*value)
	}
	return nil
}

// Fields flattens a state into numeric readings. A nil value marks a reading
// the device did not report.
func Fields(state domain.DeviceState) map[string]*float64 {
	out := map[string]*float64{}
	known := func(name string, v float64, ok bool) {
		if ok {
			out[name] = &v
		} else {
			out[name] = nil
		}
	}

	switch s := state.Snapshot.(type) {
	case *domain.FanSnapshot:
		known("online", boolGauge(s.Online), true)
		known("power_on", boolGauge(s.PowerOn), true)
		known("oscillating", boolGauge(s.Oscillating), true)
		known("speed_percent", s.SpeedPercent, true)
		known("work_mode", float64(s.WorkMode), s.WorkMode != domain.UnknownWorkMode)
	case *domain.PurifierSnapshot:
		known("online", boolGauge(s.Online), true)
		known("power_on", boolGauge(s.PowerOn), true)
		known("speed_percent", s.SpeedPercent, true)
		known("work_mode", float64(s.WorkMode), s.WorkMode != domain.UnknownWorkMode)
		known("filter_life_percent", s.FilterLifePercent, s.FilterLifePercent != domain.UnknownFilterLife)
		known("air_quality", float64(s.AirQuality), s.AirQuality != domain.UnknownAirQuality)
	case *domain.ThermometerSnapshot:
		known("online", boolGauge(s.Online), true)
		known("temperature_fahrenheit", s.TemperatureF, s.TemperatureF != domain.UnknownTemperature)
		known("humidity_percent", s.HumidityPercent, s.HumidityPercent != domain.UnknownHumidity)
	}

	if state.TargetHumidity != nil {
		known("target_humidity_percent", *state.TargetHumidity, true)
	}
	return out
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
