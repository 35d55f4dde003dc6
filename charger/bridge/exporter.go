package bridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hootrhino/solix-modbus/charger"
)

const namespace = "solix_charger"

// Exporter exposes charger snapshots as Prometheus gauges.
type Exporter struct {
	up             prometheus.Gauge
	chargingStatus *prometheus.GaugeVec
	power          prometheus.Gauge
	duration       prometheus.Gauge
	energy         prometheus.Gauge
	readings       *prometheus.GaugeVec
	lastSuccess    prometheus.Gauge
}

// NewExporter creates the gauges and registers them on reg.
func NewExporter(reg prometheus.Registerer) (*Exporter, error) {
	e := &Exporter{
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Whether the last poll of the charger succeeded.",
		}),
		chargingStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "charging_status",
			Help:      "Raw charging status, labelled with its state name.",
		}, []string{"state"}),
		power: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_watts",
			Help:      "Total active power (W).",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of the current session (s).",
		}),
		energy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_energy_watt_hours",
			Help:      "Energy delivered in the current session (Wh).",
		}),
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_value",
			Help:      "Decoded value of a charger sensor.",
		}, []string{"key", "unit"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll.",
		}),
	}
	for _, c := range []prometheus.Collector{e.up, e.chargingStatus, e.power, e.duration, e.energy, e.readings, e.lastSuccess} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Update records a successful poll.
func (e *Exporter) Update(s charger.Snapshot) {
	e.up.Set(1)
	e.chargingStatus.Reset()
	e.chargingStatus.WithLabelValues(s.StatusName()).Set(float64(s.ChargingStatus))
	e.power.Set(float64(s.PowerW))
	e.duration.Set(float64(s.DurationS))
	e.energy.Set(float64(s.EnergyWh))
	e.lastSuccess.Set(float64(s.ReadAt.Unix()))
}

// UpdateReadings records a full sensor table read.
func (e *Exporter) UpdateReadings(readings []charger.Reading) {
	for _, r := range readings {
		unit := ""
		if s, ok := charger.SensorByKey(r.Key); ok {
			unit = s.Unit
		}
		e.readings.WithLabelValues(r.Key, unit).Set(r.Value)
	}
}

// Failed records a failed poll. Values of the last good poll are kept.
func (e *Exporter) Failed(err error) {
	e.up.Set(0)
}
