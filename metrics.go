package modbus

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects per-request outcomes of a Client.
type Metrics struct {
	requests  *prometheus.CounterVec
	fallbacks prometheus.Counter
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modbus",
			Name:      "requests_total",
			Help:      "Modbus requests by function code and result.",
		}, []string{"function", "result"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modbus",
			Name:      "input_register_fallbacks_total",
			Help:      "Holding register reads retried as input register reads after an illegal data address exception.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modbus",
			Name:      "exchange_duration_seconds",
			Help:      "Duration of a complete exchange from connect to close.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"function"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.fallbacks, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// resultLabel maps an exchange error to its failure kind.
func resultLabel(err error) string {
	var exc *ExceptionError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &exc):
		return "exception"
	case errors.Is(err, ErrConnectivity):
		return "connect_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrFraming):
		return "framing_error"
	default:
		return "error"
	}
}

func (m *Metrics) observe(fc FunctionCode, started time.Time, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(fc.String(), resultLabel(err)).Inc()
	m.duration.WithLabelValues(fc.String()).Observe(time.Since(started).Seconds())
}

func (m *Metrics) fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
