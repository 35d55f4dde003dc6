package modbus

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultPort    = 502
	DefaultTimeout = 5 * time.Second
)

// Settings identifies one device endpoint and how its registers are addressed.
type Settings struct {
	Host string
	Port int
	// AddressOffset is added to every register number before framing. It
	// compensates for 0-based vs 1-based numbering between documentation and
	// firmware, for reads and writes alike.
	AddressOffset int
	WordOrder     WordOrder
}

// Validate checks the settings and fills in the default word order.
func (s *Settings) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if s.Port <= 0 || s.Port > 0xFFFF {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	order, err := ParseWordOrder(string(s.WordOrder))
	if err != nil {
		return err
	}
	s.WordOrder = order
	return nil
}

type options struct {
	unitID  uint8
	timeout time.Duration
	logger  zerolog.Logger
	metrics *Metrics
	dialer  Dialer
}

// Option configures a Client.
type Option func(*options)

// WithUnitID sets the unit identifier sent in every MBAP header (default 1).
func WithUnitID(unitID uint8) Option {
	return func(o *options) {
		o.unitID = unitID
	}
}

// WithTimeout sets the bound applied to the connect and to every send and read.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records request outcomes into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDialer replaces the dialer used to open each connection.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

func newDefaultOptions() *options {
	return &options{
		unitID:  DefaultUnitID,
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
	}
}
