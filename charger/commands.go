package charger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	modbus "github.com/hootrhino/solix-modbus"
)

// ErrInvalidArgument is returned for control values the charger does not accept.
var ErrInvalidArgument = errors.New("charger: invalid argument")

// Command values written to RegCommand.
const (
	CommandStart = 1
	CommandStop  = 2
)

// Limits of the control registers.
const (
	MinTimeoutSeconds = 6
	MaxTimeoutSeconds = 0xFFFF
	MaxCurrentAmps    = 32
)

// Controller issues control writes to the charger. Arguments are validated
// before any I/O.
type Controller struct {
	client modbus.RegisterClient
	logger zerolog.Logger
}

// NewController returns a Controller writing through client.
func NewController(client modbus.RegisterClient, logger zerolog.Logger) *Controller {
	return &Controller{client: client, logger: logger}
}

func (c *Controller) write(ctx context.Context, name string, register, value int) error {
	if err := c.client.WriteU16(ctx, register, value); err != nil {
		return errors.Wrapf(err, "set %s", name)
	}
	c.logger.Info().Str("setting", name).Int("register", register).Int("value", value).Msg("charger setting written")
	return nil
}

// StartCharging starts a charging session.
func (c *Controller) StartCharging(ctx context.Context) error {
	return c.write(ctx, "command", RegCommand, CommandStart)
}

// StopCharging stops the running session.
func (c *Controller) StopCharging(ctx context.Context) error {
	return c.write(ctx, "command", RegCommand, CommandStop)
}

// Boost enables boost charging. The charger accepts it once per session.
func (c *Controller) Boost(ctx context.Context) error {
	return c.write(ctx, "boost", RegBoost, 1)
}

// SetTimeout sets the charger timeout in seconds; values up to 5 are rejected.
func (c *Controller) SetTimeout(ctx context.Context, seconds int) error {
	if seconds < MinTimeoutSeconds || seconds > MaxTimeoutSeconds {
		return errors.Wrapf(ErrInvalidArgument, "timeout %ds must be greater than 5", seconds)
	}
	return c.write(ctx, "timeout", RegTimeout, seconds)
}

// SetPhase selects automatic, single or three phase charging.
func (c *Controller) SetPhase(ctx context.Context, phase Phase) error {
	if _, ok := PhaseMap[uint32(phase)]; !ok {
		return errors.Wrapf(ErrInvalidArgument, "unknown phase setting %d", uint16(phase))
	}
	return c.write(ctx, "phase", RegPhaseSetting, int(phase))
}

// SetMaxCurrent limits the charging current in amperes.
func (c *Controller) SetMaxCurrent(ctx context.Context, amps int) error {
	if amps < 0 || amps > MaxCurrentAmps {
		return errors.Wrapf(ErrInvalidArgument, "max current %dA outside 0..%d", amps, MaxCurrentAmps)
	}
	return c.write(ctx, "max current", RegMaxCurrent, amps)
}
