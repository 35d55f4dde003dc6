// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package modbus

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Client is a Modbus TCP master bound to one device endpoint.
//
// All operations hold a client wide lock from connect to close, so at most one
// request is in flight on the link. Concurrent callers queue on the lock and
// give up when their context ends.
type Client struct {
	settings    Settings
	transporter Transporter
	logger      zerolog.Logger
	metrics     *Metrics
	lock        chan struct{} // 1-buffered; holding the token is holding the lock
}

// NewClient validates settings and returns a client. No connection is opened
// until the first operation.
func NewClient(settings Settings, opts ...Option) (*Client, error) {
	if err := settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "modbus: invalid settings")
	}
	o := newDefaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger.With().
		Str("host", settings.Host).
		Int("port", settings.Port).
		Logger()

	return &Client{
		settings:    settings,
		transporter: NewTCPTransporter(settings.Host, settings.Port, o.unitID, o.timeout, o.dialer, logger),
		logger:      logger,
		metrics:     o.metrics,
		lock:        make(chan struct{}, 1),
	}, nil
}

// Settings returns the settings the client was created with.
func (c *Client) Settings() Settings {
	return c.settings
}

// acquire takes the client lock, or fails when ctx ends first.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	<-c.lock
}

// effectiveAddress applies the address offset to a register number.
func (c *Client) effectiveAddress(register int) (uint16, error) {
	addr := register + c.settings.AddressOffset
	if addr < 0 || addr > 0xFFFF {
		return 0, &FramingError{
			Reason: fmt.Sprintf("register %d with offset %d is outside 0..65535", register, c.settings.AddressOffset),
			Err:    ErrAddressOutOfRange,
		}
	}
	return uint16(addr), nil
}

// exchange runs one request/response cycle and records its outcome.
func (c *Client) exchange(ctx context.Context, pdu []byte) ([]byte, error) {
	started := time.Now()
	resp, err := c.transporter.Exchange(ctx, pdu)
	c.metrics.observe(FunctionCode(pdu[0]), started, err)
	return resp, err
}

func (c *Client) readWith(ctx context.Context, fc FunctionCode, address, quantity uint16) ([]uint16, error) {
	req, err := BuildReadRequest(fc, address, quantity)
	if err != nil {
		return nil, err
	}
	resp, err := c.exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	registers, err := ParseReadResponse(fc, resp)
	if err != nil {
		return nil, err
	}
	if len(registers) != int(quantity) {
		return nil, newFramingError("register count mismatch: requested %d, received %d", quantity, len(registers))
	}
	return registers, nil
}

// readRegisters reads holding registers and, when the device answers with an
// illegal data address exception, retries once as an input register read.
// Some firmware only exposes telemetry through input registers.
func (c *Client) readRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	registers, err := c.readWith(ctx, FuncCodeReadHoldingRegisters, address, quantity)
	var exc *ExceptionError
	if errors.As(err, &exc) && exc.IsIllegalDataAddress() {
		c.logger.Warn().
			Uint16("address", address).
			Msg("holding register read rejected with illegal data address, retrying as input register read")
		c.metrics.fallback()
		return c.readWith(ctx, FuncCodeReadInputRegisters, address, quantity)
	}
	return registers, err
}

// ReadU16 reads a single register.
func (c *Client) ReadU16(ctx context.Context, register int) (uint16, error) {
	if err := c.acquire(ctx); err != nil {
		return 0, c.wrap(err, "read_u16", register)
	}
	defer c.release()

	address, err := c.effectiveAddress(register)
	if err != nil {
		return 0, c.wrap(err, "read_u16", register)
	}
	registers, err := c.readRegisters(ctx, address, 1)
	if err != nil {
		return 0, c.wrap(err, "read_u16", register)
	}
	return registers[0], nil
}

// ReadU32 reads two consecutive registers and combines them using the
// configured word order.
func (c *Client) ReadU32(ctx context.Context, register int) (uint32, error) {
	if err := c.acquire(ctx); err != nil {
		return 0, c.wrap(err, "read_u32", register)
	}
	defer c.release()

	address, err := c.effectiveAddress(register)
	if err != nil {
		return 0, c.wrap(err, "read_u32", register)
	}
	registers, err := c.readRegisters(ctx, address, 2)
	if err != nil {
		return 0, c.wrap(err, "read_u32", register)
	}
	return AssembleUint32(registers[0], registers[1], c.settings.WordOrder), nil
}

// WriteU16 writes a single register. Only the low 16 bits of value are sent.
func (c *Client) WriteU16(ctx context.Context, register int, value int) error {
	if err := c.acquire(ctx); err != nil {
		return c.wrap(err, "write_u16", register)
	}
	defer c.release()

	address, err := c.effectiveAddress(register)
	if err != nil {
		return c.wrap(err, "write_u16", register)
	}
	masked := MaskWord(value)
	if int(masked) != value {
		c.logger.Debug().Int("value", value).Uint16("masked", masked).Msg("write value truncated to 16 bits")
	}

	resp, err := c.exchange(ctx, BuildWriteSingleRegisterRequest(address, masked))
	if err == nil {
		err = ParseWriteResponse(resp, address, masked)
	}
	if err != nil {
		return c.wrap(err, "write_u16", register)
	}
	return nil
}

// wrap attaches the endpoint, operation and register to err.
func (c *Client) wrap(err error, op string, register int) error {
	c.logger.Error().Err(err).Str("op", op).Int("register", register).Msg("modbus request failed")
	return errors.Wrapf(err, "%s register %d on %s", op, register, c.transporter.Address())
}
