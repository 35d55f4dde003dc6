package modbus

import (
	"errors"
	"fmt"
)

var (
	ErrConnectivity      = errors.New("modbus: connectivity error")
	ErrTimeout           = errors.New("modbus: timeout")
	ErrFraming           = errors.New("modbus: framing error")
	ErrAddressOutOfRange = errors.New("modbus: register address out of range")
)

// ExceptionCode is the one byte code carried by a Modbus exception response.
type ExceptionCode uint8

const (
	ExceptionIllegalFunction       ExceptionCode = 0x01
	ExceptionIllegalDataAddress    ExceptionCode = 0x02
	ExceptionIllegalDataValue      ExceptionCode = 0x03
	ExceptionSlaveDeviceFailure    ExceptionCode = 0x04
	ExceptionAcknowledge           ExceptionCode = 0x05
	ExceptionSlaveDeviceBusy       ExceptionCode = 0x06
	ExceptionMemoryParityError     ExceptionCode = 0x08
	ExceptionGatewayPathUnavail    ExceptionCode = 0x0A
	ExceptionGatewayTargetNoAnswer ExceptionCode = 0x0B
)

// getExceptionMessage returns a human-readable message for a Modbus exception code.
func getExceptionMessage(exceptionCode ExceptionCode) string {
	switch exceptionCode {
	case ExceptionIllegalFunction:
		return "Illegal function"
	case ExceptionIllegalDataAddress:
		return "Illegal data address"
	case ExceptionIllegalDataValue:
		return "Illegal data value"
	case ExceptionSlaveDeviceFailure:
		return "Slave device failure"
	case ExceptionAcknowledge:
		return "Acknowledge"
	case ExceptionSlaveDeviceBusy:
		return "Slave device busy"
	case ExceptionMemoryParityError:
		return "Memory parity error"
	case ExceptionGatewayPathUnavail:
		return "Gateway path unavailable"
	case ExceptionGatewayTargetNoAnswer:
		return "Gateway target device failed to respond"
	default:
		return "Unknown exception code"
	}
}

// ExceptionError is a well formed exception response returned by the device.
type ExceptionError struct {
	FunctionCode  FunctionCode // request function code, exception flag cleared
	ExceptionCode ExceptionCode
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception response to %s: code 0x%02X - %s",
		e.FunctionCode, uint8(e.ExceptionCode), getExceptionMessage(e.ExceptionCode))
}

// IsIllegalDataAddress reports whether the device rejected the register address.
func (e *ExceptionError) IsIllegalDataAddress() bool {
	return e.ExceptionCode == ExceptionIllegalDataAddress
}

// FramingError reports a structurally invalid frame or an unexpected echo.
type FramingError struct {
	Reason string
	Err    error
}

func newFramingError(format string, args ...interface{}) *FramingError {
	return &FramingError{Reason: fmt.Sprintf(format, args...)}
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("modbus: framing error: %s: %v", e.Reason, e.Err)
	}
	return "modbus: framing error: " + e.Reason
}

func (e *FramingError) Unwrap() error { return e.Err }

func (e *FramingError) Is(target error) bool { return target == ErrFraming }

// ConnectError reports that the TCP connection to the device could not be
// opened, or was reset or closed by the peer during an exchange.
type ConnectError struct {
	Host string
	Port int
	Op   string // empty for the connect itself, otherwise the step that lost the link
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("modbus: connection to %s:%d lost during %s: %v", e.Host, e.Port, e.Op, e.Err)
	}
	return fmt.Sprintf("modbus: connect to %s:%d failed: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Is(target error) bool { return target == ErrConnectivity }

// TimeoutError reports that a send or read exceeded its deadline.
type TimeoutError struct {
	Op  string // "send", "read header" or "read body"
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("modbus: %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
