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
)

// FunctionCode is a Modbus function code.
type FunctionCode uint8

// Function codes used by this client.
const (
	FuncCodeReadHoldingRegisters FunctionCode = 0x03
	FuncCodeReadInputRegisters   FunctionCode = 0x04
	FuncCodeWriteSingleRegister  FunctionCode = 0x06
)

// exceptionFlag is set on the function code of an exception response.
const exceptionFlag = 0x80

func (fc FunctionCode) String() string {
	switch fc {
	case FuncCodeReadHoldingRegisters:
		return "read holding registers"
	case FuncCodeReadInputRegisters:
		return "read input registers"
	case FuncCodeWriteSingleRegister:
		return "write single register"
	default:
		return fmt.Sprintf("function 0x%02X", uint8(fc))
	}
}

// RegisterClient is the register level API consumed by the charger integration.
// Every call targets one device endpoint and either returns a decoded value or fails.
type RegisterClient interface {
	ReadU16(ctx context.Context, register int) (uint16, error)   // ReadU16 reads one register
	ReadU32(ctx context.Context, register int) (uint32, error)   // ReadU32 reads two registers combined by word order
	WriteU16(ctx context.Context, register int, value int) error // WriteU16 writes one register, value masked to 16 bits
}

var _ RegisterClient = (*Client)(nil)
