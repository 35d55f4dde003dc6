package modbus

import (
	"encoding/binary"

	"golang.org/x/exp/constraints"
)

// Response PDU lengths, function code included.
const (
	RespPDULenWriteSingleRegister = 1 + 2 + 2 // FuncCode (1) + Address (2) + Value (2)
	MaxReadQuantity               = 2
)

// buildRequestPDU prepends the function code to the request data.
func buildRequestPDU(functionCode FunctionCode, data []byte) []byte {
	pdu := make([]byte, 1+len(data))
	pdu[0] = byte(functionCode)
	copy(pdu[1:], data)
	return pdu
}

// BuildReadRequest builds a read holding/input registers request PDU.
// Only single and double register reads are issued by this client.
func BuildReadRequest(fc FunctionCode, startAddress, quantity uint16) ([]byte, error) {
	if fc != FuncCodeReadHoldingRegisters && fc != FuncCodeReadInputRegisters {
		return nil, newFramingError("unsupported read function code 0x%02X", uint8(fc))
	}
	if quantity == 0 || quantity > MaxReadQuantity {
		return nil, newFramingError("unsupported read quantity %d, expected 1..%d", quantity, MaxReadQuantity)
	}
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startAddress)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	return buildRequestPDU(fc, data), nil
}

// BuildWriteSingleRegisterRequest builds a write single register request PDU.
func BuildWriteSingleRegisterRequest(address, value uint16) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], value)
	return buildRequestPDU(FuncCodeWriteSingleRegister, data)
}

// MaskWord truncates v to its low 16 bits. Register writes take any integer
// and keep only what fits in one register: 70000 becomes 4464.
func MaskWord[T constraints.Integer](v T) uint16 {
	return uint16(uint64(v) & 0xFFFF)
}

// checkException returns an *ExceptionError when pdu is an exception response.
func checkException(pdu []byte) error {
	if len(pdu) == 0 {
		return newFramingError("empty response PDU")
	}
	if pdu[0]&exceptionFlag == 0 {
		return nil
	}
	if len(pdu) != 2 {
		return newFramingError("invalid exception response length: %d bytes, expected 2", len(pdu))
	}
	return &ExceptionError{
		FunctionCode:  FunctionCode(pdu[0] &^ exceptionFlag),
		ExceptionCode: ExceptionCode(pdu[1]),
	}
}

// ParseReadResponse validates a read registers response PDU and decodes its
// registers in order.
func ParseReadResponse(expected FunctionCode, pdu []byte) ([]uint16, error) {
	if err := checkException(pdu); err != nil {
		return nil, err
	}
	if FunctionCode(pdu[0]) != expected {
		return nil, newFramingError("unexpected function code in response: 0x%02X, expected 0x%02X", pdu[0], uint8(expected))
	}
	if len(pdu) < 2 {
		return nil, newFramingError("invalid response length: expected at least 2 bytes, got %d", len(pdu))
	}

	byteCount := int(pdu[1])
	data := pdu[2:]
	if len(data) != byteCount {
		return nil, newFramingError("byte count mismatch: header declares %d, payload has %d", byteCount, len(data))
	}
	if byteCount%2 != 0 {
		return nil, newFramingError("odd register byte count %d", byteCount)
	}

	registers := make([]uint16, byteCount/2)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(data[2*i : 2*i+2])
	}
	return registers, nil
}

// ParseWriteResponse validates the echo of a write single register request.
func ParseWriteResponse(pdu []byte, address, value uint16) error {
	if err := checkException(pdu); err != nil {
		return err
	}
	if len(pdu) != RespPDULenWriteSingleRegister {
		return newFramingError("invalid write response length: expected %d bytes, got %d", RespPDULenWriteSingleRegister, len(pdu))
	}
	if FunctionCode(pdu[0]) != FuncCodeWriteSingleRegister {
		return newFramingError("unexpected function code in response: 0x%02X, expected 0x%02X", pdu[0], uint8(FuncCodeWriteSingleRegister))
	}

	respAddress := binary.BigEndian.Uint16(pdu[1:3])
	respValue := binary.BigEndian.Uint16(pdu[3:5])
	if respAddress != address {
		return newFramingError("write response address mismatch: expected %d, got %d", address, respAddress)
	}
	if respValue != value {
		return newFramingError("write response value mismatch: expected %d, got %d", value, respValue)
	}
	return nil
}
