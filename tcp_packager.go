package modbus

import (
	"encoding/binary"
	"fmt"
)

// Modbus TCP Protocol Constants
const (
	TCPHeaderLength       = 7                              // MBAP header length in bytes
	MaxPDULength          = 253                            // Maximum PDU length allowed by Modbus
	MaxTCPFrameLength     = TCPHeaderLength + MaxPDULength // Maximum complete frame length
	ProtocolIdentifierTCP = 0x0000                         // Modbus protocol identifier
	DefaultUnitID         = 0x01
)

// MBAPHeader is a decoded Modbus application protocol header.
type MBAPHeader struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16 // bytes following the length field: unit id + PDU
	UnitID        uint8
}

// PDULength returns the number of PDU bytes announced by the header.
func (h MBAPHeader) PDULength() int {
	return int(h.Length) - 1
}

// BuildMBAPHeader encodes an MBAP header. length counts the unit identifier
// plus the PDU, i.e. every byte following the length field.
func BuildMBAPHeader(transactionID uint16, length uint16, unitID uint8) []byte {
	header := make([]byte, TCPHeaderLength)
	binary.BigEndian.PutUint16(header[0:2], transactionID)         // Transaction Identifier
	binary.BigEndian.PutUint16(header[2:4], ProtocolIdentifierTCP) // Protocol Identifier
	binary.BigEndian.PutUint16(header[4:6], length)                // Length
	header[6] = unitID                                             // Unit Identifier
	return header
}

// ParseMBAPHeader decodes and validates a 7 byte response header.
func ParseMBAPHeader(header []byte) (MBAPHeader, error) {
	if len(header) != TCPHeaderLength {
		return MBAPHeader{}, newFramingError("invalid MBAP header length: %d bytes, expected %d", len(header), TCPHeaderLength)
	}
	h := MBAPHeader{
		TransactionID: binary.BigEndian.Uint16(header[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(header[2:4]),
		Length:        binary.BigEndian.Uint16(header[4:6]),
		UnitID:        header[6],
	}
	if h.ProtocolID != ProtocolIdentifierTCP {
		return h, newFramingError("invalid protocol identifier: 0x%04X, expected 0x%04X", h.ProtocolID, ProtocolIdentifierTCP)
	}
	if h.PDULength() <= 0 {
		return h, newFramingError("invalid length field %d: no PDU follows the unit identifier", h.Length)
	}
	if h.PDULength() > MaxPDULength {
		return h, newFramingError("length field too large: %d, maximum: %d", h.Length, MaxPDULength+1)
	}
	return h, nil
}

// TCPPackager handles Modbus TCP packet packing.
type TCPPackager struct{}

// NewTCPPackager creates a new TCPPackager.
func NewTCPPackager() *TCPPackager {
	return &TCPPackager{}
}

// Pack packs a Modbus PDU into a complete TCP frame.
// The TCP frame format is: MBAP (7 bytes) + PDU (variable length).
func (p *TCPPackager) Pack(transactionID uint16, unitID uint8, pdu []byte) ([]byte, error) {
	if len(pdu) == 0 {
		return nil, fmt.Errorf("PDU cannot be empty")
	}
	if len(pdu) > MaxPDULength {
		return nil, fmt.Errorf("PDU length %d exceeds maximum %d bytes", len(pdu), MaxPDULength)
	}

	// Length field includes the Unit Identifier (1 byte) + PDU length
	frame := BuildMBAPHeader(transactionID, uint16(len(pdu)+1), unitID)
	return append(frame, pdu...), nil
}
