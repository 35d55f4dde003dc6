package modbus

import "context"

// Transporter carries one request PDU to the device and returns its response
// PDU. Implementations own connection handling and transaction correlation.
type Transporter interface {
	Exchange(ctx context.Context, pdu []byte) ([]byte, error)
	Address() string
}

var _ Transporter = (*TCPTransporter)(nil)
