package modbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Dialer opens the TCP connection used by a single exchange.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPTransporter performs Modbus TCP exchanges against one device endpoint.
// Every exchange dials a fresh connection and closes it before returning;
// only the transaction counter survives between exchanges.
type TCPTransporter struct {
	host          string
	port          int
	unitID        uint8
	timeout       time.Duration
	dialer        Dialer
	packager      *TCPPackager
	logger        zerolog.Logger
	transactionID atomic.Uint32 // last issued transaction ID, 0 before the first exchange
}

// NewTCPTransporter creates a transporter for host:port.
func NewTCPTransporter(host string, port int, unitID uint8, timeout time.Duration, dialer Dialer, logger zerolog.Logger) *TCPTransporter {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &TCPTransporter{
		host:     host,
		port:     port,
		unitID:   unitID,
		timeout:  timeout,
		dialer:   dialer,
		packager: NewTCPPackager(),
		logger:   logger,
	}
}

// Address returns the host:port of the device.
func (t *TCPTransporter) Address() string {
	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

// NextTransactionID returns the next transaction ID. IDs run 1..65535 and
// wrap back to 1; 0 is never issued.
func (t *TCPTransporter) NextTransactionID() uint16 {
	for {
		last := t.transactionID.Load()
		next := last + 1
		if next > 0xFFFF {
			next = 1
		}
		if t.transactionID.CompareAndSwap(last, next) {
			return uint16(next)
		}
	}
}

// connect dials the device, bounded by the transporter timeout.
func (t *TCPTransporter) connect(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, err := t.dialer.DialContext(dialCtx, "tcp", t.Address())
	if err != nil {
		return nil, &ConnectError{Host: t.host, Port: t.port, Err: err}
	}
	return conn, nil
}

// setDeadline bounds the next I/O step by the timeout or the context
// deadline, whichever comes first.
func (t *TCPTransporter) setDeadline(ctx context.Context, conn net.Conn) error {
	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return conn.SetDeadline(deadline)
}

// ioError classifies an I/O failure of the given step.
func (t *TCPTransporter) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &TimeoutError{Op: op, Err: ctxErr}
		}
		return fmt.Errorf("modbus: %s aborted: %w", op, ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FramingError{Reason: "connection closed during " + op, Err: err}
	}
	// Resets, broken pipes and other socket failures mean the link is gone.
	return &ConnectError{Host: t.host, Port: t.port, Op: op, Err: err}
}

// Exchange sends one request PDU and returns the response PDU.
func (t *TCPTransporter) Exchange(ctx context.Context, pdu []byte) ([]byte, error) {
	txID := t.NextTransactionID()
	frame, err := t.packager.Pack(txID, t.unitID, pdu)
	if err != nil {
		return nil, fmt.Errorf("failed to pack PDU: %w", err)
	}

	conn, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			t.logger.Debug().Err(cerr).Str("address", t.Address()).Msg("close failed")
		}
	}()
	// Cancelling the context unblocks any pending read or write.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	t.logger.Debug().
		Uint16("tx_id", txID).
		Str("function", FunctionCode(pdu[0]).String()).
		Str("frame", formatPrintHEX(frame)).
		Msg("sending request")

	if err := t.setDeadline(ctx, conn); err != nil {
		return nil, t.ioError(ctx, "send", err)
	}
	written := 0
	for written < len(frame) {
		n, err := conn.Write(frame[written:])
		if err != nil {
			return nil, t.ioError(ctx, "send", fmt.Errorf("write failed after %d bytes: %w", written, err))
		}
		written += n
	}

	// The response header is always exactly 7 bytes.
	header := make([]byte, TCPHeaderLength)
	if err := t.setDeadline(ctx, conn); err != nil {
		return nil, t.ioError(ctx, "read header", err)
	}
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, t.ioError(ctx, "read header", err)
	}
	mbap, err := ParseMBAPHeader(header)
	if err != nil {
		return nil, err
	}
	if mbap.TransactionID != txID {
		return nil, newFramingError("transaction ID mismatch: sent 0x%04X, received 0x%04X", txID, mbap.TransactionID)
	}
	if mbap.UnitID != t.unitID {
		t.logger.Debug().Uint8("sent", t.unitID).Uint8("received", mbap.UnitID).Msg("unit ID differs in response")
	}

	respPDU := make([]byte, mbap.PDULength())
	if err := t.setDeadline(ctx, conn); err != nil {
		return nil, t.ioError(ctx, "read body", err)
	}
	if _, err := io.ReadFull(conn, respPDU); err != nil {
		return nil, t.ioError(ctx, "read body", err)
	}

	t.logger.Debug().
		Uint16("tx_id", txID).
		Str("pdu", formatPrintHEX(respPDU)).
		Msg("received response")
	return respPDU, nil
}
