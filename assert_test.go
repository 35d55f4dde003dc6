package modbus

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

// assertUint16Equal checks if two slices of uint16 are equal.
func assertUint16Equal(t *testing.T, expected []uint16, actual []uint16) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Errorf("Expected length %d, but got %d", len(expected), len(actual))
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("Expected %v, but got %v", expected, actual)
			return
		}
	}
}

// mockTCPConn is a net.Conn replaying a scripted response.
type mockTCPConn struct {
	readBuffer  bytes.Buffer
	writeBuffer bytes.Buffer
	closed      bool
}

func (m *mockTCPConn) Read(b []byte) (n int, err error) {
	return m.readBuffer.Read(b)
}

func (m *mockTCPConn) Write(b []byte) (n int, err error) {
	return m.writeBuffer.Write(b)
}

func (m *mockTCPConn) Close() error {
	m.closed = true
	return nil
}

func (m *mockTCPConn) LocalAddr() net.Addr                { return nil }
func (m *mockTCPConn) RemoteAddr() net.Addr               { return nil }
func (m *mockTCPConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockTCPConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockTCPConn) SetWriteDeadline(t time.Time) error { return nil }

// mockDialer hands out scripted connections, one per dial.
type mockDialer struct {
	conns []*mockTCPConn
	dials int
}

func newMockDialer(responses ...[]byte) *mockDialer {
	d := &mockDialer{}
	for _, r := range responses {
		d.conns = append(d.conns, &mockTCPConn{readBuffer: *bytes.NewBuffer(r)})
	}
	return d
}

func (d *mockDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.dials >= len(d.conns) {
		return nil, &net.OpError{Op: "dial", Net: network, Err: errConnRefused}
	}
	conn := d.conns[d.dials]
	d.dials++
	return conn, nil
}

type testError string

func (e testError) Error() string { return string(e) }

const errConnRefused = testError("connection refused")

// freeAddr returns a loopback address with a port nobody listens on.
func freeAddr(t *testing.T) (string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := l.Addr().(*net.TCPAddr)
	l.Close()
	return addr.IP.String(), addr.Port
}

// waitListening blocks until addr accepts connections.
func waitListening(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s is not listening", addr)
}
