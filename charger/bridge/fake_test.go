package bridge

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	modbus "github.com/hootrhino/solix-modbus"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  string
}

// fakeBroker records publications and subscription handlers.
type fakeBroker struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]mqtt.MessageHandler
	err       error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: map[string]mqtt.MessageHandler{}}
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{topic, retained, payload.(string)})
	return &fakeToken{err: b.err}
}

func (b *fakeBroker) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = callback
	return &fakeToken{err: b.err}
}

func (b *fakeBroker) last(topic string) (published, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.published) - 1; i >= 0; i-- {
		if b.published[i].topic == topic {
			return b.published[i], true
		}
	}
	return published{}, false
}

type fakeMessage struct {
	topic   string
	payload []byte
	acked   bool
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              { m.acked = true }

type write struct {
	register int
	value    int
}

// recordingClient records writes and serves zero for every read.
type recordingClient struct {
	writes []write
}

var _ modbus.RegisterClient = (*recordingClient)(nil)

func (c *recordingClient) ReadU16(ctx context.Context, register int) (uint16, error) { return 0, nil }
func (c *recordingClient) ReadU32(ctx context.Context, register int) (uint32, error) { return 0, nil }
func (c *recordingClient) WriteU16(ctx context.Context, register int, value int) error {
	c.writes = append(c.writes, write{register, value})
	return nil
}
