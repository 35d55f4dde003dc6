package charger

import (
	"context"
	"sync"

	modbus "github.com/hootrhino/solix-modbus"
)

// fakeClient is an in-memory RegisterClient. 32-bit values are stored as two
// registers, high word first.
type fakeClient struct {
	mu        sync.Mutex
	registers map[int]uint16
	fail      map[int]error
	writes    []write
	reads     int
}

type write struct {
	register int
	value    int
}

var _ modbus.RegisterClient = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{registers: map[int]uint16{}, fail: map[int]error{}}
}

func (f *fakeClient) setU32(register int, v uint32) {
	f.registers[register] = uint16(v >> 16)
	f.registers[register+1] = uint16(v)
}

func (f *fakeClient) ReadU16(ctx context.Context, register int) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if err := f.fail[register]; err != nil {
		return 0, err
	}
	return f.registers[register], nil
}

func (f *fakeClient) ReadU32(ctx context.Context, register int) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if err := f.fail[register]; err != nil {
		return 0, err
	}
	return modbus.AssembleUint32(f.registers[register], f.registers[register+1], modbus.WordOrderHiLo), nil
}

func (f *fakeClient) WriteU16(ctx context.Context, register int, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[register]; err != nil {
		return err
	}
	f.writes = append(f.writes, write{register, value})
	f.registers[register] = modbus.MaskWord(value)
	return nil
}

func (f *fakeClient) setFail(register int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, register)
		return
	}
	f.fail[register] = err
}
