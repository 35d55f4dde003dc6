package charger

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPoller_Poll(t *testing.T) {
	c := newFakeClient()
	c.registers[RegChargingStatus] = 3
	p := NewPoller(c, 0, zerolog.Nop())
	if p.Interval() != DefaultScanInterval {
		t.Errorf("interval = %v, want %v", p.Interval(), DefaultScanInterval)
	}

	s, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if s.StatusName() != "charger_paused" {
		t.Errorf("status = %q", s.StatusName())
	}
}

func TestPoller_StartStop(t *testing.T) {
	c := newFakeClient()
	c.registers[RegChargingStatus] = 2
	c.setU32(RegTotalActivePower, 7200)

	p := NewPoller(c, 10*time.Millisecond, zerolog.Nop())
	data := make(chan Snapshot, 16)
	errs := make(chan error, 16)
	p.OnData(func(s Snapshot) {
		select {
		case data <- s:
		default:
		}
	})
	p.OnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	select {
	case s := <-data:
		if s.PowerW != 7200 {
			t.Errorf("power = %d, want 7200", s.PowerW)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	cause := errors.New("device unreachable")
	c.setFail(RegChargingStatus, cause)
	select {
	case err := <-errs:
		if !errors.Is(err, cause) {
			t.Errorf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error delivered")
	}

	// Next tick recovers on its own.
	c.setFail(RegChargingStatus, nil)
	for len(data) > 0 {
		<-data
	}
	select {
	case <-data:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not recover")
	}
}

func TestPoller_ContextCancel(t *testing.T) {
	c := newFakeClient()
	p := NewPoller(c, 10*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	p.Stop()
}

func TestPoller_ContextCancelReleasesGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		p := NewPoller(newFakeClient(), 10*time.Millisecond, zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)
		cancel()
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+2 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d after cancel, started with %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
