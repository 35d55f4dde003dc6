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

package charger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	modbus "github.com/hootrhino/solix-modbus"
)

// OnDataFunc is a callback type for pushing snapshots
type OnDataFunc func(Snapshot)

// OnErrorFunc is a callback type for error reporting
type OnErrorFunc func(error)

// snapshotStream hands snapshots to the OnData callback on its own goroutine,
// so a slow consumer does not delay the next poll.
type snapshotStream struct {
	dataCh chan Snapshot
	stopCh chan struct{}
	onData atomic.Value // OnDataFunc
}

func newSnapshotStream(bufferSize int) *snapshotStream {
	return &snapshotStream{
		dataCh: make(chan Snapshot, bufferSize),
		stopCh: make(chan struct{}),
	}
}

func (s *snapshotStream) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case data := <-s.dataCh:
			if cb, ok := s.onData.Load().(OnDataFunc); ok && cb != nil {
				cb(data)
			}
		}
	}
}

// push sends a snapshot to the stream, unless stopped
func (s *snapshotStream) push(data Snapshot) {
	select {
	case s.dataCh <- data:
	case <-s.stopCh:
	}
}

// Poller reads a snapshot from one charger at a fixed interval. A failed
// cycle yields exactly one error callback; the next tick simply tries again.
type Poller struct {
	client   modbus.RegisterClient
	interval time.Duration
	logger   zerolog.Logger
	stream   *snapshotStream
	onError  atomic.Value // OnErrorFunc
	started  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a poller. A non-positive interval selects DefaultScanInterval.
func NewPoller(client modbus.RegisterClient, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Poller{
		client:   client,
		interval: interval,
		logger:   logger,
		stream:   newSnapshotStream(1),
	}
}

// Interval returns the polling interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// OnData sets the callback for snapshots
func (p *Poller) OnData(fn OnDataFunc) {
	p.stream.onData.Store(fn)
}

// OnError sets the callback for failed cycles
func (p *Poller) OnError(fn OnErrorFunc) {
	p.onError.Store(fn)
}

// Poll runs one cycle synchronously without invoking callbacks.
func (p *Poller) Poll(ctx context.Context) (Snapshot, error) {
	return ReadSnapshot(ctx, p.client)
}

// Start polls once immediately and then on every tick until ctx is done or
// Stop is called. Calling Start more than once has no effect.
func (p *Poller) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(2)
	go p.stream.run(&p.wg)
	go p.poll(ctx)
}

// poll is a private method that runs the polling loop. When it ends it also
// stops the stream, so a cancelled ctx releases every goroutine.
func (p *Poller) poll(ctx context.Context) {
	defer p.wg.Done()
	defer p.stopOnce.Do(func() { close(p.stream.stopCh) })
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-p.stream.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	snapshot, err := p.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn().Err(err).Msg("charger poll failed")
		if cb, ok := p.onError.Load().(OnErrorFunc); ok && cb != nil {
			cb(err)
		}
		return
	}
	p.logger.Debug().
		Str("status", snapshot.StatusName()).
		Uint32("power_w", snapshot.PowerW).
		Msg("charger polled")
	p.stream.push(snapshot)
}

// Stop stops the polling process and waits for the goroutines to exit. It is
// safe to call after ctx has ended.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stream.stopCh)
	})
	p.wg.Wait()
}
