package perfcounter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrBroadcastChannelFull is returned when the broadcast channel cannot
// accept another update without blocking the publisher.
var ErrBroadcastChannelFull = errors.New("perfcounter: broadcast channel full")

// update is one counter batch broadcast to dashboard subscribers.
type update struct {
	sequence int64
	samples  map[string]float64
}

// subscriber is a single live dashboard connection (a websocket client).
type subscriber interface {
	id() string
	send(u update) error
	context() context.Context
}

// bus fans counter updates out to every connected dashboard subscriber: a
// single broadcast goroutine takes each update off one buffered channel and
// sends it to all subscribers concurrently, waiting for every send to finish
// before taking the next update, so a slow websocket client delays later
// updates for all subscribers.
type bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[subscriber]struct{}

	updates  chan update
	sequence int64

	stop chan struct{}
	wg   sync.WaitGroup
}

func newBus(logger *slog.Logger) *bus {
	return &bus{
		logger:  logger.With("component", "perfcounter_bus"),
		subs:    make(map[subscriber]struct{}),
		updates: make(chan update, 256),
		stop:    make(chan struct{}),
	}
}

func (b *bus) subscribe(s subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[s] = struct{}{}
}

func (b *bus) unsubscribe(s subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}

func (b *bus) activeSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// publish queues samples for broadcast. Non-blocking: a full channel drops
// the update rather than stalling whoever called Handle.
func (b *bus) publish(samples map[string]float64) error {
	seq := atomic.AddInt64(&b.sequence, 1)
	select {
	case b.updates <- update{sequence: seq, samples: samples}:
		return nil
	default:
		b.logger.Warn("dashboard broadcast channel full, dropping update")
		return ErrBroadcastChannelFull
	}
}

func (b *bus) start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
}

func (b *bus) run(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case u := <-b.updates:
			b.broadcast(u)
		}
	}
}

func (b *bus) broadcast(u update) {
	b.mu.RLock()
	targets := make([]subscriber, 0, len(b.subs))
	for s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s subscriber) {
			defer wg.Done()
			select {
			case <-s.context().Done():
				b.unsubscribe(s)
				return
			default:
			}
			if err := s.send(u); err != nil {
				b.logger.Warn("dashboard subscriber send failed", "subscriber", s.id(), "error", err)
				b.unsubscribe(s)
			}
		}(s)
	}
	wg.Wait()
}

func (b *bus) close() {
	close(b.stop)
	b.wg.Wait()
}
