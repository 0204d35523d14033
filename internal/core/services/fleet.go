package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rtctester/internal/core/domain"
	"rtctester/internal/core/ports"

	"go.uber.org/zap"
)

// Fleet owns every simulated client of a run and staggers their startup.
type Fleet struct {
	transport ports.Transport
	cfg       ClientConfig
	logger    *zap.SugaredLogger

	mu      sync.RWMutex
	clients []*Client
	timers  []*time.Timer
	started bool

	stopped    atomic.Bool
	stopOnce   sync.Once
	pending    sync.WaitGroup
	dispatched chan struct{}
}

func NewFleet(transport ports.Transport, cfg ClientConfig, logger *zap.SugaredLogger) *Fleet {
	return &Fleet{
		transport:  transport,
		cfg:        cfg,
		logger:     logger,
		dispatched: make(chan struct{}),
	}
}

// ClientName is the name of the i-th client of a run.
func ClientName(i int) string {
	return fmt.Sprintf("client_%d", i)
}

// Start creates count clients and dispatches client i at i*stagger from now,
// each on its own timer. It returns without waiting for any dispatch.
func (f *Fleet) Start(ctx context.Context, target string, count int, stagger time.Duration) error {
	if count < 0 {
		return domain.ErrInvalidClientNo
	}

	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return domain.ErrFleetStarted
	}
	f.started = true

	f.clients = make([]*Client, count)
	f.timers = make([]*time.Timer, count)
	for i := range count {
		f.clients[i] = NewClient(ClientName(i), f.transport, f.cfg, f.logger)
	}

	f.pending.Add(count)
	for i, c := range f.clients {
		f.timers[i] = time.AfterFunc(time.Duration(i)*stagger, func() {
			f.dispatch(ctx, c, target)
		})
	}
	f.mu.Unlock()

	go func() {
		f.pending.Wait()
		close(f.dispatched)
	}()
	return nil
}

func (f *Fleet) dispatch(ctx context.Context, c *Client, target string) {
	defer f.pending.Done()
	if f.stopped.Load() {
		c.Stop()
		return
	}
	c.Start(ctx, target)
}

// Dispatched is closed once every client has been either started or stopped
// before it could start.
func (f *Fleet) Dispatched() <-chan struct{} {
	return f.dispatched
}

// AwaitAllStarted blocks until every client has been dispatched or ctx is done.
func (f *Fleet) AwaitAllStarted(ctx context.Context) error {
	select {
	case <-f.dispatched:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAll stops every client, including those not yet dispatched. It is
// idempotent and safe to call concurrently with dispatch.
func (f *Fleet) StopAll() {
	f.stopOnce.Do(func() {
		f.stopped.Store(true)

		f.mu.RLock()
		clients := f.clients
		timers := f.timers
		f.mu.RUnlock()

		for _, t := range timers {
			if t.Stop() {
				f.pending.Done()
			}
		}

		var wg sync.WaitGroup
		for _, c := range clients {
			wg.Add(1)
			go func(c *Client) {
				defer wg.Done()
				c.Stop()
			}(c)
		}
		wg.Wait()
	})
}

// Clients returns the clients in creation order.
func (f *Fleet) Clients() []*Client {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.clients
}

// SnapshotAll returns a snapshot of every client in creation order.
func (f *Fleet) SnapshotAll() []domain.ClientSnapshot {
	clients := f.Clients()
	snaps := make([]domain.ClientSnapshot, len(clients))
	for i, c := range clients {
		snaps[i] = c.Snapshot()
	}
	return snaps
}

// AllTerminal reports whether every client has been dispatched and reached a
// final phase. An empty fleet is terminal once started.
func (f *Fleet) AllTerminal() bool {
	select {
	case <-f.dispatched:
	default:
		return false
	}
	for _, c := range f.Clients() {
		if !c.Phase().Done() {
			return false
		}
	}
	return true
}
