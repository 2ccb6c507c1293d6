package mesh

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink is one client delivery target, typically a WebSocket connection.
// Send may block on network I/O; the Bus never calls it under a lock.
type Sink interface {
	Send(Event) error
	Close() error
}

// busDrainTimeout bounds how long Shutdown waits for in-flight workers.
const busDrainTimeout = 5 * time.Second

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusLogger sets a structured logger for the bus.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// Bus is the per-task pub/sub multiplexer. It maps task ids to subscribed
// connections and fans events out to their sinks. Publish is best-effort:
// a failing sink is torn down, never retried, and a slow subscriber does
// not backpressure the publishing worker beyond its own send.
type Bus struct {
	logger *slog.Logger

	// connMu guards conns only; taskMu guards tasks only. Lock holds are
	// short and sink sends happen outside both.
	connMu sync.Mutex
	conns  map[string]Sink

	taskMu sync.Mutex
	tasks  map[string]map[string]struct{} // task id -> connection ids

	workers sync.WaitGroup
	closed  atomic.Bool
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		logger: nopLogger,
		conns:  make(map[string]Sink),
		tasks:  make(map[string]map[string]struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Connect registers a client sink under connID.
func (b *Bus) Connect(connID string, s Sink) {
	b.connMu.Lock()
	b.conns[connID] = s
	b.connMu.Unlock()
	b.logger.Debug("bus: connected", "conn_id", connID)
}

// Subscribe adds connID to the subscriber set of taskID. Idempotent.
func (b *Bus) Subscribe(connID, taskID string) {
	b.taskMu.Lock()
	set, ok := b.tasks[taskID]
	if !ok {
		set = make(map[string]struct{})
		b.tasks[taskID] = set
	}
	set[connID] = struct{}{}
	b.taskMu.Unlock()
}

// Publish routes ev to every connection subscribed to ev.TaskID. A send
// error disconnects the offending sink and removes it from all
// subscriptions. No-op after Shutdown.
func (b *Bus) Publish(ev Event) {
	if b.closed.Load() {
		return
	}

	b.taskMu.Lock()
	ids := make([]string, 0, len(b.tasks[ev.TaskID]))
	for id := range b.tasks[ev.TaskID] {
		ids = append(ids, id)
	}
	b.taskMu.Unlock()

	b.connMu.Lock()
	sinks := make(map[string]Sink, len(ids))
	for _, id := range ids {
		if s, ok := b.conns[id]; ok {
			sinks[id] = s
		}
	}
	b.connMu.Unlock()

	for id, s := range sinks {
		if err := s.Send(ev); err != nil {
			b.logger.Warn("bus: send failed, disconnecting", "conn_id", id, "err", err)
			b.Disconnect(id)
		}
	}
}

// SendTo delivers ev directly to one connection, bypassing task
// subscriptions. Used for per-connection replies such as submit failures.
func (b *Bus) SendTo(connID string, ev Event) error {
	b.connMu.Lock()
	s, ok := b.conns[connID]
	b.connMu.Unlock()
	if !ok {
		return nil
	}
	if err := s.Send(ev); err != nil {
		b.Disconnect(connID)
		return err
	}
	return nil
}

// Disconnect removes connID from all subscriptions and closes its sink.
func (b *Bus) Disconnect(connID string) {
	b.connMu.Lock()
	s, ok := b.conns[connID]
	delete(b.conns, connID)
	b.connMu.Unlock()

	b.taskMu.Lock()
	for taskID, set := range b.tasks {
		delete(set, connID)
		if len(set) == 0 {
			delete(b.tasks, taskID)
		}
	}
	b.taskMu.Unlock()

	if ok {
		_ = s.Close()
		b.logger.Debug("bus: disconnected", "conn_id", connID)
	}
}

// WorkerStarted registers an in-flight task worker for shutdown draining.
func (b *Bus) WorkerStarted() { b.workers.Add(1) }

// WorkerDone marks a task worker as finished.
func (b *Bus) WorkerDone() { b.workers.Done() }

// Closing reports whether Shutdown has been requested. Workers check this
// before starting new turns.
func (b *Bus) Closing() bool { return b.closed.Load() }

// Shutdown stops publishing, waits up to 5s for in-flight workers to
// drain, then forcibly closes remaining sinks.
func (b *Bus) Shutdown(ctx context.Context) {
	b.closed.Store(true)

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(busDrainTimeout):
		b.logger.Warn("bus: drain timeout, closing sinks with workers in flight")
	case <-ctx.Done():
	}

	b.connMu.Lock()
	sinks := make([]Sink, 0, len(b.conns))
	for _, s := range b.conns {
		sinks = append(sinks, s)
	}
	b.conns = make(map[string]Sink)
	b.connMu.Unlock()

	b.taskMu.Lock()
	b.tasks = make(map[string]map[string]struct{})
	b.taskMu.Unlock()

	for _, s := range sinks {
		_ = s.Close()
	}
}
