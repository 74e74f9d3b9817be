package event

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Queue is a FIFO bound to exactly one Dispatcher at any moment. A single
// drain task per queue pulls events and dispatches them under whichever
// Dispatcher is current at the moment of dispatch, not of enqueue — an event
// enqueued before a dispatcher switch is still dispatched under the new
// dispatcher if it has not yet been drained.
type Queue struct {
	name   string
	logger *slog.Logger

	current atomic.Pointer[Dispatcher]
	setMu   sync.Mutex // serializes SetDispatcher against itself

	// changes is the process-wide dispatcher-change queue DispatcherChanged
	// events publish onto. Nil for that queue itself, so publishing a change
	// on it does not recurse.
	changes *Queue

	// aux is a non-owning back-reference, typically to the Datapath that
	// owns this queue, consulted by handlers on the dispatcher-change
	// dispatcher observing a DispatcherChanged whose New dispatcher is DEAD.
	auxMu sync.RWMutex
	aux   any

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Event
	closed bool
}

// NewQueue creates a Queue named name. changes is the process-wide
// dispatcher-change queue this queue's SetDispatcher publishes onto; pass nil
// only when constructing that queue itself.
func NewQueue(name string, changes *Queue, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{name: name, logger: logger, changes: changes}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Name returns the queue's name, used only for logging.
func (q *Queue) Name() string { return q.name }

// SetAux sets the queue's non-owning back-reference.
func (q *Queue) SetAux(aux any) {
	q.auxMu.Lock()
	q.aux = aux
	q.auxMu.Unlock()
}

// Aux returns the queue's back-reference, or nil if none was set. The
// reference is a plain value and is not cleared when its owner shuts down.
func (q *Queue) Aux() any {
	q.auxMu.RLock()
	defer q.auxMu.RUnlock()
	return q.aux
}

// CurrentDispatcher returns the dispatcher currently bound to this queue, or
// nil if SetDispatcher has never been called.
func (q *Queue) CurrentDispatcher() *Dispatcher {
	return q.current.Load()
}

// SetDispatcher publishes DispatcherChanged{queue, old, new} on the
// process-wide dispatcher-change queue, then makes new the current
// dispatcher. The publish happens strictly before the swap, so any drain
// task already blocked on the change queue observes the transition before
// this queue's own drain task can dispatch a single event under new.
func (q *Queue) SetDispatcher(new *Dispatcher) {
	q.setMu.Lock()
	defer q.setMu.Unlock()

	old := q.current.Load()

	if q.changes != nil {
		_ = q.changes.Enqueue(NewDispatcherChanged(q, old, new))
	}

	q.current.Store(new)
}

// Enqueue appends ev to the FIFO. It never blocks and never reports backlog
// since the queue is unbounded, matching a Python-style "spawn and forget"
// producer; it returns ErrQueueClosed once Close has run.
func (q *Queue) Enqueue(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.buf = append(q.buf, ev)
	q.cond.Signal()
	return nil
}

// Close marks the queue closed and wakes its drain task so Run can return.
// Events already buffered are still drained before Run returns.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Run drains events and dispatches each under whichever Dispatcher is
// current at the moment it is pulled. It blocks until ctx is cancelled or
// Close has been called and the buffer has fully drained.
func (q *Queue) Run(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.Close()
		case <-stopped:
		}
	}()
	defer close(stopped)

	for {
		ev, ok := q.pop()
		if !ok {
			return ctx.Err()
		}

		d := q.CurrentDispatcher()
		if d == nil {
			q.logger.WarnContext(ctx, "event dropped: queue has no current dispatcher",
				slog.String("queue", q.name), slog.String("event_class", string(ev.Class)))
			continue
		}
		d.Dispatch(ctx, ev)
	}
}

func (q *Queue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.buf) == 0 {
		if q.closed {
			return Event{}, false
		}
		q.cond.Wait()
	}

	ev := q.buf[0]
	q.buf = q.buf[1:]
	return ev, true
}
