package event

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
)

// handlerKey returns a comparable identity for h, used to dedup
// register/unregister calls. Plain functions (the common case — handlers
// registered via HandlerFunc) are keyed by their code pointer since func
// values themselves are not comparable; anything else is keyed by the
// interface value directly, which requires the underlying type be
// comparable (true of every pointer-receiver handler in this codebase).
func handlerKey(h Handler) any {
	v := reflect.ValueOf(h)
	if v.Kind() == reflect.Func {
		return v.Pointer()
	}
	return h
}

type entry struct {
	key     any
	handler Handler
}

// Dispatcher is a named, phase-scoped registry mapping event classes to
// ordered handler lists. Dispatchers are process-global singletons with
// static lifetime — construct them once at startup and never recreate them.
type Dispatcher struct {
	name        string
	mu          sync.RWMutex
	table       map[Class][]entry
	inheritable *Inheritable
	logger      *slog.Logger
}

// NewDispatcher creates a named Dispatcher. Name is used only for logging.
// inheritable may be nil, in which case this dispatcher consults no
// inheritable handlers — use NewDispatcher with a shared *Inheritable to
// join a phase chain the Correlator observes across every phase.
func NewDispatcher(name string, inheritable *Inheritable, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		name:        name,
		table:       make(map[Class][]entry),
		inheritable: inheritable,
		logger:      logger,
	}
}

// Name returns the dispatcher's phase name (e.g. "MAIN").
func (d *Dispatcher) Name() string { return d.name }

// Register adds h to the handler list for class, in registration order.
// Idempotent by (class, handler) identity — registering the same handler
// twice for the same class is a no-op.
func (d *Dispatcher) Register(class Class, h Handler) {
	key := handlerKey(h)

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range d.table[class] {
		if e.key == key {
			return
		}
	}
	d.table[class] = append(d.table[class], entry{key: key, handler: h})
}

// Unregister removes h from class's handler list, if present.
func (d *Dispatcher) Unregister(class Class, h Handler) {
	key := handlerKey(h)

	d.mu.Lock()
	defer d.mu.Unlock()

	handlers := d.table[class]
	for i, e := range handlers {
		if e.key == key {
			d.table[class] = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every handler registered for ev's exact class, in
// registration order. A handler's panic or returned error is logged and does
// not prevent subsequent handlers from running.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.mu.RLock()
	handlers := append([]entry(nil), d.table[ev.Class]...)
	d.mu.RUnlock()

	if d.inheritable != nil {
		handlers = append(handlers, d.inheritable.handlersFor(ev.Class)...)
	}

	for _, e := range handlers {
		d.invoke(ctx, e.handler, ev)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "event handler panicked",
				slog.String("dispatcher", d.name),
				slog.String("event_class", string(ev.Class)),
				slog.Any("panic", r))
		}
	}()

	if err := h.Handle(ctx, ev); err != nil {
		d.logger.ErrorContext(ctx, "event handler failed",
			slog.String("dispatcher", d.name),
			slog.String("event_class", string(ev.Class)),
			slog.String("error", err.Error()))
	}
}
