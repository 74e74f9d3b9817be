package event

import "sync"

// Inheritable is a second handler index consulted by every Dispatcher in
// addition to its own phase-scoped table. The Reply Correlator registers its
// reply/error matcher here, and the handshake its echo and error handlers,
// once, so they observe events under every phase a Datapath's queue passes
// through, DEAD included — registering separately on each phase Dispatcher
// would miss phases created later. Completing pending requests on disconnect
// does not go through this index: the Correlator does that from its handler
// on the dispatcher-change dispatcher.
type Inheritable struct {
	mu    sync.RWMutex
	table map[Class][]entry
}

// NewInheritable creates an empty inheritable handler index.
func NewInheritable() *Inheritable {
	return &Inheritable{table: make(map[Class][]entry)}
}

// Register adds h for class. Idempotent by (class, handler) identity.
func (r *Inheritable) Register(class Class, h Handler) {
	key := handlerKey(h)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.table[class] {
		if e.key == key {
			return
		}
	}
	r.table[class] = append(r.table[class], entry{key: key, handler: h})
}

// Unregister removes h from class's list, if present.
func (r *Inheritable) Unregister(class Class, h Handler) {
	key := handlerKey(h)

	r.mu.Lock()
	defer r.mu.Unlock()

	handlers := r.table[class]
	for i, e := range handlers {
		if e.key == key {
			r.table[class] = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

func (r *Inheritable) handlersFor(class Class) []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]entry(nil), r.table[class]...)
}
