package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Class identifies an event's variant for dispatch table lookups. Dispatch
// matches on exact Class, never on a handler-side type hierarchy.
type Class string

const (
	ClassProtocolMessage  Class = "ProtocolMessage"
	ClassDispatcherChange Class = "DispatcherChanged"
	ClassDatapathEnter    Class = "DatapathEnter"
	ClassDatapathLeave    Class = "DatapathLeave"
	ClassGeneric          Class = "Generic"
)

// Event is an immutable, tagged record dispatched through a Dispatcher.
// Payload holds one of the *Payload types declared below, selected by Class.
type Event struct {
	ID        string
	Class     Class
	CreatedAt time.Time
	Payload   any
}

// ProtocolMessagePayload wraps a decoded wire message together with the
// datapath it arrived on. Datapath is typed any to avoid an import cycle
// with the datapath package; handlers type-assert it to *datapath.Datapath.
type ProtocolMessagePayload struct {
	Datapath any
	Message  any
}

// DispatcherChangedPayload is published on a queue's owning dispatcher-change
// queue immediately before any event dispatches under New.
type DispatcherChangedPayload struct {
	Queue *Queue
	Old   *Dispatcher
	New   *Dispatcher
}

// DatapathEnterPayload / DatapathLeavePayload announce connection lifecycle
// on the process-wide network queue.
type DatapathEnterPayload struct {
	Datapath any
}

type DatapathLeavePayload struct {
	Datapath any
}

// GenericPayload carries an application-defined key/value pair for events
// that do not fit the built-in variants.
type GenericPayload struct {
	Key  string
	Data any
}

func newEvent(class Class, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Class:     class,
		CreatedAt: time.Now(),
		Payload:   payload,
	}
}

// NewProtocolMessage builds a ProtocolMessage event wrapping msg and the
// datapath it was decoded on.
func NewProtocolMessage(dp, msg any) Event {
	return newEvent(ClassProtocolMessage, ProtocolMessagePayload{Datapath: dp, Message: msg})
}

// NewDispatcherChanged builds a DispatcherChanged event.
func NewDispatcherChanged(queue *Queue, old, new *Dispatcher) Event {
	return newEvent(ClassDispatcherChange, DispatcherChangedPayload{Queue: queue, Old: old, New: new})
}

// NewDatapathEnter / NewDatapathLeave build connection lifecycle events.
func NewDatapathEnter(dp any) Event {
	return newEvent(ClassDatapathEnter, DatapathEnterPayload{Datapath: dp})
}

func NewDatapathLeave(dp any) Event {
	return newEvent(ClassDatapathLeave, DatapathLeavePayload{Datapath: dp})
}

// NewGeneric builds an application-defined event.
func NewGeneric(key string, data any) Event {
	return newEvent(ClassGeneric, GenericPayload{Key: key, Data: data})
}

// String renders the event for logging.
func (e Event) String() string {
	return fmt.Sprintf("Event{id=%s class=%s}", e.ID, e.Class)
}
