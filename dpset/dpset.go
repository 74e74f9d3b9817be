// Package dpset is the process-wide registry of live datapaths, keyed by
// OpenFlow datapath id (spec.md §4.5). It is supplemented (SPEC_FULL.md §12,
// grounded on ryu/controller/dpset.py) with a dp_type side-table that may be
// populated before or after a connection exists.
package dpset

import (
	"context"
	"sync"

	"github.com/ofswitch/controller/datapath"
	"github.com/ofswitch/controller/event"
)

// Type classifies a datapath's role, mirroring ryu/controller/dp_type.py.
type Type string

const (
	TypeUnknown     Type = "UNKNOWN"
	TypeCoreNetwork Type = "CORE_NETWORK"
	TypeEdgeNetwork Type = "EDGE_NETWORK"
	TypeEdgeVM      Type = "EDGE_VM"
)

// DPSet is the process-wide datapath registry. Construct one instance at
// startup; it is safe for concurrent use from every Datapath's handshake
// completion and any number of readers.
type DPSet struct {
	events *event.Queue

	mu    sync.RWMutex
	dps   map[uint64]*datapath.Datapath
	types map[uint64]Type
}

// New creates an empty DPSet. events is the process-wide queue EventDP
// lifecycle events publish onto; it must already have a dispatcher bound via
// SetDispatcher before any Register/Unregister call, or those events are
// silently dropped per event.Queue's closed/no-dispatcher semantics.
func New(events *event.Queue) *DPSet {
	return &DPSet{
		events: events,
		dps:    make(map[uint64]*datapath.Datapath),
		types:  make(map[uint64]Type),
	}
}

// SetType records dpid's type in the side-table keyed by dpid. It is visible
// through Type at once, whether or not the datapath is registered yet;
// nothing is copied onto the Datapath itself.
func (s *DPSet) SetType(dpid uint64, t Type) {
	s.mu.Lock()
	s.types[dpid] = t
	s.mu.Unlock()
}

// Type returns dpid's recorded type, or TypeUnknown if none was set.
func (s *DPSet) Type(dpid uint64) Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.types[dpid]; ok {
		return t
	}
	return TypeUnknown
}

// Register adds dp, keyed by its negotiated FEATURES_REPLY datapath id, and
// emits EventDP{dp, enter=true}. Any pending type set via SetType before this
// call is already visible through Type; registration does not need to flush
// anything onto dp itself since the type side-table is keyed by dpid, not
// carried on the Datapath.
func (s *DPSet) Register(dp *datapath.Datapath) {
	f := dp.Features()
	if f == nil {
		return // handshake.Phases only calls this from OnMainEntry, after FEATURES_REPLY
	}

	s.mu.Lock()
	s.dps[f.DatapathID] = dp
	s.mu.Unlock()

	_ = s.events.Enqueue(event.NewDatapathEnter(dp))
}

// Unregister removes dpid's entry, if present, and emits
// EventDP{dp, enter=false}. Idempotent.
func (s *DPSet) Unregister(dpid uint64) {
	s.mu.Lock()
	dp, ok := s.dps[dpid]
	if ok {
		delete(s.dps, dpid)
	}
	s.mu.Unlock()

	if ok {
		_ = s.events.Enqueue(event.NewDatapathLeave(dp))
	}
}

// Get returns the live datapath for dpid, or nil if not registered.
func (s *DPSet) Get(dpid uint64) *datapath.Datapath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dps[dpid]
}

// All returns a snapshot of every currently registered datapath.
func (s *DPSet) All() map[uint64]*datapath.Datapath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint64]*datapath.Datapath, len(s.dps))
	for k, v := range s.dps {
		out[k] = v
	}
	return out
}

// WatchLeave returns a handler for the dispatcher that serves the
// process-wide dispatcher-change queue (where DispatcherChanged events are
// published) that unregisters a datapath once it disconnects — driven off
// the same DispatcherChanged→DEAD signal the Correlator consumes, so DPSet
// stays consistent without polling.
func (s *DPSet) WatchLeave(dead *event.Dispatcher) event.HandlerFunc {
	return func(ctx context.Context, ev event.Event) error {
		payload, ok := ev.Payload.(event.DispatcherChangedPayload)
		if !ok || payload.New != dead {
			return nil
		}
		dp, ok := payload.Queue.Aux().(*datapath.Datapath)
		if !ok {
			return nil
		}
		f := dp.Features()
		if f == nil {
			return nil
		}
		s.Unregister(f.DatapathID)
		return nil
	}
}
