package admin

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ofswitch/controller/datapath"
	"github.com/ofswitch/controller/event"
)

// eventDTO is the wire shape of one line sent down /admin/events.
type eventDTO struct {
	Kind       string `json:"kind"` // "datapath_enter" | "datapath_leave" | "dispatcher_changed"
	DatapathID string `json:"datapath_id,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Queue      string `json:"queue,omitempty"`
	Old        string `json:"old,omitempty"`
	New        string `json:"new,omitempty"`
}

// broadcaster fans out controller lifecycle events to every connected
// /admin/events websocket client. Each subscriber gets its own bounded
// channel; when a slow client's channel is full, the event is dropped for
// that client (which stays subscribed) rather than blocking the dispatch
// that fed it.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan []byte]struct{})}
}

func (b *broadcaster) subscribe() chan []byte {
	ch := make(chan []byte, 32)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broadcaster) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

func (b *broadcaster) publish(dto eventDTO) {
	data, err := json.Marshal(dto)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

// onDatapathEnter is registered by Surface.Bind on the process-wide changes
// dispatcher that DPSet's lifecycle events are dispatched through.
func (b *broadcaster) onDatapathEnter(ctx context.Context, ev event.Event) error {
	payload, ok := ev.Payload.(event.DatapathEnterPayload)
	if !ok {
		return nil
	}
	dp, ok := payload.Datapath.(*datapath.Datapath)
	if !ok {
		return nil
	}
	b.publish(eventDTO{Kind: "datapath_enter", DatapathID: datapathIDOf(dp), RemoteAddr: dp.RemoteAddr()})
	return nil
}

func (b *broadcaster) onDatapathLeave(ctx context.Context, ev event.Event) error {
	payload, ok := ev.Payload.(event.DatapathLeavePayload)
	if !ok {
		return nil
	}
	dp, ok := payload.Datapath.(*datapath.Datapath)
	if !ok {
		return nil
	}
	b.publish(eventDTO{Kind: "datapath_leave", DatapathID: datapathIDOf(dp), RemoteAddr: dp.RemoteAddr()})
	return nil
}

// onDispatcherChanged is registered on the process-wide changes dispatcher.
func (b *broadcaster) onDispatcherChanged(ctx context.Context, ev event.Event) error {
	payload, ok := ev.Payload.(event.DispatcherChangedPayload)
	if !ok {
		return nil
	}
	dto := eventDTO{Kind: "dispatcher_changed", Queue: payload.Queue.Name()}
	if payload.Old != nil {
		dto.Old = payload.Old.Name()
	}
	if payload.New != nil {
		dto.New = payload.New.Name()
	}
	b.publish(dto)
	return nil
}

func datapathIDOf(dp *datapath.Datapath) string {
	f := dp.Features()
	if f == nil {
		return ""
	}
	return formatDatapathID(f.DatapathID)
}
