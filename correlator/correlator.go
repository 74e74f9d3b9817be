// Package correlator turns OpenFlow's asynchronous reply-by-xid wire
// protocol into a synchronous request/response interface (spec.md §4.4): a
// caller's SendRequest or SendStatsRequest registers callbacks keyed by
// (datapath, reply class, version, xid), blocks on a completion channel, and
// is woken by whichever of onReply/onError/onDead/timeout fires first.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bassosimone/runtimex"

	"github.com/ofswitch/controller/datapath"
	"github.com/ofswitch/controller/event"
	"github.com/ofswitch/controller/ofp"
)

// ErrDatapathDisconnected completes every pending request on a datapath that
// has transitioned to DEAD.
var ErrDatapathDisconnected = errors.New("correlator: datapath disconnected")

// ErrTimeout completes a request whose deadline elapsed with no reply.
var ErrTimeout = errors.New("correlator: timed out waiting for reply")

// OFPError wraps an OFPT_ERROR matched to a pending request by its offending
// header, per spec.md §4.4.
type OFPError struct {
	Type ofp.Type
	Code uint16
}

func (e *OFPError) Error() string {
	return fmt.Sprintf("correlator: OFPT_ERROR type=%d code=%d", e.Type, e.Code)
}

type replyKey struct {
	connID  string
	class   ofp.ReplyClass
	version ofp.Version
	xid     uint32
}

type errKey struct {
	version ofp.Version
	msgType ofp.Type
	length  uint16
	xid     uint32
}

// pending is one outstanding request, spec.md §3's Pending Request record.
// It is registered under both byReply and byErrKey; whichever path
// completes it first wins (guarded by fired).
type pending struct {
	replyKey replyKey
	errKey   errKey

	done  chan struct{}
	timer *time.Timer

	mu      sync.Mutex
	fired   bool
	isLast  func(*ofp.Message) bool
	msgs    []*ofp.Message
	result  []*ofp.Message
	err     error
}

// Correlator is the process-wide reply matcher. One instance is shared by
// every Datapath; it is bound to the Inheritable handler index (so it sees
// every ProtocolMessage regardless of phase) and to the process-wide
// dispatcher-change queue (so it sees DEAD transitions).
type Correlator struct {
	logger *slog.Logger

	mu       sync.Mutex
	byReply  map[replyKey]*pending
	byErrKey map[errKey]*pending
}

// New creates an empty Correlator.
func New(log *slog.Logger) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	return &Correlator{
		logger:   log,
		byReply:  make(map[replyKey]*pending),
		byErrKey: make(map[errKey]*pending),
	}
}

// BindInheritable registers the Correlator's reply/error matcher on inh, so
// it observes a ProtocolMessage event under any dispatcher phase, DEAD
// included. Completing pending requests when a datapath dies is driven by
// BindChanges, not by this registration.
func (c *Correlator) BindInheritable(inh *event.Inheritable) {
	inh.Register(event.ClassProtocolMessage, event.HandlerFunc(c.onProtocolMessage))
}

// BindChanges registers the Correlator's onDead handler on the dispatcher
// that serves the process-wide dispatcher-change queue.
func (c *Correlator) BindChanges(changeDispatcher *event.Dispatcher, dead *event.Dispatcher) {
	changeDispatcher.Register(event.ClassDispatcherChange, event.HandlerFunc(
		func(ctx context.Context, ev event.Event) error {
			return c.onDispatcherChanged(ctx, ev, dead)
		}))
}

// SendRequest serializes msg, sends it, and blocks until a matching reply,
// error, datapath death, or timeout. Non-stats requests always complete on
// the first matching reply.
func (c *Correlator) SendRequest(ctx context.Context, dp *datapath.Datapath, msg *ofp.Message, timeout time.Duration) (*ofp.Message, error) {
	msgs, err := c.sendAndCollect(ctx, dp, msg, timeout, func(*ofp.Message) bool { return true })
	if err != nil {
		return nil, err
	}
	return msgs[0], nil
}

// SendStatsRequest serializes msg, sends it, and collects fragments until one
// arrives with OFPSF_REPLY_MORE cleared, per spec.md §4.4.
func (c *Correlator) SendStatsRequest(ctx context.Context, dp *datapath.Datapath, msg *ofp.Message, timeout time.Duration) ([]*ofp.Message, error) {
	return c.sendAndCollect(ctx, dp, msg, timeout, (*ofp.Message).IsLastFragment)
}

func (c *Correlator) sendAndCollect(ctx context.Context, dp *datapath.Datapath, msg *ofp.Message, timeout time.Duration, isLast func(*ofp.Message) bool) ([]*ofp.Message, error) {
	if err := dp.Serialize(msg); err != nil {
		return nil, err
	}
	class := msg.ReplyClass()
	runtimex.Assert(class != ofp.ReplyClassNone)

	p := &pending{
		replyKey: replyKey{connID: dp.ConnID(), class: class, version: msg.Version, xid: msg.XID},
		errKey:   errKey{version: msg.Version, msgType: msg.Type, length: uint16(len(msg.Buf)), xid: msg.XID},
		done:     make(chan struct{}),
		isLast:   isLast,
	}

	c.mu.Lock()
	_, dup := c.byReply[p.replyKey]
	runtimex.Assert(!dup) // duplicate xid registration is a programming bug
	c.byReply[p.replyKey] = p
	c.byErrKey[p.errKey] = p
	c.mu.Unlock()

	p.timer = time.AfterFunc(timeout, func() { c.complete(p, nil, ErrTimeout) })

	if err := dp.Send(msg); err != nil {
		c.complete(p, nil, err)
	}

	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		c.complete(p, nil, ctx.Err())
		return p.result, p.err
	}
}

// complete is the single path by which a pending request is resolved,
// whichever of onReply/onError/onDead/timeout gets there first; later
// callers are no-ops (spec.md §8: "callbacks never fire after unregister").
func (c *Correlator) complete(p *pending, result []*ofp.Message, err error) {
	p.mu.Lock()
	if p.fired {
		p.mu.Unlock()
		return
	}
	p.fired = true
	p.result = result
	p.err = err
	p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}

	c.mu.Lock()
	delete(c.byReply, p.replyKey)
	delete(c.byErrKey, p.errKey)
	c.mu.Unlock()

	close(p.done)
}

// onProtocolMessage matches incoming replies and errors against pending
// requests, per spec.md §4.4's matching rules.
func (c *Correlator) onProtocolMessage(ctx context.Context, ev event.Event) error {
	payload, ok := ev.Payload.(event.ProtocolMessagePayload)
	if !ok {
		return nil
	}
	dp, ok := payload.Datapath.(*datapath.Datapath)
	if !ok {
		return nil
	}
	msg, ok := payload.Message.(*ofp.Message)
	if !ok {
		return nil
	}

	if msg.Type == ofp.TypeError {
		c.matchError(dp, msg)
		return nil
	}
	c.matchReply(dp, msg)
	return nil
}

func (c *Correlator) matchReply(dp *datapath.Datapath, msg *ofp.Message) {
	class := msg.ReplyClass()
	if class == ofp.ReplyClassNone {
		return
	}
	rk := replyKey{connID: dp.ConnID(), class: class, version: msg.Version, xid: msg.XID}

	c.mu.Lock()
	p, ok := c.byReply[rk]
	c.mu.Unlock()
	if !ok {
		return // no registration: late/duplicate reply, discarded per spec.md §4.4
	}

	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	last := p.isLast(msg)
	msgs := append([]*ofp.Message(nil), p.msgs...)
	p.mu.Unlock()

	if !last {
		return
	}
	c.complete(p, msgs, nil)
}

func (c *Correlator) matchError(dp *datapath.Datapath, msg *ofp.Message) {
	body, ok := msg.Body.(*ofp.ErrorBody)
	if !ok || body.ErrType == ofp.ErrTypeHelloFailed {
		return // HELLO_FAILED is reserved for the handshake
	}
	if len(body.Data) < ofp.HeaderSize {
		return
	}
	hdr, err := ofp.ParseHeader(body.Data)
	if err != nil {
		return
	}

	ek := errKey{version: hdr.Version, msgType: hdr.Type, length: hdr.Length, xid: hdr.XID}
	c.mu.Lock()
	p, ok := c.byErrKey[ek]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.complete(p, nil, &OFPError{Type: body.ErrType, Code: body.Code})
}

// onDispatcherChanged completes every pending request on a datapath whose
// queue just transitioned to DEAD, per spec.md §4.4.
func (c *Correlator) onDispatcherChanged(ctx context.Context, ev event.Event, dead *event.Dispatcher) error {
	payload, ok := ev.Payload.(event.DispatcherChangedPayload)
	if !ok || payload.New != dead {
		return nil
	}
	dp, ok := payload.Queue.Aux().(*datapath.Datapath)
	if !ok {
		return nil
	}

	c.mu.Lock()
	var victims []*pending
	for rk, p := range c.byReply {
		if rk.connID == dp.ConnID() {
			victims = append(victims, p)
		}
	}
	c.mu.Unlock()

	for _, p := range victims {
		c.complete(p, nil, ErrDatapathDisconnected)
	}
	return nil
}
