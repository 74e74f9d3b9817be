package datapath

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassosimone/errclass"
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"

	"github.com/ofswitch/controller/core/logger"
	"github.com/ofswitch/controller/event"
	"github.com/ofswitch/controller/ofp"
)

// sendQueueCapacity bounds the per-datapath outbound backlog; Send returns
// ErrSendQueueFull rather than blocking once a peer stops draining it,
// matching spec.md §4.2's "blocking send on a full kernel buffer is
// acceptable" for the socket itself while keeping the in-process queue from
// growing unbounded when a peer is simply gone.
const sendQueueCapacity = 256

// Datapath is the per-switch connection actor spec.md §4.2 describes: it owns
// the socket, the recv/send/event-drain tasks, the xid generator, and the
// connection state every handshake and MAIN-phase handler reads or writes.
type Datapath struct {
	connID     string
	conn       net.Conn
	remoteAddr string
	logger     *slog.Logger

	recvQueue  chan *ofp.Message
	sendQueue  chan *ofp.Message
	eventQueue *event.Queue

	xid uint32 // accessed only via atomic ops; see SetXid

	active    atomic.Bool
	closeOnce sync.Once

	versionMu         sync.RWMutex
	negotiatedVersion ofp.Version
	supportedVersions []ofp.Version

	featuresMu sync.RWMutex
	features   *SwitchFeatures
	ports      map[uint16]ofp.Port

	descMu sync.RWMutex
	desc   string
}

// New wraps an accepted connection as a Datapath. eventQueue is freshly
// constructed by the caller (its dispatcher-change queue wired to the
// process-wide one); the caller binds it to the HANDSHAKE dispatcher, before
// or after New, and in any case before Serve is invoked.
func New(conn net.Conn, eventQueue *event.Queue, supportedVersions []ofp.Version, log *slog.Logger) *Datapath {
	if log == nil {
		log = slog.Default()
	}
	dp := &Datapath{
		connID:            uuid.NewString(),
		conn:              conn,
		remoteAddr:        conn.RemoteAddr().String(),
		logger:            log,
		recvQueue:         make(chan *ofp.Message, sendQueueCapacity),
		sendQueue:         make(chan *ofp.Message, sendQueueCapacity),
		eventQueue:        eventQueue,
		supportedVersions: append([]ofp.Version(nil), supportedVersions...),
		ports:             make(map[uint16]ofp.Port),
	}
	dp.active.Store(true)
	eventQueue.SetAux(dp)
	return dp
}

// ConnID is a process-local connection identifier (a UUIDv4, not the
// OpenFlow datapath id) used to key correlator state and log correlation
// before FEATURES_REPLY has assigned a real DatapathID.
func (dp *Datapath) ConnID() string { return dp.connID }

// RemoteAddr returns the peer's address string.
func (dp *Datapath) RemoteAddr() string { return dp.remoteAddr }

// IsActive reports whether the connection is still considered live. Once
// false, no further events are enqueued and all three tasks are terminating
// or terminated.
func (dp *Datapath) IsActive() bool { return dp.active.Load() }

// Close marks the connection inactive and closes the underlying socket,
// unblocking any task parked in conn.Read or conn.Write. Idempotent and safe
// to call from any of the three tasks, from a handler (version-negotiation
// failure), or from Serve's own ctx-cancellation watcher.
func (dp *Datapath) Close() error {
	dp.active.Store(false)
	var err error
	dp.closeOnce.Do(func() { err = dp.conn.Close() })
	return err
}

// CloseAfterSend marks the connection inactive to new callers and arranges
// for the socket to close only once every message already queued ahead of
// this call has been written — so a just-sent error reply (HELLO_FAILED)
// reaches the wire before the connection drops, instead of racing an
// immediate Close against the send loop's next write. Falls back to an
// immediate Close if the send queue has no room for the marker.
func (dp *Datapath) CloseAfterSend() error {
	if !dp.active.CompareAndSwap(true, false) {
		return nil
	}
	select {
	case dp.sendQueue <- nil:
		return nil
	default:
		return dp.Close()
	}
}

// EventQueue returns the per-connection event queue driving this datapath's
// phase dispatch.
func (dp *Datapath) EventQueue() *event.Queue { return dp.eventQueue }

// SupportedVersions returns the protocol versions this controller will
// negotiate. Serve advertises the last entry in its HELLO, so the list is
// expected in ascending order; negotiation scans it for the maximum itself.
func (dp *Datapath) SupportedVersions() []ofp.Version { return dp.supportedVersions }

// NegotiatedVersion returns the protocol version chosen during HELLO, or 0
// before negotiation completes.
func (dp *Datapath) NegotiatedVersion() ofp.Version {
	dp.versionMu.RLock()
	defer dp.versionMu.RUnlock()
	return dp.negotiatedVersion
}

// SetNegotiatedVersion records the version chosen by the HELLO handler.
func (dp *Datapath) SetNegotiatedVersion(v ofp.Version) {
	dp.versionMu.Lock()
	dp.negotiatedVersion = v
	dp.versionMu.Unlock()
}

// Features returns the FEATURES_REPLY snapshot, or nil before the
// SWITCH_FEATURES phase completes. Per spec.md §3, handlers in earlier
// phases must not call this.
func (dp *Datapath) Features() *SwitchFeatures {
	dp.featuresMu.RLock()
	defer dp.featuresMu.RUnlock()
	return dp.features
}

// SetFeatures stores the FEATURES_REPLY snapshot and seeds the live port
// table from it. Called once, by the SWITCH_FEATURES phase handler.
func (dp *Datapath) SetFeatures(f *SwitchFeatures) {
	dp.featuresMu.Lock()
	defer dp.featuresMu.Unlock()
	dp.features = f
	for _, p := range f.Ports {
		dp.ports[p.PortNo] = p
	}
}

// Ports returns a snapshot of the datapath's live port table: FEATURES_REPLY
// seeded with PORT_STATUS add/modify/delete applied in MAIN, per spec.md §8's
// invariant on datapath.ports.
func (dp *Datapath) Ports() []ofp.Port {
	dp.featuresMu.RLock()
	defer dp.featuresMu.RUnlock()
	out := make([]ofp.Port, 0, len(dp.ports))
	for _, p := range dp.ports {
		out = append(out, p)
	}
	return out
}

// ApplyPortStatus mutates the port table per a PORT_STATUS message, the only
// mutation path for dp.ports outside of SetFeatures (spec.md §4.3's MAIN row).
func (dp *Datapath) ApplyPortStatus(status *ofp.PortStatusBody) {
	dp.featuresMu.Lock()
	defer dp.featuresMu.Unlock()
	switch status.Reason {
	case ofp.PortReasonAdd, ofp.PortReasonModify:
		dp.ports[status.Desc.PortNo] = status.Desc
	case ofp.PortReasonDelete:
		delete(dp.ports, status.Desc.PortNo)
	}
}

// SetDesc records the vendor description string recovered from
// DESC_STATS_REPLY.
func (dp *Datapath) SetDesc(desc string) {
	dp.descMu.Lock()
	dp.desc = desc
	dp.descMu.Unlock()
}

// Desc returns the vendor description, or "" before DESC completes.
func (dp *Datapath) Desc() string {
	dp.descMu.RLock()
	defer dp.descMu.RUnlock()
	return dp.desc
}

// SetXid assigns the next transaction id: xid = (xid+1) & MaxXID, matching
// spec.md §4.2. Called only from Serialize so every wire message gets a
// unique, strictly increasing (mod 2^32) xid.
func (dp *Datapath) SetXid(msg *ofp.Message) {
	if msg.XID != 0 {
		return
	}
	msg.XID = atomic.AddUint32(&dp.xid, 1) & ofp.MaxXID
}

// Serialize assigns an xid (unless already set) and fills msg.Buf via the
// wire codec.
func (dp *Datapath) Serialize(msg *ofp.Message) error {
	dp.SetXid(msg)
	buf, err := ofp.Encode(msg)
	if err != nil {
		return err
	}
	msg.Buf = buf
	return nil
}

// Send serializes msg (if not already) and enqueues it on the send queue.
// Returns ErrNotActive once the connection has gone inactive, and
// ErrSendQueueFull if the peer isn't draining fast enough.
func (dp *Datapath) Send(msg *ofp.Message) error {
	if !dp.active.Load() {
		return ErrNotActive
	}
	if msg.Buf == nil {
		if err := dp.Serialize(msg); err != nil {
			return err
		}
	}
	select {
	case dp.sendQueue <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Serve spawns the send and event-drain tasks, emits HELLO, then runs the
// recv loop inline until the socket closes or ctx is cancelled. On return,
// the other two tasks are stopped, joined, and the event queue has been
// moved to the DEAD dispatcher, releasing correlator waiters.
//
// dead is the terminal dispatcher (process-wide singleton) the event queue
// transitions to once every task has stopped.
func (dp *Datapath) Serve(ctx context.Context, dead *event.Dispatcher) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Watching ctx.Done() and closing the socket is what makes shutdown
	// actually interrupt recvLoop's blocked conn.Read: cancellation alone
	// only stops the loop at its next ctx.Err() check, which never comes if
	// the peer is idle but still connected.
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = dp.Close()
		case <-stopWatch:
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); dp.sendLoop(ctx) }()
	go func() { defer wg.Done(); dp.drainLoop(ctx) }()

	runtimex.Assert(dp.NegotiatedVersion() == 0)
	maxVersion := dp.supportedVersions[len(dp.supportedVersions)-1]
	if err := dp.Send(ofp.NewHello(maxVersion)); err != nil {
		dp.logger.ErrorContext(ctx, "datapath: failed to send initial HELLO", logger.Error(err))
	}

	err := dp.recvLoop(ctx)

	_ = dp.Close()
	cancel()
	close(stopWatch)
	wg.Wait()

	close(dp.recvQueue)
	dp.eventQueue.SetDispatcher(dead)

	return err
}

func (dp *Datapath) recvLoop(ctx context.Context) error {
	buf := make([]byte, 0, ofp.MsgSizeMax)
	chunk := make([]byte, 4096)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for len(buf) < ofp.HeaderSize {
			n, err := dp.conn.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if err != nil {
				return dp.closeRecv(ctx, err)
			}
		}

		hdr, err := ofp.ParseHeader(buf)
		if err == nil && int(hdr.Length) < ofp.HeaderSize {
			err = fmt.Errorf("ofp: header length %d is shorter than the header itself", hdr.Length)
		}
		if err != nil {
			dp.logger.ErrorContext(ctx, "datapath: malformed header, closing connection", logger.Error(err))
			return dp.closeRecv(ctx, err)
		}

		for len(buf) < int(hdr.Length) {
			n, err := dp.conn.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if err != nil {
				return dp.closeRecv(ctx, err)
			}
		}

		msgBuf := buf[:hdr.Length]
		buf = append([]byte(nil), buf[hdr.Length:]...)

		msg, err := ofp.Decode(hdr.Version, hdr.Type, hdr.Length, hdr.XID, msgBuf)
		if err != nil {
			dp.logger.WarnContext(ctx, "datapath: dropping undecodable message", logger.Error(err))
			continue
		}

		select {
		case dp.recvQueue <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (dp *Datapath) closeRecv(ctx context.Context, err error) error {
	class := errclass.New(err)
	dp.logger.InfoContext(ctx, "datapath: connection closed",
		slog.String("remote_addr", dp.remoteAddr),
		slog.String("err_class", class),
		logger.Error(err))
	_ = dp.Close()
	return err
}

func (dp *Datapath) sendLoop(ctx context.Context) {
	for {
		select {
		case msg, ok := <-dp.sendQueue:
			if !ok {
				return
			}
			if msg == nil {
				// Poison pill from CloseAfterSend: every write queued ahead
				// of it has already been flushed above.
				_ = dp.Close()
				return
			}
			if _, err := dp.conn.Write(msg.Buf); err != nil {
				dp.logger.WarnContext(ctx, "datapath: send failed",
					slog.String("err_class", errclass.New(err)), logger.Error(err))
				_ = dp.Close()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (dp *Datapath) drainLoop(ctx context.Context) {
	for {
		select {
		case msg, ok := <-dp.recvQueue:
			if !ok {
				return
			}
			if err := dp.eventQueue.Enqueue(event.NewProtocolMessage(dp, msg)); err != nil {
				dp.logger.DebugContext(ctx, "datapath: event dropped after queue closed", logger.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// WaitInactive blocks until the connection is no longer active or timeout
// elapses, for tests and callers that need to observe teardown completion.
func (dp *Datapath) WaitInactive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !dp.IsActive() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return !dp.IsActive()
}
