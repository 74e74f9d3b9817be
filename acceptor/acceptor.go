// Package acceptor is the TCP listener spec.md §4 names: each accepted
// connection becomes a Datapath Connection, started on its own HANDSHAKE
// phase and handed to handshake/correlator/dpset wiring supplied by main.
package acceptor

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/ofswitch/controller/datapath"
	"github.com/ofswitch/controller/event"
	"github.com/ofswitch/controller/handshake"
	"github.com/ofswitch/controller/ofp"
)

// Acceptor binds a TCP listener and spawns one Datapath per accepted
// connection.
type Acceptor struct {
	listener net.Listener
	phases   *handshake.Phases
	changes  *event.Queue
	versions []ofp.Version
	logger   *slog.Logger

	wg sync.WaitGroup
}

// Listen binds addr and returns an Acceptor ready to Serve. changes is the
// process-wide dispatcher-change queue every per-connection event queue
// publishes DispatcherChanged onto.
func Listen(addr string, phases *handshake.Phases, changes *event.Queue, versions []ofp.Version, log *slog.Logger) (*Acceptor, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Acceptor{listener: ln, phases: phases, changes: changes, versions: versions, logger: log}, nil
}

// Addr returns the listener's bound address, useful when addr was ":0".
func (a *Acceptor) Addr() net.Addr { return a.listener.Addr() }

// Serve accepts connections until ctx is cancelled or the listener errors.
// Each accepted connection is spawned as its own Datapath and runs
// concurrently; Serve does not wait for them — call Shutdown for that.
func (a *Acceptor) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = a.listener.Close()
	}()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		a.spawn(ctx, conn)
	}
}

func (a *Acceptor) spawn(ctx context.Context, conn net.Conn) {
	eventQueue := event.NewQueue("dp:"+conn.RemoteAddr().String(), a.changes, a.logger)
	eventQueue.SetDispatcher(a.phases.Handshake)

	dp := datapath.New(conn, eventQueue, a.versions, a.logger)

	a.logger.InfoContext(ctx, "acceptor: connection accepted", slog.String("remote_addr", dp.RemoteAddr()))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		drainDone := make(chan struct{})
		go func() {
			defer close(drainDone)
			_ = eventQueue.Run(ctx)
		}()
		err := dp.Serve(ctx, a.phases.Dead)
		eventQueue.Close()
		<-drainDone
		if err != nil {
			a.logger.InfoContext(ctx, "acceptor: connection closed",
				slog.String("remote_addr", dp.RemoteAddr()), slog.Any("error", err))
		}
	}()
}

// Shutdown closes the listener and waits for every spawned connection's
// Serve call to return.
func (a *Acceptor) Shutdown() error {
	err := a.listener.Close()
	a.wg.Wait()
	return err
}
