// Package handshake wires spec.md §4.3's phase chain entirely through
// event.Dispatcher transitions: HANDSHAKE → SWITCH_FEATURES → DESC →
// CONFIG_HOOK → BARRIER_REQUEST → BARRIER_REPLY → MAIN → DEAD. Each phase is
// a process-wide singleton *event.Dispatcher; a Datapath's event queue moves
// between them as its connection progresses, which makes dispatching an
// event to a handler that hasn't been reached yet structurally impossible.
package handshake

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ofswitch/controller/datapath"
	"github.com/ofswitch/controller/event"
	"github.com/ofswitch/controller/ofp"
)

// descEventKey tags the synthetic event DESC re-queues onto CONFIG_HOOK,
// carrying the just-recorded vendor description string.
const descEventKey = "desc_stats_reply"

// Phases holds the eight process-wide dispatcher singletons spec.md §3's
// invariant names, plus the Inheritable handler index the Correlator and the
// echo/error handlers attach to so they observe every phase (DEAD included).
type Phases struct {
	Handshake      *event.Dispatcher
	SwitchFeatures *event.Dispatcher
	Desc           *event.Dispatcher
	ConfigHook     *event.Dispatcher
	BarrierRequest *event.Dispatcher
	BarrierReply   *event.Dispatcher
	Main           *event.Dispatcher
	Dead           *event.Dispatcher

	Inheritable *event.Inheritable

	// OnMainEntry, if set, is invoked once a Datapath completes the
	// handshake and enters MAIN — the hook DPSet registration wires into,
	// since handshake must not import dpset (dpset is a northbound registry,
	// not a connection-runtime concern).
	OnMainEntry func(dp *datapath.Datapath)

	logger  *slog.Logger
	started bool
}

// New constructs the phase chain and registers every fixed (non-application)
// transition handler. The CONFIG_HOOK → BARRIER_REQUEST advance handler is
// deliberately not registered here — call Start once the application has
// finished registering its own CONFIG_HOOK handlers (spec.md §4.3: "framework
// then re-queues the synthetic event" only after applications have had a
// chance to act on it).
func New(log *slog.Logger) *Phases {
	if log == nil {
		log = slog.Default()
	}
	inh := event.NewInheritable()
	p := &Phases{
		Handshake:      event.NewDispatcher("HANDSHAKE", inh, log),
		SwitchFeatures: event.NewDispatcher("SWITCH_FEATURES", inh, log),
		Desc:           event.NewDispatcher("DESC", inh, log),
		ConfigHook:     event.NewDispatcher("CONFIG_HOOK", inh, log),
		BarrierRequest: event.NewDispatcher("BARRIER_REQUEST", inh, log),
		BarrierReply:   event.NewDispatcher("BARRIER_REPLY", inh, log),
		Main:           event.NewDispatcher("MAIN", inh, log),
		Dead:           event.NewDispatcher("DEAD", inh, log),
		Inheritable:    inh,
		logger:         log,
	}

	p.registerEchoAndError()
	p.Handshake.Register(event.ClassProtocolMessage, event.HandlerFunc(p.onHello))
	p.SwitchFeatures.Register(event.ClassProtocolMessage, event.HandlerFunc(p.onFeaturesReply))
	p.Desc.Register(event.ClassProtocolMessage, event.HandlerFunc(p.onDescStatsReply))
	p.BarrierReply.Register(event.ClassProtocolMessage, event.HandlerFunc(p.onBarrierReply))
	p.Main.Register(event.ClassProtocolMessage, event.HandlerFunc(p.onPortStatus))

	return p
}

// Start finalizes CONFIG_HOOK by registering the framework's own
// advance-to-BARRIER_REQUEST handler last, so it runs after every
// application-registered CONFIG_HOOK handler for the same synthetic event.
// Call it once, after application wiring and before accepting connections.
func (p *Phases) Start() {
	if p.started {
		return
	}
	p.started = true
	p.ConfigHook.Register(event.ClassGeneric, event.HandlerFunc(p.onConfigHookDone))
}

// onHello negotiates version = min(ourMax, peer.version). If the chosen
// version is not among SupportedVersions, sends HELLO_FAILED/INCOMPATIBLE
// and marks the connection inactive; otherwise sends FEATURES_REQUEST and
// advances to SWITCH_FEATURES.
func (p *Phases) onHello(ctx context.Context, ev event.Event) error {
	dp, msg, ok := protocolMessage(ev)
	if !ok || msg.Type != ofp.TypeHello {
		return nil
	}

	version := negotiate(dp.SupportedVersions(), msg.Version)
	if version == 0 {
		p.logger.WarnContext(ctx, "handshake: unsupported version",
			slog.String("remote_addr", dp.RemoteAddr()), slog.Any("peer_version", msg.Version))
		_ = dp.Send(ofp.NewHelloFailed(msg.Version, ofp.HelloFailedIncompatible,
			fmt.Sprintf("unsupported version 0x%x", uint8(msg.Version))))
		// CloseAfterSend lets the HELLO_FAILED reply reach the wire before
		// the socket drops, then unblocks the recv loop's conn.Read so the
		// connection actually closes (spec.md §8 scenario 2) instead of
		// re-dispatching the same failed HELLO on every subsequent byte.
		_ = dp.CloseAfterSend()
		return datapath.ErrUnsupportedVersion
	}

	dp.SetNegotiatedVersion(version)
	p.logger.InfoContext(ctx, "handshake: version negotiated",
		slog.String("remote_addr", dp.RemoteAddr()), slog.Any("version", version))

	if err := dp.Send(ofp.NewFeaturesRequest(version)); err != nil {
		return err
	}
	dp.EventQueue().SetDispatcher(p.SwitchFeatures)
	return nil
}

// onFeaturesReply stores datapathId/ports/features and advances to DESC.
func (p *Phases) onFeaturesReply(ctx context.Context, ev event.Event) error {
	dp, msg, ok := protocolMessage(ev)
	if !ok || msg.Type != ofp.TypeFeaturesReply {
		return nil
	}
	body := msg.Body.(*ofp.FeaturesReplyBody)
	dp.SetFeatures(datapath.FeaturesFromReply(body))

	p.logger.InfoContext(ctx, "handshake: features received",
		slog.Uint64("datapath_id", body.DatapathID), slog.Int("n_ports", len(body.Ports)))

	if err := dp.RequestDescStats(); err != nil {
		return err
	}
	dp.EventQueue().SetDispatcher(p.Desc)
	return nil
}

// onDescStatsReply records the vendor description, advances to CONFIG_HOOK,
// then re-queues a synthetic event so CONFIG_HOOK handlers observe it.
func (p *Phases) onDescStatsReply(ctx context.Context, ev event.Event) error {
	dp, msg, ok := protocolMessage(ev)
	if !ok || msg.Type != ofp.TypeStatsReply {
		return nil
	}
	body, ok := msg.Body.(*ofp.StatsReplyBody)
	if !ok || body.StatsType != ofp.StatsTypeDesc {
		return nil
	}
	desc := string(body.Body)
	dp.SetDesc(desc)

	dp.EventQueue().SetDispatcher(p.ConfigHook)
	return dp.EventQueue().Enqueue(event.NewGeneric(descEventKey, dp))
}

// onConfigHookDone is the framework's own CONFIG_HOOK advance handler,
// registered last by Start so every application handler for descEventKey
// runs first. It sends BARRIER_REQUEST and advances to BARRIER_REQUEST.
func (p *Phases) onConfigHookDone(ctx context.Context, ev event.Event) error {
	payload, ok := ev.Payload.(event.GenericPayload)
	if !ok || payload.Key != descEventKey {
		return nil
	}
	dp, ok := payload.Data.(*datapath.Datapath)
	if !ok {
		return nil
	}

	if err := dp.Barrier(); err != nil {
		return err
	}
	// BARRIER_REQUEST has no handler of its own (spec.md §4.3): its entry
	// action is the send above, and it advances to BARRIER_REPLY
	// immediately rather than waiting on an event.
	dp.EventQueue().SetDispatcher(p.BarrierRequest)
	dp.EventQueue().SetDispatcher(p.BarrierReply)
	return nil
}

// onBarrierReply completes the handshake and advances to MAIN.
func (p *Phases) onBarrierReply(ctx context.Context, ev event.Event) error {
	dp, msg, ok := protocolMessage(ev)
	if !ok || msg.Type != ofp.TypeBarrierReply {
		return nil
	}

	dp.EventQueue().SetDispatcher(p.Main)
	p.logger.InfoContext(ctx, "handshake: complete, entering MAIN",
		slog.String("remote_addr", dp.RemoteAddr()))

	if p.OnMainEntry != nil {
		p.OnMainEntry(dp)
	}
	return nil
}

// onPortStatus mutates datapath.ports per spec.md §4.3's MAIN row.
func (p *Phases) onPortStatus(ctx context.Context, ev event.Event) error {
	dp, msg, ok := protocolMessage(ev)
	if !ok || msg.Type != ofp.TypePortStatus {
		return nil
	}
	dp.ApplyPortStatus(msg.Body.(*ofp.PortStatusBody))
	return nil
}

func protocolMessage(ev event.Event) (*datapath.Datapath, *ofp.Message, bool) {
	if ev.Class != event.ClassProtocolMessage {
		return nil, nil, false
	}
	payload, ok := ev.Payload.(event.ProtocolMessagePayload)
	if !ok {
		return nil, nil, false
	}
	dp, ok := payload.Datapath.(*datapath.Datapath)
	if !ok {
		return nil, nil, false
	}
	msg, ok := payload.Message.(*ofp.Message)
	if !ok {
		return nil, nil, false
	}
	return dp, msg, true
}

// negotiate returns min(ourMax, peerVersion) if that version is among
// supported, else 0. spec.md §9 closes the "greater than our max" open
// question this way.
func negotiate(supported []ofp.Version, peer ofp.Version) ofp.Version {
	var ourMax ofp.Version
	for _, v := range supported {
		if v > ourMax {
			ourMax = v
		}
	}
	chosen := peer
	if ourMax < chosen {
		chosen = ourMax
	}
	for _, v := range supported {
		if v == chosen {
			return chosen
		}
	}
	return 0
}
