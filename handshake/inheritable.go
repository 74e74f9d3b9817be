package handshake

import (
	"context"
	"log/slog"

	"github.com/ofswitch/controller/event"
	"github.com/ofswitch/controller/ofp"
)

// registerEchoAndError attaches the two inheritable handlers spec.md §4.3
// names: echo is always answered, and every OFPT_ERROR is logged. Errors
// other than HELLO_FAILED are left for the Correlator to match; the
// Correlator ignores HELLO_FAILED, which is only logged here.
func (p *Phases) registerEchoAndError() {
	p.Inheritable.Register(event.ClassProtocolMessage, event.HandlerFunc(p.onEchoRequest))
	p.Inheritable.Register(event.ClassProtocolMessage, event.HandlerFunc(p.onError))
}

func (p *Phases) onEchoRequest(ctx context.Context, ev event.Event) error {
	dp, msg, ok := protocolMessage(ev)
	if !ok || msg.Type != ofp.TypeEchoRequest {
		return nil
	}
	body := msg.Body.(*ofp.EchoBody)
	return dp.Send(ofp.NewEchoReply(msg.Version, msg.XID, body.Data))
}

// onError logs every OFPT_ERROR, HELLO_FAILED with its data string and the
// rest with their type and code; reply/request-matched errors reach the
// Correlator via its own inheritable registration, not here — this handler
// only logs, it never consumes the event.
func (p *Phases) onError(ctx context.Context, ev event.Event) error {
	dp, msg, ok := protocolMessage(ev)
	if !ok || msg.Type != ofp.TypeError {
		return nil
	}
	body := msg.Body.(*ofp.ErrorBody)
	if body.ErrType == ofp.ErrTypeHelloFailed {
		p.logger.WarnContext(ctx, "handshake: HELLO_FAILED from peer",
			slog.String("remote_addr", dp.RemoteAddr()), slog.String("data", string(body.Data)))
		return nil
	}
	p.logger.WarnContext(ctx, "handshake: error message from datapath",
		slog.String("remote_addr", dp.RemoteAddr()),
		slog.Any("err_type", body.ErrType), slog.Uint64("code", uint64(body.Code)))
	return nil
}
