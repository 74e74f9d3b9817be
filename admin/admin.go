package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ofswitch/controller/dpset"
	"github.com/ofswitch/controller/event"
)

// Surface is the admin HTTP surface: GET /healthz, GET /admin/dpset and
// GET /admin/events. Build one with New, wire it to the runtime with Bind,
// and mount Handler() on an *http.Server.
type Surface struct {
	dps *dpset.DPSet
	b   *broadcaster
	log *slog.Logger

	upgrader websocket.Upgrader
}

// New creates a Surface reading live state from dps.
func New(dps *dpset.DPSet, log *slog.Logger) *Surface {
	if log == nil {
		log = slog.Default()
	}
	return &Surface{
		dps: dps,
		b:   newBroadcaster(),
		log: log,
		// /admin/events is an operator tool, not a browser-facing endpoint;
		// it has no origin to check against.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Bind registers the Surface's event listeners on changes, the process-wide
// dispatcher both DPSet's DatapathEnter/DatapathLeave events and every
// per-connection queue's DispatcherChanged events are ultimately dispatched
// through, so /admin/events observes every phase transition, not just MAIN
// entry/exit.
func (s *Surface) Bind(changes *event.Dispatcher) {
	changes.Register(event.ClassDatapathEnter, event.HandlerFunc(s.b.onDatapathEnter))
	changes.Register(event.ClassDatapathLeave, event.HandlerFunc(s.b.onDatapathLeave))
	changes.Register(event.ClassDispatcherChange, event.HandlerFunc(s.b.onDispatcherChanged))
}

// Handler builds the routed http.Handler for the admin surface.
func (s *Surface) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /admin/dpset", s.handleDPSet)
	mux.HandleFunc("GET /admin/events", s.handleEvents)
	return mux
}

func (s *Surface) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Surface) handleDPSet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(buildSnapshot(s.dps)); err != nil {
		s.log.ErrorContext(r.Context(), "admin: failed to encode dpset snapshot", slog.Any("error", err))
	}
}

func (s *Surface) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WarnContext(r.Context(), "admin: websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.b.subscribe()
	defer s.b.unsubscribe(ch)

	// Drain client reads in the background; /admin/events is send-only from
	// the server's side, so a failed/closed read ends the stream.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case msg := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
