// Command controller runs the OpenFlow 1.0 controller runtime: it accepts
// switch connections, drives each through the HANDSHAKE→...→MAIN phase
// chain, keeps a live DPSet of connected datapaths, and exposes a read-only
// admin HTTP surface for operators.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ofswitch/controller/acceptor"
	"github.com/ofswitch/controller/admin"
	"github.com/ofswitch/controller/config"
	coreconfig "github.com/ofswitch/controller/core/config"
	"github.com/ofswitch/controller/core/logger"
	"github.com/ofswitch/controller/correlator"
	"github.com/ofswitch/controller/dpset"
	"github.com/ofswitch/controller/event"
	"github.com/ofswitch/controller/handshake"
	"github.com/ofswitch/controller/ofp"
)

// supportedVersions is every wire version this runtime negotiates, per
// spec.md §4.3's version-negotiation rule (min(ourMax, peer)).
var supportedVersions = []ofp.Version{ofp.Version10}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.Config
	coreconfig.MustLoad(&cfg)

	log := logger.New(logger.WithDevelopment("ofswitch-controller"))

	// changes is the process-wide dispatcher-change queue every
	// per-connection event.Queue publishes DispatcherChanged onto (spec.md
	// §4.4's correlator feed, and the admin surface's event tail).
	changesDispatcher := event.NewDispatcher("CHANGES", nil, log)
	changes := event.NewQueue("changes", nil, log)
	changes.SetDispatcher(changesDispatcher)

	phases := handshake.New(log)

	corr := correlator.New(log)
	corr.BindInheritable(phases.Inheritable)
	corr.BindChanges(changesDispatcher, phases.Dead)

	// events is the queue DPSet publishes DatapathEnter/DatapathLeave onto;
	// its dispatcher is the same CHANGES dispatcher so admin's /admin/events
	// sees lifecycle events on the one feed operators tail.
	events := event.NewQueue("dpset-events", nil, log)
	events.SetDispatcher(changesDispatcher)

	dps := dpset.New(events)
	phases.OnMainEntry = dps.Register
	changesDispatcher.Register(event.ClassDispatcherChange, dps.WatchLeave(phases.Dead))

	admSurface := admin.New(dps, log)
	admSurface.Bind(changesDispatcher)

	// Application wiring point: register any CONFIG_HOOK handlers here,
	// before Start, so they observe the post-handshake config event ahead of
	// the framework's own advance-to-BARRIER_REQUEST handler.
	phases.Start()

	acc, err := acceptor.Listen(cfg.ListenAddr(), phases, changes, supportedVersions, log)
	if err != nil {
		log.Error("controller: failed to bind OpenFlow listener", logger.Error(err))
		os.Exit(1)
	}
	log.Info("controller: listening for datapaths", slog.String("addr", cfg.ListenAddr()))

	admSrv := &http.Server{Addr: cfg.AdminAddr, Handler: admSurface.Handler()}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return changes.Run(ctx) })
	eg.Go(func() error { return events.Run(ctx) })
	eg.Go(func() error { return acc.Serve(ctx) })

	eg.Go(func() error {
		log.Info("controller: admin surface listening", slog.String("addr", cfg.AdminAddr))
		if err := admSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return admSrv.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		<-ctx.Done()
		return acc.Shutdown()
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("controller: exited with error", logger.Error(err))
		os.Exit(1)
	}

	log.Info("controller: shut down cleanly")
}
