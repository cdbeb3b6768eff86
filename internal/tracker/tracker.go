package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dronetrack/internal/bus"
	"dronetrack/internal/config"
	"dronetrack/internal/logging"
	"dronetrack/internal/metrics"
)

// Options configures the tracker process.
type Options struct {
	// Backend defaults to System V objects built from the config.
	Backend bus.Backend
	// Analyzer defaults to the one named in the tracker config section.
	Analyzer Analyzer
	Logger   *slog.Logger
}

// Run executes the tracker process until SIGINT, SIGTERM or ctx
// cancellation. It holds a single-instance lock for its lifetime and closes
// its bus handle on the way out; the last process to close removes the bus.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	lock := flock.New(cfg.TrackerLockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire tracker lock: %w", err)
	}
	if !ok {
		return errors.New("another tracker instance is already running")
	}
	defer lock.Unlock()

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithSession(logger, uuid.NewString())
	analyzer := opts.Analyzer
	if analyzer == nil {
		if analyzer, err = NewAnalyzer(cfg.Tracker); err != nil {
			return err
		}
	}
	backend := opts.Backend
	if backend == nil {
		backend = bus.BackendFromConfig(cfg)
	}

	b, err := bus.Open(signalCtx, backend, bus.OptionsFromConfig(cfg, logger))
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	defer func() {
		if _, closeErr := b.Close(); closeErr != nil {
			logging.WarnWithContext(logger, "bus close failed", "bus_close_failed",
				logging.Error(closeErr),
				logging.String(logging.FieldErrorHint, "run dronetrack teardown to remove leftover objects"),
			)
		}
	}()

	g, gctx := errgroup.WithContext(signalCtx)
	var m *metrics.Tracker
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		m = metrics.NewTracker(reg)
		srv, err := metrics.Listen(cfg.Metrics.TrackerBind, reg, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Serve(gctx) })
	}

	runner := NewRunner(b.Frames().NewReader(), b.Errors(), analyzer, GeometryFromConfig(cfg.Tracker), m, logger)
	g.Go(func() error {
		if err := runner.Run(gctx); err != nil {
			return err
		}
		// The runner only stops cleanly on cancellation; make sure the
		// metrics server follows.
		cancel()
		return nil
	})

	logger.Info("tracker running",
		logging.String(logging.FieldRole, "tracker"),
		logging.Bool("bus_initialized", b.Initialized()),
	)
	if err := g.Wait(); err != nil {
		logging.ErrorWithContext(logger, "tracker stopped on fatal error", "tracker_fatal",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the bus was removed or corrupted; restart both processes"),
		)
		return err
	}
	logger.Info("tracker shut down")
	return nil
}
