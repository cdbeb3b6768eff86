package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"dronetrack/internal/bus"
	"dronetrack/internal/config"
	"dronetrack/internal/control"
	"dronetrack/internal/ipc"
	"dronetrack/internal/journal"
	"dronetrack/internal/linkmon"
	"dronetrack/internal/logging"
	"dronetrack/internal/metrics"
)

// Options configures the station process. Zero values select the
// configured defaults.
type Options struct {
	Backend bus.Backend
	Source  FrameSource
	Flight  control.FlightAPI
	Logger  *slog.Logger
	// ConfigPath enables live controller tuning reloads when the file
	// exists.
	ConfigPath string
	// Ready is called once every task has started.
	Ready func(*Station)
}

// Run executes the station until SIGINT, SIGTERM or ctx cancellation: it
// publishes frames, runs the controller, serves IPC and watches the flight
// link. Lock failures on the bus are fatal and returned.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	lock := flock.New(cfg.StationLockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire station lock: %w", err)
	}
	if !ok {
		return errors.New("another station instance is already running")
	}
	defer lock.Unlock()

	sessionID := journal.NewSessionID()
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithSession(logger, sessionID)

	source := opts.Source
	if source == nil {
		target, err := config.ParseColor(cfg.Tracker.TargetColor)
		if err != nil {
			return err
		}
		if source, err = NewSource(cfg.Producer, target); err != nil {
			return err
		}
	}
	if closer, ok := source.(io.Closer); ok {
		defer closer.Close()
	}
	flight := opts.Flight
	if flight == nil {
		if flight, err = control.NewFlight(cfg.Controller.Flight, logger); err != nil {
			return err
		}
	}

	jr, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return err
	}
	defer jr.Close()
	if days := cfg.Paths.JournalRetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		removed, err := jr.Prune(signalCtx, cutoff)
		if err != nil {
			logging.WarnWithContext(logger, "journal prune failed", "journal_prune",
				logging.String(logging.FieldErrorHint, "check the journal file permissions"),
				logging.Error(err))
		} else if removed > 0 {
			logger.Info("pruned journal", logging.Int64("removed", removed), logging.Int("retention_days", days))
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
	var reg *prometheus.Registry
	var m *metrics.Station
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		m = metrics.NewStation(reg)
	}

	ctrl, err := control.New(control.Options{
		Errors:    b.Errors(),
		Flight:    flight,
		Tuning:    control.TuningFromConfig(cfg.Controller),
		Tracking:  cfg.Controller.TrackOnStart,
		SessionID: sessionID,
		Journal:   jr,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	st := &Station{
		ctrl:      ctrl,
		journal:   jr,
		source:    source,
		frames:    b.Frames(),
		metrics:   m,
		logger:    logger,
		sessionID: sessionID,
		startedAt: time.Now(),
		busInit:   b.Initialized(),
	}
	st.lastFrame.Store(bus.NoFrame)
	monitor := linkmon.New(cfg.Controller.LinkInterface, st.onLinkEvent, m, logger)
	st.link = monitor.Interface()

	srv, err := ipc.NewServer(gctx, cfg.SocketPath(), st, logger)
	if err != nil {
		return err
	}
	srv.Serve()
	defer srv.Close()

	if reg != nil {
		metricsSrv, err := metrics.Listen(cfg.Metrics.StationBind, reg, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return metricsSrv.Serve(gctx) })
	}

	g.Go(func() error { return st.publish(gctx) })
	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	if opts.ConfigPath != "" && fileExists(opts.ConfigPath) {
		g.Go(func() error { return watchTuning(gctx, opts.ConfigPath, ctrl, logger) })
	}

	logger.Info("station running",
		logging.String(logging.FieldRole, "station"),
		logging.String("source", source.Name()),
		logging.String("socket", cfg.SocketPath()),
		logging.Bool("bus_initialized", b.Initialized()),
		logging.Bool("tracking", ctrl.Tracking()),
	)
	if opts.Ready != nil {
		opts.Ready(st)
	}

	if err := g.Wait(); err != nil {
		logging.ErrorWithContext(logger, "station stopped on fatal error", "station_fatal",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the bus was removed or corrupted; restart both processes"),
		)
		return err
	}
	logger.Info("station shut down")
	return nil
}

// watchTuning applies controller changes from the config file. Other
// sections need a restart and are ignored.
func watchTuning(ctx context.Context, path string, ctrl *control.Controller, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "config")
	return config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err == nil {
			err = cfg.ValidateController()
		}
		if err == nil {
			err = ctrl.SetTuning(control.TuningFromConfig(cfg.Controller))
		}
		if err != nil {
			logging.WarnWithContext(logger, "config reload rejected", "config_reload_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "previous controller tuning stays in effect"),
				logging.String(logging.FieldErrorHint, "fix the config file; it is re-read on the next save"),
			)
			return
		}
		t := ctrl.Tuning()
		logger.Info("controller tuning reloaded",
			logging.String(logging.FieldEventType, "config_reloaded"),
			logging.Float64("x_threshold", float64(t.XThreshold)),
			logging.Float64("z_threshold", float64(t.ZThreshold)),
			logging.Duration("pulse_duration", t.PulseDuration),
		)
	})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
