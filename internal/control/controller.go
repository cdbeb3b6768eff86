package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dronetrack/internal/bus"
	"dronetrack/internal/journal"
	"dronetrack/internal/logging"
	"dronetrack/internal/metrics"
)

// ErrorSource yields the latest tracking error. *bus.ErrorChannel satisfies
// it.
type ErrorSource interface {
	Read(ctx context.Context) (bus.ErrorVector, error)
}

// Recorder persists issued commands. *journal.Journal satisfies it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
}

// Options configures a Controller. Errors and Flight are required.
type Options struct {
	Errors    ErrorSource
	Flight    FlightAPI
	Tuning    Tuning
	Tracking  bool
	SessionID string
	Journal   Recorder
	Metrics   *metrics.Station
	Logger    *slog.Logger
}

// Status is a snapshot of the controller.
type Status struct {
	Tracking     bool
	Airborne     bool
	LastError    bus.ErrorVector
	TrackPulses  uint64
	ManualPulses uint64
	LastAction   string
	LastPulseAt  time.Time
	Tuning       Tuning
}

// Controller runs the visual-servo loop and executes manual commands.
type Controller struct {
	errors  ErrorSource
	flight  FlightAPI
	gate    *Gate
	journal Recorder
	metrics *metrics.Station
	logger  *slog.Logger
	session string

	tuning atomic.Pointer[Tuning]

	// flightMu serializes pulses from the loop and from manual commands.
	flightMu sync.Mutex

	mu           sync.Mutex
	airborne     bool
	lastError    bus.ErrorVector
	trackPulses  uint64
	manualPulses uint64
	lastAction   string
	lastPulseAt  time.Time
}

// New builds a controller.
func New(opts Options) (*Controller, error) {
	if opts.Errors == nil {
		return nil, errors.New("controller: error source is required")
	}
	if opts.Flight == nil {
		return nil, errors.New("controller: flight api is required")
	}
	tuning := opts.Tuning
	if tuning == (Tuning{}) {
		tuning = DefaultTuning()
	}
	if tuning.PulseDuration <= 0 {
		return nil, fmt.Errorf("controller: pulse duration must be positive, got %s", tuning.PulseDuration)
	}
	c := &Controller{
		errors:  opts.Errors,
		flight:  opts.Flight,
		gate:    NewGate(opts.Tracking),
		journal: opts.Journal,
		metrics: opts.Metrics,
		logger:  logging.NewComponentLogger(opts.Logger, "controller"),
		session: opts.SessionID,
	}
	c.tuning.Store(&tuning)
	c.metrics.TrackingChanged(opts.Tracking)
	return c, nil
}

// Tuning returns the active tuning.
func (c *Controller) Tuning() Tuning { return *c.tuning.Load() }

// SetTuning replaces the tuning; the next policy evaluation uses it.
func (c *Controller) SetTuning(t Tuning) error {
	if t.PulseDuration <= 0 {
		return fmt.Errorf("pulse duration must be positive, got %s", t.PulseDuration)
	}
	if t.XThreshold <= 0 || t.ZThreshold <= 0 {
		return errors.New("thresholds must be positive")
	}
	c.tuning.Store(&t)
	c.logger.Info("controller tuning updated",
		logging.Float64("x_threshold", float64(t.XThreshold)),
		logging.Float64("z_threshold", float64(t.ZThreshold)),
		logging.Duration("pulse", t.PulseDuration),
		logging.Duration("repeat", t.RepeatInterval),
	)
	return nil
}

// SetTracking opens or closes the tracking gate and reports whether the
// state changed.
func (c *Controller) SetTracking(enabled bool) bool {
	changed := c.gate.Set(enabled)
	if changed {
		c.metrics.TrackingChanged(enabled)
		c.logger.Info("tracking toggled", logging.Bool("enabled", enabled))
	}
	return changed
}

// Tracking reports whether the tracking gate is open.
func (c *Controller) Tracking() bool { return c.gate.Enabled() }

// Status returns a snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Tracking:     c.gate.Enabled(),
		Airborne:     c.airborne,
		LastError:    c.lastError,
		TrackPulses:  c.trackPulses,
		ManualPulses: c.manualPulses,
		LastAction:   c.lastAction,
		LastPulseAt:  c.lastPulseAt,
		Tuning:       c.Tuning(),
	}
}

// Run executes the tracking loop until ctx is done. It returns nil on
// cancellation and the error otherwise; a failed read of the error channel
// is fatal for the process.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller started", logging.Bool("tracking", c.gate.Enabled()))
	defer c.logger.Info("controller stopped")

	for {
		if err := c.gate.Wait(ctx); err != nil {
			return nil
		}
		v, err := c.errors.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read error channel: %w", err)
		}
		c.observe(v)

		tuning := c.Tuning()
		for _, corr := range Plan(v, tuning) {
			if !c.gate.Enabled() {
				break
			}
			if err := c.pulse(ctx, journal.SourceTrack, corr.Axis, corr.Command, v, tuning); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logging.WarnWithContext(c.logger, "tracking pulse failed", "pulse_failed",
					logging.String(logging.FieldAxis, corr.Axis),
					logging.Error(err),
					logging.String(logging.FieldImpact, "correction skipped for this cycle"),
					logging.String(logging.FieldErrorHint, "check the flight link"),
				)
			}
		}
		if err := sleepContext(ctx, tuning.RepeatInterval); err != nil {
			return nil
		}
	}
}

// Manual executes one manual action as a timed pulse at the configured gain.
func (c *Controller) Manual(ctx context.Context, a Action) error {
	tuning := c.Tuning()
	cmd, err := ManualCommand(a, tuning.ManualGain)
	if err != nil {
		return err
	}
	return c.pulse(ctx, journal.SourceManual, string(a), cmd, bus.ErrorVector{}, tuning)
}

// Takeoff sends the takeoff command.
func (c *Controller) Takeoff(ctx context.Context) error {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	if err := c.flight.Takeoff(ctx); err != nil {
		return fmt.Errorf("takeoff: %w", err)
	}
	c.mu.Lock()
	c.airborne = true
	c.mu.Unlock()
	c.record(ctx, journal.Entry{Source: journal.SourceManual, Action: "takeoff"})
	return nil
}

// Land disables tracking and sends the land command.
func (c *Controller) Land(ctx context.Context) error {
	c.SetTracking(false)
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	if err := c.flight.Land(ctx); err != nil {
		return fmt.Errorf("land: %w", err)
	}
	c.mu.Lock()
	c.airborne = false
	c.mu.Unlock()
	c.record(ctx, journal.Entry{Source: journal.SourceManual, Action: "land"})
	return nil
}

func (c *Controller) observe(v bus.ErrorVector) {
	c.mu.Lock()
	c.lastError = v
	c.mu.Unlock()
	c.metrics.ErrorObserved(v.X, v.Y, v.Z)
}

func (c *Controller) pulse(ctx context.Context, source, action string, cmd Command, v bus.ErrorVector, t Tuning) error {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()

	start := time.Now()
	sent, err := issuePulse(ctx, c.countingFlight(), cmd, t.PulseDuration, t.ReissueInterval)
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("%s pulse %s: %w", source, action, err)
	}

	c.mu.Lock()
	if source == journal.SourceTrack {
		c.trackPulses++
	} else {
		c.manualPulses++
	}
	c.lastAction = action
	c.lastPulseAt = start
	c.mu.Unlock()

	c.metrics.PulseIssued(action, source)
	c.logger.Debug("pulse issued",
		logging.String(logging.FieldAxis, action),
		logging.String("source", source),
		logging.Int("sends", sent),
		logging.Duration("elapsed", elapsed),
	)
	c.record(ctx, journal.Entry{
		Source:   source,
		Action:   action,
		Flags:    cmd.Flags,
		Roll:     cmd.Roll,
		Pitch:    cmd.Pitch,
		Gaz:      cmd.Gaz,
		Yaw:      cmd.Yaw,
		ErrX:     v.X,
		ErrY:     v.Y,
		ErrZ:     v.Z,
		Duration: elapsed,
		Repeats:  sent,
		IssuedAt: start,
	})
	return nil
}

func (c *Controller) record(ctx context.Context, e journal.Entry) {
	if c.journal == nil || c.session == "" {
		return
	}
	e.SessionID = c.session
	if _, err := c.journal.Record(ctx, e); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(c.logger, "journal write failed", "journal_write_failed",
			logging.String(logging.FieldAction, e.Action),
			logging.Error(err),
			logging.String(logging.FieldImpact, "command is missing from history"),
		)
	}
}

func (c *Controller) countingFlight() FlightAPI {
	if c.metrics == nil {
		return c.flight
	}
	return countingFlight{FlightAPI: c.flight, metrics: c.metrics}
}

type countingFlight struct {
	FlightAPI
	metrics *metrics.Station
}

func (f countingFlight) Progress(ctx context.Context, cmd Command) error {
	if err := f.FlightAPI.Progress(ctx, cmd); err != nil {
		return err
	}
	f.metrics.CommandSent()
	return nil
}
