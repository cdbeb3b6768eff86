package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"dronetrack/internal/bus"
	"dronetrack/internal/framecache"
	"dronetrack/internal/logging"
	"dronetrack/internal/metrics"
	"dronetrack/internal/pixel"
)

// FrameSource yields frames newer than the last one returned.
// *bus.FrameReader satisfies it.
type FrameSource interface {
	Drain(ctx context.Context) (bus.Frame, error)
}

// ErrorSink receives computed error vectors. *bus.ErrorChannel satisfies it.
type ErrorSink interface {
	Write(ctx context.Context, v bus.ErrorVector) error
}

// Skip reasons reported to metrics.
const (
	skipEmpty        = "empty"
	skipNoDimensions = "no_dimensions"
	skipShort        = "short"
)

// Runner wires the copier and the processor around one cache.
type Runner struct {
	frames   FrameSource
	errors   ErrorSink
	analyzer Analyzer
	geometry Geometry
	cache    *framecache.Cache
	metrics  *metrics.Tracker
	logger   *slog.Logger
}

// NewRunner builds a runner. metrics and logger may be nil.
func NewRunner(frames FrameSource, errs ErrorSink, analyzer Analyzer, g Geometry, m *metrics.Tracker, logger *slog.Logger) *Runner {
	return &Runner{
		frames:   frames,
		errors:   errs,
		analyzer: analyzer,
		geometry: g,
		cache:    framecache.New(),
		metrics:  m,
		logger:   logging.NewComponentLogger(logger, "tracker"),
	}
}

// Cache exposes the local frame cache.
func (r *Runner) Cache() *framecache.Cache { return r.cache }

// Run starts both tasks and waits for them. It returns nil when ctx is
// cancelled and the first task error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer r.cache.Close()
		return r.copyFrames(gctx)
	})
	g.Go(func() error {
		return r.process(gctx)
	})
	err := g.Wait()
	stored, skipped := r.cache.Stats()
	attrs := []logging.Attr{
		logging.Int64("frames_cached", int64(stored)),
		logging.Int64("frames_superseded", int64(skipped)),
	}
	if last, ok := r.cache.Latest(); ok {
		attrs = append(attrs, logging.FrameID(last.FrameID),
			logging.Int("width", last.Width), logging.Int("height", last.Height))
	}
	r.logger.Info("tracker tasks stopped", logging.Args(attrs...)...)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (r *Runner) copyFrames(ctx context.Context) error {
	for {
		frame, err := r.frames.Drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("drain frame channel: %w", err)
		}
		r.metrics.FrameDrained()

		width, height, reason := frameDimensions(frame)
		if reason != "" {
			r.metrics.FrameSkipped(reason)
			r.logger.Debug("frame skipped",
				logging.FrameID(frame.FrameID),
				logging.String("reason", reason),
				logging.Int("size", int(frame.Size)),
			)
			continue
		}
		if err := r.cache.Store(frame.FrameID, width, height, frame.Data); err != nil {
			if errors.Is(err, framecache.ErrClosed) {
				return ctx.Err()
			}
			return err
		}
	}
}

// frameDimensions resolves the frame size, falling back to the payload
// length table when the producer left the dimensions out. A non-empty reason
// means the frame must not reach the cache.
func frameDimensions(frame bus.Frame) (width, height int, reason string) {
	if frame.Size == 0 {
		return 0, 0, skipEmpty
	}
	width, height = int(frame.Width), int(frame.Height)
	if width == 0 || height == 0 {
		width, height = pixel.DimensionsForSize(int(frame.Size))
	}
	if width == 0 || height == 0 {
		return 0, 0, skipNoDimensions
	}
	if int(frame.Size) < pixel.FrameSize(width, height) {
		return 0, 0, skipShort
	}
	return width, height, ""
}

func (r *Runner) process(ctx context.Context) error {
	last := bus.NoFrame
	for {
		var (
			obs Observation
			vec bus.ErrorVector
		)
		start := time.Now()
		id, err := r.cache.Analyze(ctx, last, func(frame framecache.LocalFrame) error {
			var err error
			obs, err = r.analyzer.Analyze(frame)
			if err != nil {
				return err
			}
			if obs.Found {
				vec = ErrorFromBox(obs.Box, frame.Width, frame.Height, r.geometry)
			}
			return nil
		})
		if err != nil {
			switch {
			case errors.Is(err, framecache.ErrClosed), ctx.Err() != nil:
				return ctx.Err()
			case id != last:
				logging.WarnWithContext(r.logger, "analysis failed", "analysis_failed",
					logging.FrameID(id),
					logging.Error(err),
					logging.String(logging.FieldImpact, "error vector not updated for this frame"),
				)
				last = id
				continue
			default:
				return err
			}
		}
		last = id
		r.metrics.AnalysisDone(time.Since(start), obs.Found)
		if !obs.Found {
			r.logger.Debug("target not found", logging.FrameID(id))
			continue
		}
		if err := r.errors.Write(ctx, vec); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("write error channel: %w", err)
		}
		r.metrics.ErrorWritten()
		r.logger.Debug("error vector written",
			logging.FrameID(id),
			logging.Float64("x", float64(vec.X)),
			logging.Float64("y", float64(vec.Y)),
			logging.Float64("z", float64(vec.Z)),
		)
	}
}
