package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"dronetrack/internal/bus"
	"dronetrack/internal/control"
	"dronetrack/internal/ipc"
	"dronetrack/internal/journal"
	"dronetrack/internal/linkmon"
	"dronetrack/internal/logging"
	"dronetrack/internal/metrics"
)

// Station is the producer-side process state: the frame publisher, the
// controller and the journal. It implements ipc.Station.
type Station struct {
	ctrl      *control.Controller
	journal   *journal.Journal
	source    FrameSource
	frames    *bus.FrameChannel
	metrics   *metrics.Station
	logger    *slog.Logger
	sessionID string
	startedAt time.Time
	busInit   bool
	link      string

	published atomic.Uint64
	lastFrame atomic.Int64
}

var _ ipc.Station = (*Station)(nil)

// snapshotTimeout bounds the frame lock wait of a status request.
const snapshotTimeout = time.Second

// SetTracking toggles autonomous tracking and reports whether it changed.
func (s *Station) SetTracking(enabled bool) bool { return s.ctrl.SetTracking(enabled) }

// Snapshot implements ipc.Station.
func (s *Station) Snapshot() ipc.Snapshot {
	snap := ipc.Snapshot{
		SessionID:       s.sessionID,
		PID:             os.Getpid(),
		StartedAt:       s.startedAt,
		FramesPublished: s.published.Load(),
		LastFrameID:     s.lastFrame.Load(),
		BusInitialized:  s.busInit,
		LinkInterface:   s.link,
		BusFrame:        bus.FrameRecord{FrameID: bus.NoFrame},
		Controller:      s.ctrl.Status(),
	}
	if s.frames != nil {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		if rec, err := s.frames.Latest(ctx); err == nil {
			snap.BusFrame = rec
		} else {
			logging.NewComponentLogger(s.logger, "status").Debug("frame record unavailable", logging.Error(err))
		}
		cancel()
	}
	if s.source != nil {
		snap.Source = s.source.Name()
	}
	if s.journal != nil {
		snap.JournalPath = s.journal.Path()
	}
	return snap
}

// Manual issues one manual pulse.
func (s *Station) Manual(ctx context.Context, a control.Action) error { return s.ctrl.Manual(ctx, a) }

// Takeoff sends the takeoff command.
func (s *Station) Takeoff(ctx context.Context) error { return s.ctrl.Takeoff(ctx) }

// Land disables tracking and lands.
func (s *Station) Land(ctx context.Context) error { return s.ctrl.Land(ctx) }

// History reads the pulse journal. Counts cover q.SessionID, or the running
// session when the query spans all sessions.
func (s *Station) History(ctx context.Context, q journal.Query) ([]journal.Entry, []journal.SourceCount, error) {
	if s.journal == nil {
		return nil, nil, errors.New("pulse journal is not open")
	}
	entries, err := s.journal.Recent(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	session := q.SessionID
	if session == "" {
		session = s.sessionID
	}
	counts, err := s.journal.Counts(ctx, session)
	if err != nil {
		return nil, nil, err
	}
	return entries, counts, nil
}

// onLinkEvent is the link monitor failsafe: losing the flight link stops
// tracking so no further corrections are issued blind.
func (s *Station) onLinkEvent(_ context.Context, ev linkmon.Event) {
	if !ev.Lost() {
		return
	}
	if s.ctrl.SetTracking(false) {
		logging.WarnWithContext(s.logger, "flight link lost; tracking disabled", "link_lost",
			logging.String("interface", ev.Interface),
			logging.String(logging.FieldImpact, "the aircraft receives no tracking corrections"),
			logging.String(logging.FieldErrorHint, "restore the link, then run dronetrack track on"),
		)
	}
}

// publish copies frames from the source into the frame channel until ctx is
// done or the source ends. Oversized frames are skipped; lock failures are
// fatal.
func (s *Station) publish(ctx context.Context) error {
	logger := logging.NewComponentLogger(s.logger, "producer")
	logger.Info("producer started", logging.String("source", s.source.Name()))
	defer func() {
		logger.Info("producer stopped", logging.Int64("frames", int64(s.published.Load())))
	}()

	for {
		frame, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				logger.Info("frame source exhausted",
					logging.String(logging.FieldEventType, "source_exhausted"))
				return nil
			}
			return fmt.Errorf("frame source: %w", err)
		}

		id, err := s.frames.Publish(ctx, frame.Data, frame.Width, frame.Height)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if bus.IsFatal(err) {
				return fmt.Errorf("publish frame: %w", err)
			}
			s.metrics.PublishFailed()
			logging.WarnWithContext(logger, "frame not published", "publish_failed",
				logging.Error(err),
				logging.Int("bytes", len(frame.Data)),
				logging.String(logging.FieldImpact, "the tracker keeps the previous frame"),
				logging.String(logging.FieldErrorHint, "raise bus.frame_capacity or lower the producer resolution"),
			)
			continue
		}
		s.published.Add(1)
		s.lastFrame.Store(id)
		s.metrics.FramePublished()
		if logger.Enabled(ctx, slog.LevelDebug) {
			logger.Debug("frame published", logging.FrameID(id))
		}
	}
}
