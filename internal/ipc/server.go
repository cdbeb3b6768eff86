package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"dronetrack/internal/bus"
	"dronetrack/internal/control"
	"dronetrack/internal/journal"
	"dronetrack/internal/logging"
)

// ServiceName is the RPC receiver name shared by server and client.
const ServiceName = "Dronetrack"

// Snapshot is the station state the status RPC reports.
type Snapshot struct {
	SessionID       string
	PID             int
	StartedAt       time.Time
	Source          string
	FramesPublished uint64
	LastFrameID     int64
	// BusFrame is the record currently in the frame channel; BusFrame.FrameID
	// is bus.NoFrame when it could not be read.
	BusFrame        bus.FrameRecord
	BusInitialized  bool
	LinkInterface   string
	JournalPath     string
	Controller      control.Status
}

// Station is the control surface the server exposes.
type Station interface {
	SetTracking(enabled bool) bool
	Snapshot() Snapshot
	Manual(ctx context.Context, action control.Action) error
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
	History(ctx context.Context, q journal.Query) ([]journal.Entry, []journal.SourceCount, error)
}

// Server exposes station control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. A stale
// socket file from a previous run is replaced.
func NewServer(ctx context.Context, path string, st Station, logger *slog.Logger) (*Server, error) {
	if st == nil {
		return nil, errors.New("ipc server requires station")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{station: st, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the station if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Open client
// connections are served until they hang up.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket left behind"),
			logging.String(logging.FieldErrorHint, "the next station start replaces it"))
	}
}

type service struct {
	station Station
	logger  *slog.Logger
	ctx     context.Context
}

func (s *service) Track(req TrackRequest, resp *TrackResponse) error {
	changed := s.station.SetTracking(req.Enabled)
	resp.Enabled = req.Enabled
	resp.Changed = changed
	if changed {
		s.logger.Info("tracking toggled via IPC",
			logging.String(logging.FieldEventType, "tracking_toggle"),
			logging.Bool("enabled", req.Enabled))
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	snap := s.station.Snapshot()
	ctl := snap.Controller

	resp.SessionID = snap.SessionID
	resp.PID = snap.PID
	if !snap.StartedAt.IsZero() {
		resp.StartedAt = snap.StartedAt.UTC().Format(time.RFC3339)
		resp.UptimeSeconds = int64(time.Since(snap.StartedAt).Seconds())
	}
	resp.Source = snap.Source
	resp.FramesPublished = snap.FramesPublished
	resp.LastFrameID = snap.LastFrameID
	resp.BusFrameID = snap.BusFrame.FrameID
	resp.FrameWidth = int(snap.BusFrame.Width)
	resp.FrameHeight = int(snap.BusFrame.Height)
	resp.FrameBytes = int(snap.BusFrame.Size)
	resp.BusInitialized = snap.BusInitialized
	resp.LinkInterface = snap.LinkInterface
	resp.JournalPath = snap.JournalPath

	resp.Tracking = ctl.Tracking
	resp.Airborne = ctl.Airborne
	resp.ErrorX = ctl.LastError.X
	resp.ErrorY = ctl.LastError.Y
	resp.ErrorZ = ctl.LastError.Z
	resp.TrackPulses = ctl.TrackPulses
	resp.ManualPulses = ctl.ManualPulses
	resp.LastAction = ctl.LastAction
	if !ctl.LastPulseAt.IsZero() {
		resp.LastPulseAt = ctl.LastPulseAt.UTC().Format(time.RFC3339Nano)
	}
	resp.XThreshold = ctl.Tuning.XThreshold
	resp.ZThreshold = ctl.Tuning.ZThreshold
	resp.PulseMillis = ctl.Tuning.PulseDuration.Milliseconds()
	resp.RepeatMillis = ctl.Tuning.RepeatInterval.Milliseconds()
	resp.ManualGain = ctl.Tuning.ManualGain
	return nil
}

func (s *service) Manual(req ManualRequest, resp *ManualResponse) error {
	action, err := control.ParseAction(req.Action)
	if err != nil {
		return err
	}
	s.logger.Debug("manual pulse requested", logging.String(logging.FieldAction, string(action)))
	if err := s.station.Manual(s.ctx, action); err != nil {
		return err
	}
	resp.Action = string(action)
	resp.Message = fmt.Sprintf("%s pulse issued", action)
	return nil
}

func (s *service) Takeoff(_ TakeoffRequest, resp *TakeoffResponse) error {
	if err := s.station.Takeoff(s.ctx); err != nil {
		return err
	}
	resp.Airborne = s.station.Snapshot().Controller.Airborne
	resp.Message = "takeoff sent"
	s.logger.Info("takeoff via IPC", logging.String(logging.FieldEventType, "takeoff"))
	return nil
}

func (s *service) Land(_ LandRequest, resp *LandResponse) error {
	if err := s.station.Land(s.ctx); err != nil {
		return err
	}
	resp.Airborne = s.station.Snapshot().Controller.Airborne
	resp.Message = "land sent; tracking disabled"
	s.logger.Info("land via IPC", logging.String(logging.FieldEventType, "land"))
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	q := journal.Query{SessionID: req.SessionID, Source: req.Source, Limit: req.Limit}
	if q.SessionID == "" && !req.AllSessions {
		q.SessionID = s.station.Snapshot().SessionID
	}
	entries, counts, err := s.station.History(s.ctx, q)
	if err != nil {
		return err
	}
	resp.SessionID = q.SessionID
	resp.Entries = make([]PulseEntry, 0, len(entries))
	for _, e := range entries {
		resp.Entries = append(resp.Entries, convertEntry(e))
	}
	resp.Counts = make([]SourceCount, 0, len(counts))
	for _, c := range counts {
		resp.Counts = append(resp.Counts, SourceCount{Source: c.Source, Count: c.Count})
	}
	return nil
}

func convertEntry(e journal.Entry) PulseEntry {
	return PulseEntry{
		ID:         e.ID,
		SessionID:  e.SessionID,
		Source:     e.Source,
		Action:     e.Action,
		Flags:      e.Flags,
		Roll:       e.Roll,
		Pitch:      e.Pitch,
		Gaz:        e.Gaz,
		Yaw:        e.Yaw,
		ErrorX:     e.ErrX,
		ErrorY:     e.ErrY,
		ErrorZ:     e.ErrZ,
		DurationMS: e.Duration.Milliseconds(),
		Repeats:    e.Repeats,
		IssuedAt:   e.IssuedAt.UTC().Format(time.RFC3339Nano),
	}
}
