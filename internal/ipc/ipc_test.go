package ipc_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dronetrack/internal/bus"
	"dronetrack/internal/control"
	"dronetrack/internal/ipc"
	"dronetrack/internal/journal"
	"dronetrack/internal/logging"
)

type fakeStation struct {
	mu       sync.Mutex
	tracking bool
	airborne bool
	manual   []control.Action
	query    journal.Query
	landErr  error
	started  time.Time
}

func (f *fakeStation) SetTracking(enabled bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.tracking != enabled
	f.tracking = enabled
	return changed
}

func (f *fakeStation) Snapshot() ipc.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ipc.Snapshot{
		SessionID:       "session-1",
		PID:             42,
		StartedAt:       f.started,
		Source:          "synthetic",
		FramesPublished: 17,
		LastFrameID:     16,
		BusInitialized:  true,
		Controller: control.Status{
			Tracking:    f.tracking,
			Airborne:    f.airborne,
			LastError:   bus.ErrorVector{X: 0.3, Z: -0.5},
			TrackPulses: 3,
			LastAction:  "x",
			Tuning:      control.DefaultTuning(),
		},
	}
}

func (f *fakeStation) Manual(_ context.Context, a control.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual = append(f.manual, a)
	return nil
}

func (f *fakeStation) Takeoff(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.airborne = true
	return nil
}

func (f *fakeStation) Land(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.landErr != nil {
		return f.landErr
	}
	f.tracking = false
	f.airborne = false
	return nil
}

func (f *fakeStation) History(_ context.Context, q journal.Query) ([]journal.Entry, []journal.SourceCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = q
	entries := []journal.Entry{{
		ID:        2,
		SessionID: "session-1",
		Source:    journal.SourceTrack,
		Action:    control.AxisX,
		Flags:     control.FlagProgressive,
		Yaw:       0.3,
		ErrX:      0.3,
		Duration:  50 * time.Millisecond,
		Repeats:   4,
		IssuedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
	counts := []journal.SourceCount{{Source: journal.SourceTrack, Count: 1}}
	return entries, counts, nil
}

func (f *fakeStation) manualCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.manual)
}

func (f *fakeStation) lastQuery() journal.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

func startServer(t *testing.T, st ipc.Station) *ipc.Client {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(t.TempDir(), "station.sock")
	srv, err := ipc.NewServer(ctx, socket, st, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestIPCServerClient(t *testing.T) {
	st := &fakeStation{started: time.Now().Add(-time.Minute)}
	client := startServer(t, st)

	track, err := client.Track(true)
	if err != nil {
		t.Fatalf("Track RPC failed: %v", err)
	}
	if !track.Enabled || !track.Changed {
		t.Fatalf("unexpected track response %+v", track)
	}
	again, err := client.Track(true)
	if err != nil {
		t.Fatalf("Track RPC failed: %v", err)
	}
	if again.Changed {
		t.Fatal("expected repeated enable to report no change")
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Tracking || status.SessionID != "session-1" || status.PID != 42 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.ErrorX != 0.3 || status.ErrorZ != -0.5 || status.FramesPublished != 17 {
		t.Fatalf("status lost telemetry: %+v", status)
	}
	if status.UptimeSeconds < 59 {
		t.Fatalf("uptime = %d, want about a minute", status.UptimeSeconds)
	}
	if status.PulseMillis != control.DefaultTuning().PulseDuration.Milliseconds() {
		t.Fatalf("pulse ms = %d", status.PulseMillis)
	}

	manual, err := client.Manual("Turn-Left")
	if err != nil {
		t.Fatalf("Manual RPC failed: %v", err)
	}
	if manual.Action != string(control.ActionTurnLeft) {
		t.Fatalf("manual action = %q", manual.Action)
	}
	if _, err := client.Manual("barrel-roll"); err == nil {
		t.Fatal("expected unknown action to fail")
	}
	if n := st.manualCount(); n != 1 {
		t.Fatalf("station saw %d manual pulses, want 1", n)
	}

	takeoff, err := client.Takeoff()
	if err != nil || !takeoff.Airborne {
		t.Fatalf("Takeoff = %+v, %v", takeoff, err)
	}
	land, err := client.Land()
	if err != nil || land.Airborne {
		t.Fatalf("Land = %+v, %v", land, err)
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Tracking {
		t.Fatal("expected land to disable tracking")
	}
}

func TestHistoryDefaultsToRunningSession(t *testing.T) {
	st := &fakeStation{}
	client := startServer(t, st)

	resp, err := client.History(ipc.HistoryRequest{Limit: 5})
	if err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	if q := st.lastQuery(); q.SessionID != "session-1" || q.Limit != 5 {
		t.Fatalf("unexpected query %+v", q)
	}
	if resp.SessionID != "session-1" || len(resp.Entries) != 1 || len(resp.Counts) != 1 {
		t.Fatalf("unexpected history response %+v", resp)
	}
	entry := resp.Entries[0]
	if entry.DurationMS != 50 || entry.Action != control.AxisX || entry.IssuedAt != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	if _, err := client.History(ipc.HistoryRequest{AllSessions: true}); err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	if q := st.lastQuery(); q.SessionID != "" {
		t.Fatalf("all sessions should not filter, got %q", q.SessionID)
	}
}

func TestStationErrorsReachClient(t *testing.T) {
	st := &fakeStation{landErr: errors.New("link down")}
	client := startServer(t, st)

	_, err := client.Land()
	if err == nil || !strings.Contains(err.Error(), "link down") {
		t.Fatalf("expected station error, got %v", err)
	}
}

func TestCloseRemovesSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "station.sock")
	if err := os.WriteFile(socket, []byte("stale"), 0o600); err != nil {
		t.Fatalf("write stale socket: %v", err)
	}
	srv, err := ipc.NewServer(context.Background(), socket, &fakeStation{}, nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	srv.Close()
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Fatalf("expected socket removed, stat err = %v", err)
	}
	if _, err := ipc.Dial(socket); err == nil {
		t.Fatal("expected dial to fail after close")
	}
}
