package tracker

import (
	"context"
	"image"
	"strings"
	"testing"
	"time"

	"dronetrack/internal/bus"
	"dronetrack/internal/testsupport"
)

func TestRunProcessesFramesAndReleasesBus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	backend := bus.NewMemoryBackend()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, Options{Backend: backend}) }()

	waitAttached(t, backend)

	producer, err := bus.Open(context.Background(), backend, bus.OptionsFromConfig(cfg, nil))
	if err != nil {
		t.Fatalf("bus.Open: %v", err)
	}
	frame := testsupport.RGB565Frame(640, 360, image.Rect(341, 105, 491, 255), red, black)
	if _, err := producer.Frames().Publish(context.Background(), frame, 640, 360); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitForError(t, producer.Errors(), bus.ErrorVector{X: 0.3})

	if err := Run(context.Background(), cfg, Options{Backend: backend}); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected single-instance error, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tracker did not stop")
	}

	removed, err := producer.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !removed || backend.SegmentCount() != 0 || backend.SemaphoreCount() != 0 {
		t.Fatalf("expected last closer to remove the bus: removed=%v segments=%d sems=%d",
			removed, backend.SegmentCount(), backend.SemaphoreCount())
	}
}

// waitAttached returns once the tracker has opened the bus, which it only
// does while holding its instance lock.
func waitAttached(t *testing.T, backend *bus.MemoryBackend) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if backend.SegmentCount() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("tracker never opened the bus")
}
