//go:build linux && (amd64 || arm64)

package bus_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"dronetrack/internal/bus"
	"dronetrack/internal/sysv"
)

func sysvKeys() bus.Keys {
	base := 0x44550000 + rand.IntN(0xfff)<<4
	return bus.Keys{
		FrameInfo:   base + 1,
		FrameData:   base + 2,
		Error:       base + 3,
		Control:     base + 4,
		FrameLock:   base + 5,
		ErrorLock:   base + 6,
		FrameSignal: base + 7,
	}
}

func TestSysvBackendPublishDrainTeardown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend := bus.NewSysvBackend(0o600, 5*time.Millisecond)
	opts := bus.Options{
		Keys:          sysvKeys(),
		FrameCapacity: 4096,
		LockPath:      filepath.Join(t.TempDir(), "bus.lock"),
	}
	producer, err := bus.Open(ctx, backend, opts)
	if err != nil {
		if sysv.IsPermissionDenied(err) || errors.Is(err, syscall.ENOSPC) || errors.Is(err, sysv.ErrUnsupported) {
			t.Skipf("System V IPC unavailable: %v", err)
		}
		t.Fatalf("Open producer: %v", err)
	}
	t.Cleanup(func() {
		_ = bus.Teardown(context.Background(), backend, opts.Keys, opts.LockPath)
	})

	tracker, err := bus.Open(ctx, backend, opts)
	if err != nil {
		t.Fatalf("Open tracker: %v", err)
	}

	reader := tracker.Frames().NewReader()
	done := make(chan bus.Frame, 1)
	go func() {
		frame, err := reader.Drain(ctx)
		if err != nil {
			t.Errorf("Drain: %v", err)
		}
		done <- frame
	}()

	if _, err := producer.Frames().Publish(ctx, []byte("rgb565"), 3, 1); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	frame := <-done
	if string(frame.Data) != "rgb565" || frame.FrameID != 0 {
		t.Fatalf("unexpected frame %+v", frame)
	}

	if err := tracker.Errors().Write(ctx, bus.ErrorVector{X: 0.3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if v, err := producer.Errors().Read(ctx); err != nil || v.X != 0.3 {
		t.Fatalf("Read = %+v, %v", v, err)
	}

	if removed, err := tracker.Close(); err != nil || removed {
		t.Fatalf("tracker Close = %v, %v", removed, err)
	}
	if removed, err := producer.Close(); err != nil || !removed {
		t.Fatalf("producer Close = %v, %v", removed, err)
	}

	// Everything is gone: a fresh attach creates new objects.
	seg, err := sysv.AttachSegment(opts.Keys.Control, 32, 0o600)
	if err != nil {
		t.Fatalf("AttachSegment after teardown: %v", err)
	}
	defer func() {
		_ = seg.Detach()
		_ = sysv.RemoveSegment(opts.Keys.Control)
	}()
	if !seg.Created() {
		t.Fatal("control segment survived the last close")
	}
}
