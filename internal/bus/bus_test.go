package bus_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dronetrack/internal/bus"
	"dronetrack/internal/sysv"
)

func openPair(t *testing.T, capacity int) (*bus.MemoryBackend, bus.Options, *bus.Bus, *bus.Bus) {
	t.Helper()
	backend := bus.NewMemoryBackend()
	opts := bus.Options{FrameCapacity: capacity, LockPath: filepath.Join(t.TempDir(), "bus.lock")}
	producer, err := bus.Open(context.Background(), backend, opts)
	if err != nil {
		t.Fatalf("Open producer: %v", err)
	}
	tracker, err := bus.Open(context.Background(), backend, opts)
	if err != nil {
		t.Fatalf("Open tracker: %v", err)
	}
	t.Cleanup(func() {
		tracker.Close()
		producer.Close()
	})
	return backend, opts, producer, tracker
}

func TestOpenInitializesOnce(t *testing.T) {
	_, _, producer, tracker := openPair(t, 64)
	if !producer.Initialized() {
		t.Fatal("first opener should initialize the bus")
	}
	if tracker.Initialized() {
		t.Fatal("second opener must not reinitialize the bus")
	}

	ctx := context.Background()
	rec, err := tracker.Frames().Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if rec.FrameID != bus.NoFrame {
		t.Fatalf("fresh bus frame id = %d, want %d", rec.FrameID, bus.NoFrame)
	}
	v, err := tracker.Errors().Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != (bus.ErrorVector{}) {
		t.Fatalf("fresh error vector = %+v, want zero", v)
	}
}

func TestSecondOpenDoesNotResetPublishedState(t *testing.T) {
	backend, opts, producer, _ := openPair(t, 64)
	ctx := context.Background()
	if _, err := producer.Frames().Publish(ctx, []byte{1, 2, 3}, 1, 1); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	late, err := bus.Open(ctx, backend, opts)
	if err != nil {
		t.Fatalf("Open late: %v", err)
	}
	defer late.Close()
	rec, err := late.Frames().Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if rec.FrameID != 0 || rec.Size != 3 {
		t.Fatalf("late opener sees %+v, want frame 0 of 3 bytes", rec)
	}
}

func TestPublishIDsIncreaseFromZero(t *testing.T) {
	_, _, producer, _ := openPair(t, 16)
	ctx := context.Background()
	for want := int64(0); want < 50; want++ {
		id, err := producer.Frames().Publish(ctx, []byte{byte(want)}, 1, 1)
		if err != nil {
			t.Fatalf("Publish %d: %v", want, err)
		}
		if id != want {
			t.Fatalf("Publish returned id %d, want %d", id, want)
		}
	}
}

func TestTryDrainNeverFabricatesFrames(t *testing.T) {
	_, _, producer, tracker := openPair(t, 16)
	ctx := context.Background()
	reader := tracker.Frames().NewReader()

	if _, ok, err := reader.TryDrain(ctx); err != nil || ok {
		t.Fatalf("TryDrain before publish = ok %v, err %v", ok, err)
	}

	// Backpressure: the reader falls behind and only sees the latest frame.
	for i := range 10 {
		if _, err := producer.Frames().Publish(ctx, []byte{byte(i)}, 1, 1); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	frame, ok, err := reader.TryDrain(ctx)
	if err != nil || !ok {
		t.Fatalf("TryDrain after publish = ok %v, err %v", ok, err)
	}
	if frame.FrameID != 9 || !bytes.Equal(frame.Data, []byte{9}) {
		t.Fatalf("drained frame %d %v, want frame 9 [9]", frame.FrameID, frame.Data)
	}
	if _, ok, err := reader.TryDrain(ctx); err != nil || ok {
		t.Fatalf("repeat TryDrain = ok %v, err %v; want no new frame", ok, err)
	}
	if reader.LastSeen() != 9 {
		t.Fatalf("LastSeen = %d, want 9", reader.LastSeen())
	}
}

func TestPublishRejectsOversizedFrame(t *testing.T) {
	_, _, producer, tracker := openPair(t, 8)
	ctx := context.Background()
	if _, err := producer.Frames().Publish(ctx, []byte("ok"), 2, 1); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_, err := producer.Frames().Publish(ctx, make([]byte, 9), 3, 3)
	if !errors.Is(err, bus.ErrFrameTooLarge) {
		t.Fatalf("oversized Publish err = %v, want ErrFrameTooLarge", err)
	}

	rec, err := tracker.Frames().Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if rec.FrameID != 0 || rec.Size != 2 || rec.Width != 2 {
		t.Fatalf("rejected publish changed the channel: %+v", rec)
	}
}

func TestZeroLengthPublishIsValid(t *testing.T) {
	_, _, producer, tracker := openPair(t, 8)
	ctx := context.Background()
	id, err := producer.Frames().Publish(ctx, nil, 0, 0)
	if err != nil || id != 0 {
		t.Fatalf("Publish(nil) = %d, %v", id, err)
	}
	frame, ok, err := tracker.Frames().NewReader().TryDrain(ctx)
	if err != nil || !ok {
		t.Fatalf("TryDrain = ok %v, err %v", ok, err)
	}
	if frame.Size != 0 || len(frame.Data) != 0 {
		t.Fatalf("expected empty frame, got %+v", frame)
	}
}

func TestConcurrentPublishersNeverTearFrames(t *testing.T) {
	const frameSize = 4096
	_, _, producer, tracker := openPair(t, frameSize)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(fill byte) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{fill}, frameSize)
			for range 200 {
				if _, err := producer.Frames().Publish(ctx, payload, 64, 32); err != nil {
					t.Errorf("Publish: %v", err)
					return
				}
			}
		}(byte(w + 1))
	}

	readerDone := make(chan struct{})
	var drained int
	go func() {
		defer close(readerDone)
		reader := tracker.Frames().NewReader()
		last := bus.NoFrame
		for {
			frame, ok, err := reader.TryDrain(ctx)
			if err != nil {
				t.Errorf("TryDrain: %v", err)
				return
			}
			if ok {
				if frame.FrameID <= last {
					t.Errorf("frame id went from %d to %d", last, frame.FrameID)
				}
				last = frame.FrameID
				first := frame.Data[0]
				if bytes.Count(frame.Data, []byte{first}) != frameSize {
					t.Errorf("frame %d is torn", frame.FrameID)
					return
				}
				drained++
			}
			if last == 799 {
				return
			}
		}
	}()

	wg.Wait()
	<-readerDone
	if drained == 0 {
		t.Fatal("reader drained nothing")
	}
}

func TestDrainBlocksUntilPublish(t *testing.T) {
	_, _, producer, tracker := openPair(t, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan bus.Frame, 1)
	errs := make(chan error, 1)
	go func() {
		frame, err := tracker.Frames().NewReader().Drain(ctx)
		if err != nil {
			errs <- err
			return
		}
		got <- frame
	}()

	select {
	case f := <-got:
		t.Fatalf("Drain returned before any publish: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := producer.Frames().Publish(ctx, []byte{7}, 1, 1); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case f := <-got:
		if f.FrameID != 0 || f.Data[0] != 7 {
			t.Fatalf("unexpected frame %+v", f)
		}
	case err := <-errs:
		t.Fatalf("Drain: %v", err)
	case <-ctx.Done():
		t.Fatal("Drain did not wake on publish")
	}
}

func TestDrainHonorsCancellation(t *testing.T) {
	_, _, _, tracker := openPair(t, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := tracker.Frames().NewReader().Drain(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain err = %v, want deadline exceeded", err)
	}
	if bus.IsFatal(err) {
		t.Fatal("cancellation must not be reported as fatal")
	}
}

func TestErrorChannelRoundTrip(t *testing.T) {
	_, _, producer, tracker := openPair(t, 16)
	ctx := context.Background()
	want := bus.ErrorVector{X: 0.3, Y: -0.1, Z: 0.05}
	if err := tracker.Errors().Write(ctx, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := producer.Errors().Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != want {
		t.Fatalf("Read = %+v, want %+v", got, want)
	}
}

func TestErrorChannelConcurrentWritesStayConsistent(t *testing.T) {
	_, _, producer, tracker := openPair(t, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 2000 {
			f := float32(i)
			if err := tracker.Errors().Write(ctx, bus.ErrorVector{X: f, Y: f, Z: f}); err != nil {
				t.Errorf("Write: %v", err)
				return
			}
		}
	}()
	for range 2000 {
		v, err := producer.Errors().Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if v.X != v.Y || v.Y != v.Z {
			t.Fatalf("torn error vector %+v", v)
		}
	}
	wg.Wait()
}

func TestLastCloserRemovesEverything(t *testing.T) {
	backend, opts, producer, tracker := openPair(t, 16)

	removed, err := tracker.Close()
	if err != nil || removed {
		t.Fatalf("first Close = %v, %v; want detach only", removed, err)
	}
	if backend.SegmentCount() != 4 || backend.SemaphoreCount() != 3 {
		t.Fatalf("objects removed while still attached: %d segments, %d semaphores",
			backend.SegmentCount(), backend.SemaphoreCount())
	}
	removed, err = producer.Close()
	if err != nil || !removed {
		t.Fatalf("last Close = %v, %v; want removal", removed, err)
	}
	if backend.SegmentCount() != 0 || backend.SemaphoreCount() != 0 {
		t.Fatalf("objects left after last close: %d segments, %d semaphores",
			backend.SegmentCount(), backend.SemaphoreCount())
	}

	// Close is idempotent and reports the first result.
	if again, err := producer.Close(); err != nil || !again {
		t.Fatalf("repeat Close = %v, %v", again, err)
	}
	if _, err := producer.Frames().Publish(context.Background(), []byte{1}, 1, 1); !errors.Is(err, bus.ErrClosed) {
		t.Fatalf("Publish after Close err = %v, want ErrClosed", err)
	}

	// The namespace is clean: a new Open initializes from scratch.
	fresh, err := bus.Open(context.Background(), backend, opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer fresh.Close()
	if !fresh.Initialized() {
		t.Fatal("reopen after teardown should initialize")
	}
}

func TestTeardownIsIdempotentAndFailsPeers(t *testing.T) {
	backend, opts, producer, tracker := openPair(t, 16)
	ctx := context.Background()

	for range 2 {
		if err := bus.Teardown(ctx, backend, opts.Keys, opts.LockPath); err != nil {
			t.Fatalf("Teardown: %v", err)
		}
	}

	_, err := producer.Frames().Publish(ctx, []byte{1}, 1, 1)
	var lockErr *bus.LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Publish after teardown err = %v, want *LockError", err)
	}
	if !errors.Is(err, sysv.ErrRemoved) || !bus.IsFatal(err) {
		t.Fatalf("expected fatal ErrRemoved, got %v", err)
	}
	if _, err := tracker.Errors().Read(ctx); !bus.IsFatal(err) {
		t.Fatalf("Read after teardown err = %v, want fatal", err)
	}
}

func TestOpenRejectsCapacityMismatch(t *testing.T) {
	backend, opts, _, _ := openPair(t, 16)
	opts.FrameCapacity = 8
	if _, err := bus.Open(context.Background(), backend, opts); !errors.Is(err, bus.ErrCapacityMismatch) {
		t.Fatalf("Open err = %v, want ErrCapacityMismatch", err)
	}
}

func TestOpenRequiresLockPath(t *testing.T) {
	if _, err := bus.Open(context.Background(), bus.NewMemoryBackend(), bus.Options{}); err == nil {
		t.Fatal("expected error without a lock path")
	}
}
