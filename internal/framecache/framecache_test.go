package framecache

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAnalyzeWaitsForFirstFrame(t *testing.T) {
	c := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan LocalFrame, 1)
	go func() {
		_, err := c.Analyze(ctx, -1, func(f LocalFrame) error {
			got <- LocalFrame{FrameID: f.FrameID, Width: f.Width, Height: f.Height, Data: append([]byte(nil), f.Data...)}
			return nil
		})
		if err != nil {
			t.Errorf("Analyze: %v", err)
		}
	}()

	select {
	case <-got:
		t.Fatal("Analyze ran without a frame")
	case <-time.After(30 * time.Millisecond):
	}

	if err := c.Store(3, 2, 1, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	select {
	case f := <-got:
		if f.FrameID != 3 || f.Width != 2 || !bytes.Equal(f.Data, []byte{1, 2, 3, 4}) {
			t.Fatalf("unexpected frame %+v", f)
		}
	case <-ctx.Done():
		t.Fatal("Analyze never woke")
	}
}

func TestAnalyzeSkipsAlreadyAnalyzedFrame(t *testing.T) {
	c := New()
	if err := c.Store(0, 1, 1, []byte{9}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	id, err := c.Analyze(context.Background(), -1, func(LocalFrame) error { return nil })
	if err != nil || id != 0 {
		t.Fatalf("Analyze = %d, %v", id, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = c.Analyze(ctx, id, func(LocalFrame) error {
		t.Error("re-analyzed the same frame")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Analyze err = %v, want deadline exceeded", err)
	}
}

func TestStoreBlocksDuringAnalysis(t *testing.T) {
	c := New()
	if err := c.Store(0, 1, 1, []byte{0xAA}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	inside := make(chan struct{})
	release := make(chan struct{})
	var stored atomic.Bool
	analyzed := make(chan error, 1)

	go func() {
		_, err := c.Analyze(context.Background(), -1, func(f LocalFrame) error {
			close(inside)
			<-release
			if f.Data[0] != 0xAA || stored.Load() {
				return errors.New("frame changed during analysis")
			}
			return nil
		})
		analyzed <- err
	}()
	<-inside

	storeDone := make(chan struct{})
	go func() {
		_ = c.Store(1, 1, 1, []byte{0xBB})
		stored.Store(true)
		close(storeDone)
	}()

	select {
	case <-storeDone:
		t.Fatal("Store completed while analysis held the cache")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	if err := <-analyzed; err != nil {
		t.Fatal(err)
	}
	<-storeDone

	f, ok := c.Latest()
	if !ok || f.FrameID != 1 || f.Data[0] != 0xBB {
		t.Fatalf("Latest = %+v, %v", f, ok)
	}
}

func TestStatsCountSkippedFrames(t *testing.T) {
	c := New()
	for i := range 3 {
		if err := c.Store(int64(i), 1, 1, []byte{byte(i)}); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	stored, skipped := c.Stats()
	if stored != 3 || skipped != 2 {
		t.Fatalf("Stats = %d stored, %d skipped; want 3, 2", stored, skipped)
	}
}

func TestCloseWakesWaiters(t *testing.T) {
	c := New()
	done := make(chan error, 1)
	go func() {
		_, err := c.Analyze(context.Background(), -1, func(LocalFrame) error { return nil })
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Analyze err = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not wake Analyze")
	}
	if err := c.Store(0, 1, 1, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Store after Close = %v", err)
	}
}
