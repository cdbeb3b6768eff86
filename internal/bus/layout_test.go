package bus

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
)

func TestFrameRecordLayout(t *testing.T) {
	b := make([]byte, frameRecordSize)
	encodeFrameRecord(b, FrameRecord{Size: 460800, Width: 640, Height: 360, FrameID: 42})

	if got := binary.LittleEndian.Uint32(b[0:]); got != 460800 {
		t.Fatalf("size at offset 0 = %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[4:]); got != 640 {
		t.Fatalf("width at offset 4 = %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[8:]); got != 360 {
		t.Fatalf("height at offset 8 = %d", got)
	}
	if got := int64(binary.LittleEndian.Uint64(b[16:])); got != 42 {
		t.Fatalf("frame id at offset 16 = %d", got)
	}

	encodeFrameRecord(b, FrameRecord{FrameID: NoFrame})
	if got := decodeFrameRecord(b).FrameID; got != NoFrame {
		t.Fatalf("NoFrame did not survive encoding: %d", got)
	}
}

func TestErrorVectorLayout(t *testing.T) {
	b := make([]byte, errorVectorSize)
	in := ErrorVector{X: 0.3, Y: -0.125, Z: 1.5}
	encodeErrorVector(b, in)
	if out := decodeErrorVector(b); out != in {
		t.Fatalf("decode = %+v, want %+v", out, in)
	}
}

func TestControlMagicSpellsDTRK(t *testing.T) {
	b := make([]byte, controlHeaderSize)
	encodeControlHeader(b, controlHeader{Magic: controlMagic})
	if string(b[:4]) != "DTRK" {
		t.Fatalf("magic bytes = %q", b[:4])
	}
}

func TestOpenReconcilesStaleAttachCount(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	opts := Options{LockPath: filepath.Join(t.TempDir(), "bus.lock")}

	first, err := Open(ctx, backend, opts)
	if err != nil {
		t.Fatalf("Open first: %v", err)
	}
	// A crashed process left its increment behind.
	setAttached(first.control.Bytes(), 5)

	second, err := Open(ctx, backend, opts)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	if got := decodeControlHeader(second.control.Bytes()).Attached; got != 2 {
		t.Fatalf("attached after reconcile = %d, want 2", got)
	}

	if removed, err := second.Close(); err != nil || removed {
		t.Fatalf("second Close = %v, %v; want not removed", removed, err)
	}
	if removed, err := first.Close(); err != nil || !removed {
		t.Fatalf("first Close = %v, %v; want removed", removed, err)
	}
}

func TestOpenReinitializesHalfInitializedBus(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	opts := Options{LockPath: filepath.Join(t.TempDir(), "bus.lock")}

	// Simulate a creator that died after writing the header but before ready.
	seg, err := backend.AttachSegment(DefaultKeys().Control, controlHeaderSize)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	encodeControlHeader(seg.Bytes(), controlHeader{Magic: controlMagic, Version: layoutVersion, Attached: 1})
	_ = seg.Detach()

	b, err := Open(ctx, backend, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	if !b.Initialized() {
		t.Fatal("expected a not-ready bus to be initialized")
	}
	if got := decodeControlHeader(b.control.Bytes()).Attached; got != 1 {
		t.Fatalf("attached = %d, want 1", got)
	}
}
