package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected the single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerLevelsAreIndependent(t *testing.T) {
	var consoleBuf, fileBuf bytes.Buffer
	console := slog.NewJSONHandler(&consoleBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	file := slog.NewJSONHandler(&fileBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := newFanoutHandler(console, file)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled for debug when one handler accepts it")
	}

	slog.New(h).Debug("frame drained", slog.Int64("frame_id", 4))

	if consoleBuf.Len() != 0 {
		t.Errorf("info handler received a debug record: %s", consoleBuf.String())
	}
	if !bytes.Contains(fileBuf.Bytes(), []byte(`"frame_id":4`)) {
		t.Errorf("debug handler missing record: %s", fileBuf.String())
	}
}

func TestFanoutHandlerPropagatesAttrsAndGroups(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "bus")}).WithGroup("frame"))
	logger.Info("published", slog.Int("size", 460800))

	for name, buf := range map[string]*bytes.Buffer{"first": &buf1, "second": &buf2} {
		if !bytes.Contains(buf.Bytes(), []byte(`"component":"bus"`)) {
			t.Errorf("%s handler missing component attr: %s", name, buf.String())
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"frame":{"size":460800}`)) {
			t.Errorf("%s handler missing grouped attr: %s", name, buf.String())
		}
	}
}
