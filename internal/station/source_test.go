package station

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"dronetrack/internal/config"
	"dronetrack/internal/pixel"
	"dronetrack/internal/testsupport"
)

var (
	red   = color.RGBA{R: 0xff, G: 0x20, B: 0x20, A: 0xff}
	green = color.RGBA{G: 0xff, A: 0xff}
	black = color.RGBA{A: 0xff}
)

func TestSyntheticSourceDrawsTarget(t *testing.T) {
	src := NewSyntheticSource(640, 360, 0, red)
	frame, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Width != 640 || frame.Height != 360 || len(frame.Data) != pixel.FrameSize(640, 360) {
		t.Fatalf("unexpected frame %dx%d with %d bytes", frame.Width, frame.Height, len(frame.Data))
	}
	box := src.boxAt(0)
	if box.Empty() {
		t.Fatal("expected a visible box on the first frame")
	}
	center := box.Min.Add(box.Size().Div(2))
	want := pixel.UnpackRGB565(pixel.PackRGB565(red))
	if got := testsupport.PixelAt(frame.Data, 640, center.X, center.Y); got != want {
		t.Fatalf("box center = %+v, want %+v", got, want)
	}
	if got := testsupport.PixelAt(frame.Data, 640, 0, 0); got != pixel.UnpackRGB565(pixel.PackRGB565(black)) {
		t.Fatalf("corner = %+v, want background", got)
	}
}

func TestSyntheticSourceMoves(t *testing.T) {
	src := NewSyntheticSource(640, 360, 0, red)
	first := src.boxAt(0)
	for tick := 1; tick < 50; tick++ {
		if src.boxAt(tick) != first {
			return
		}
	}
	t.Fatal("box never moved")
}

func TestSyntheticSourceHonorsContext(t *testing.T) {
	src := NewSyntheticSource(64, 64, 0.001, red)
	if _, err := src.Next(context.Background()); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); err == nil {
		t.Fatal("expected canceled wait to fail")
	}
}

func TestFileSourceLoops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.raw")
	a := testsupport.RGB565Frame(4, 2, image.Rectangle{}, red, red)
	b := testsupport.RGB565Frame(4, 2, image.Rectangle{}, green, green)
	testsupport.WriteFrames(t, path, a, b, []byte{1, 2, 3})

	src, err := OpenFileSource(path, 4, 2, 0, true)
	if err != nil {
		t.Fatalf("OpenFileSource: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	wantRed := pixel.UnpackRGB565(pixel.PackRGB565(red))
	wantGreen := pixel.UnpackRGB565(pixel.PackRGB565(green))
	for i, want := range []color.RGBA{wantRed, wantGreen, wantRed, wantGreen} {
		frame, err := src.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if got := testsupport.PixelAt(frame.Data, 4, 1, 1); got != want {
			t.Fatalf("frame %d pixel = %+v, want %+v", i, got, want)
		}
	}
}

func TestFileSourceStopsWithoutLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.raw")
	testsupport.WriteFrames(t, path, testsupport.RGB565Frame(4, 2, image.Rectangle{}, red, black))

	src, err := OpenFileSource(path, 4, 2, 0, false)
	if err != nil {
		t.Fatalf("OpenFileSource: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	if _, err := src.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := src.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestOpenFileSourceRejectsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.raw")
	testsupport.WriteFrames(t, path, []byte{1, 2, 3})
	if _, err := OpenFileSource(path, 4, 2, 0, true); err == nil || !strings.Contains(err.Error(), "one 4x2 frame") {
		t.Fatalf("expected short file error, got %v", err)
	}
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(config.Producer{Source: "synthetic", Width: 64, Height: 32}, red)
	if err != nil || src.Name() != "synthetic" {
		t.Fatalf("NewSource synthetic = %v, %v", src, err)
	}
	if _, err := NewSource(config.Producer{Source: "camera"}, red); err == nil {
		t.Fatal("expected unknown source error")
	}
	if _, err := NewSource(config.Producer{Source: "file", FramePath: filepath.Join(t.TempDir(), "missing")}, red); err == nil {
		t.Fatal("expected missing file error")
	}
}
