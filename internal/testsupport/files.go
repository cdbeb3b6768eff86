package testsupport

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"dronetrack/internal/pixel"
)

// RGB565Frame returns a width x height frame filled with bg and, when box is
// non-empty, a solid fg rectangle.
func RGB565Frame(width, height int, box image.Rectangle, fg, bg color.RGBA) []byte {
	frame := make([]byte, width*height*2)
	pixel.FillRGB565(frame, width, height, image.Rect(0, 0, width, height), bg)
	if !box.Empty() {
		pixel.FillRGB565(frame, width, height, box, fg)
	}
	return frame
}

// PixelAt decodes the RGB565 pixel at (x, y) of a frame width pixels wide.
func PixelAt(frame []byte, width, x, y int) color.RGBA {
	off := y*pixel.Stride(width, pixel.BytesPerPixel) + x*pixel.BytesPerPixel
	return pixel.UnpackRGB565(uint16(frame[off]) | uint16(frame[off+1])<<8)
}

// WriteFrames concatenates frames into path, the layout the file source
// replays.
func WriteFrames(t testing.TB, path string, frames ...[]byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	for _, frame := range frames {
		if _, err := f.Write(frame); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}
