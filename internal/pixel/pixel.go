// Package pixel handles the RGB565 frames that travel over the bus.
//
// Pixels are little-endian 16-bit words, red in the top five bits. Rows are
// padded to a multiple of four bytes; every standard drone resolution is
// already aligned so the padding is zero in practice.
package pixel

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// BytesPerPixel is the RGB565 pixel width.
const BytesPerPixel = 2

// ErrShortBuffer reports a frame smaller than its declared dimensions.
var ErrShortBuffer = errors.New("pixel: buffer shorter than dimensions")

type resolution struct {
	width, height int
}

// knownSizes maps RGB565 payload lengths to the resolutions the drone
// camera produces.
var knownSizes = map[int]resolution{
	176 * 144 * BytesPerPixel:  {176, 144},  // QCIF
	320 * 240 * BytesPerPixel:  {320, 240},  // QVGA
	640 * 360 * BytesPerPixel:  {640, 360},  // 360p
	1280 * 720 * BytesPerPixel: {1280, 720}, // 720p
}

// DimensionsForSize infers frame dimensions from an RGB565 payload length.
// Unknown sizes yield 0x0, which consumers treat as "skip this frame".
func DimensionsForSize(size int) (width, height int) {
	r, ok := knownSizes[size]
	if !ok {
		return 0, 0
	}
	return r.width, r.height
}

// Stride is the row length in bytes rounded up to four.
func Stride(width, bytesPerPixel int) int {
	return (width*bytesPerPixel + 3) &^ 3
}

// FrameSize is the RGB565 payload length for width x height.
func FrameSize(width, height int) int {
	return Stride(width, BytesPerPixel) * height
}

// PackRGB565 drops the low bits of each channel.
func PackRGB565(c color.RGBA) uint16 {
	return uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
}

// UnpackRGB565 widens a pixel by shifting; the low bits stay zero.
func UnpackRGB565(v uint16) color.RGBA {
	return color.RGBA{
		R: uint8(v>>11) << 3,
		G: uint8(v>>5) << 2,
		B: uint8(v) << 3,
		A: 0xff,
	}
}

// FillRGB565 paints r, clipped to the frame, with c.
func FillRGB565(frame []byte, width, height int, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(image.Rect(0, 0, width, height))
	if r.Empty() {
		return
	}
	v := PackRGB565(c)
	lo, hi := byte(v), byte(v>>8)
	stride := Stride(width, BytesPerPixel)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := frame[y*stride:]
		for x := r.Min.X; x < r.Max.X; x++ {
			row[x*2] = lo
			row[x*2+1] = hi
		}
	}
}

// RGB565ToRGB888 expands a frame to 24-bit R, G, B triples with rows padded
// to four bytes.
func RGB565ToRGB888(src []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pixel: invalid dimensions %dx%d", width, height)
	}
	srcStride := Stride(width, BytesPerPixel)
	if len(src) < srcStride*height {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(src), srcStride*height)
	}
	dstStride := Stride(width, 3)
	dst := make([]byte, dstStride*height)
	for y := 0; y < height; y++ {
		in := src[y*srcStride:]
		out := dst[y*dstStride:]
		for x := 0; x < width; x++ {
			c := UnpackRGB565(uint16(in[x*2]) | uint16(in[x*2+1])<<8)
			out[x*3] = c.R
			out[x*3+1] = c.G
			out[x*3+2] = c.B
		}
	}
	return dst, nil
}
