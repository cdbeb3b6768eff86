package tracker

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"dronetrack/internal/bus"
	"dronetrack/internal/config"
	"dronetrack/internal/framecache"
	"dronetrack/internal/pixel"
)

// Observation is the analyzer's view of one frame.
type Observation struct {
	Found bool
	Box   image.Rectangle
}

// Analyzer locates the target in a frame. Implementations must not retain
// frame.Data after returning.
type Analyzer interface {
	Analyze(frame framecache.LocalFrame) (Observation, error)
}

// Geometry converts a bounding box into an error vector.
type Geometry struct {
	XScale        float64
	YScale        float64
	YGain         float64
	ReferenceArea float64
	AreaNorm      float64
}

// GeometryFromConfig reads the tracker section.
func GeometryFromConfig(c config.Tracker) Geometry {
	return Geometry{
		XScale:        c.XScale,
		YScale:        c.YScale,
		YGain:         c.YGain,
		ReferenceArea: c.ReferenceArea,
		AreaNorm:      c.AreaNorm,
	}
}

// ErrorFromBox computes the tracking error of box in a width x height frame.
// X and Y are the offsets of the box center from the frame center; Z is
// positive when the box is smaller than the reference area, i.e. the target
// is too far away.
func ErrorFromBox(box image.Rectangle, width, height int, g Geometry) bus.ErrorVector {
	cx := float64(box.Min.X+box.Max.X) / 2
	cy := float64(box.Min.Y+box.Max.Y) / 2
	area := float64(box.Dx() * box.Dy())
	return bus.ErrorVector{
		X: float32((cx - float64(width)/2) / g.XScale),
		Y: float32((cy - float64(height)/2) / g.YScale * g.YGain),
		Z: float32((g.ReferenceArea - area) / g.AreaNorm),
	}
}

// ColorAnalyzer finds the bounding box of pixels close to a target color.
type ColorAnalyzer struct {
	Target    color.RGBA
	Tolerance int
	MinPixels int
}

// NewAnalyzer builds the analyzer named in the tracker config.
func NewAnalyzer(c config.Tracker) (Analyzer, error) {
	switch strings.ToLower(c.Analyzer) {
	case "", "color":
		target, err := config.ParseColor(c.TargetColor)
		if err != nil {
			return nil, err
		}
		return &ColorAnalyzer{Target: target, Tolerance: c.Tolerance, MinPixels: c.MinPixels}, nil
	default:
		return nil, fmt.Errorf("unsupported analyzer %q", c.Analyzer)
	}
}

func (a *ColorAnalyzer) Analyze(frame framecache.LocalFrame) (Observation, error) {
	w, h := frame.Width, frame.Height
	if need := pixel.FrameSize(w, h); len(frame.Data) < need {
		return Observation{}, fmt.Errorf("%w: frame %d has %d bytes, %dx%d needs %d",
			pixel.ErrShortBuffer, frame.FrameID, len(frame.Data), w, h, need)
	}
	rgb, err := pixel.RGB565ToRGB888(frame.Data, w, h)
	if err != nil {
		return Observation{}, fmt.Errorf("convert frame %d: %w", frame.FrameID, err)
	}
	stride := pixel.Stride(w, 3)
	minX, minY, maxX, maxY := w, h, -1, -1
	matches := 0
	for y := 0; y < h; y++ {
		row := rgb[y*stride:]
		for x := 0; x < w; x++ {
			if !a.matches(row[x*3], row[x*3+1], row[x*3+2]) {
				continue
			}
			matches++
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	minPixels := max(a.MinPixels, 1)
	if matches < minPixels {
		return Observation{}, nil
	}
	return Observation{Found: true, Box: image.Rect(minX, minY, maxX+1, maxY+1)}, nil
}

func (a *ColorAnalyzer) matches(r, g, b uint8) bool {
	return channelDistance(r, a.Target.R) <= a.Tolerance &&
		channelDistance(g, a.Target.G) <= a.Tolerance &&
		channelDistance(b, a.Target.B) <= a.Tolerance
}

func channelDistance(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}
