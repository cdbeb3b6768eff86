package station

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"golang.org/x/time/rate"

	"dronetrack/internal/config"
	"dronetrack/internal/pixel"
)

// Frame is one decoded RGB565 picture.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// FrameSource yields decoded frames at the producer's pace. Next returns
// io.EOF when the source is exhausted. The returned Data may be reused by
// the next call.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Name() string
}

// NewSource builds the source named in the producer config.
func NewSource(cfg config.Producer, target color.RGBA) (FrameSource, error) {
	switch cfg.Source {
	case "synthetic", "":
		return NewSyntheticSource(cfg.Width, cfg.Height, cfg.FPS, target), nil
	case "file":
		return OpenFileSource(cfg.FramePath, cfg.Width, cfg.Height, cfg.FPS, cfg.Loop)
	default:
		return nil, fmt.Errorf("unknown frame source %q", cfg.Source)
	}
}

func newLimiter(fps float64) *rate.Limiter {
	if fps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(fps), 1)
}

var background = color.RGBA{A: 0xff}

// SyntheticSource renders a solid target box drifting across a black field
// so the full loop can run on the bench without a camera.
type SyntheticSource struct {
	width, height int
	target        color.RGBA
	limiter       *rate.Limiter
	buf           []byte
	tick          int
}

// NewSyntheticSource returns a paced synthetic source.
func NewSyntheticSource(width, height int, fps float64, target color.RGBA) *SyntheticSource {
	return &SyntheticSource{
		width:   width,
		height:  height,
		target:  target,
		limiter: newLimiter(fps),
		buf:     make([]byte, pixel.FrameSize(width, height)),
	}
}

// Name implements FrameSource.
func (s *SyntheticSource) Name() string { return "synthetic" }

// Next implements FrameSource.
func (s *SyntheticSource) Next(ctx context.Context) (Frame, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Frame{}, err
	}
	box := s.boxAt(s.tick)
	s.tick++
	pixel.FillRGB565(s.buf, s.width, s.height, image.Rect(0, 0, s.width, s.height), background)
	pixel.FillRGB565(s.buf, s.width, s.height, box, s.target)
	return Frame{Data: s.buf, Width: s.width, Height: s.height}, nil
}

// boxAt sweeps the box horizontally with a slower vertical bob and a
// breathing size so all three error axes move.
func (s *SyntheticSource) boxAt(tick int) image.Rectangle {
	t := float64(tick)
	side := float64(min(s.width, s.height)) * (0.3 + 0.1*math.Sin(t/37))
	cx := float64(s.width)/2 + float64(s.width)/3*math.Sin(t/23)
	cy := float64(s.height)/2 + float64(s.height)/6*math.Sin(t/41)
	half := side / 2
	return image.Rect(int(cx-half), int(cy-half), int(cx+half), int(cy+half)).
		Intersect(image.Rect(0, 0, s.width, s.height))
}

// FileSource replays a file of back-to-back raw RGB565 frames.
type FileSource struct {
	f             *os.File
	path          string
	width, height int
	loop          bool
	limiter       *rate.Limiter
	buf           []byte
}

// OpenFileSource opens path. The file must hold at least one whole frame.
func OpenFileSource(path string, width, height int, fps float64, loop bool) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame file: %w", err)
	}
	size := pixel.FrameSize(width, height)
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat frame file: %w", err)
	}
	if info.Size() < int64(size) {
		f.Close()
		return nil, fmt.Errorf("frame file %s holds %d bytes, one %dx%d frame needs %d", path, info.Size(), width, height, size)
	}
	return &FileSource{
		f:       f,
		path:    path,
		width:   width,
		height:  height,
		loop:    loop,
		limiter: newLimiter(fps),
		buf:     make([]byte, size),
	}, nil
}

// Name implements FrameSource.
func (s *FileSource) Name() string { return "file:" + s.path }

// Next implements FrameSource. A trailing partial frame is ignored.
func (s *FileSource) Next(ctx context.Context) (Frame, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Frame{}, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		_, err := io.ReadFull(s.f, s.buf)
		if err == nil {
			return Frame{Data: s.buf, Width: s.width, Height: s.height}, nil
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("read frame file: %w", err)
		}
		if !s.loop {
			return Frame{}, io.EOF
		}
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return Frame{}, fmt.Errorf("rewind frame file: %w", err)
		}
	}
	return Frame{}, io.EOF
}

// Close releases the file.
func (s *FileSource) Close() error { return s.f.Close() }
