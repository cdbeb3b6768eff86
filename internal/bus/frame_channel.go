package bus

import (
	"context"
	"fmt"
	"math"
)

// FrameChannel is the one-slot latest-frame buffer. Publishing overwrites
// the previous frame; readers that fall behind skip frames.
type FrameChannel struct {
	info     Segment
	data     Segment
	lock     Semaphore
	signal   Semaphore
	capacity int
}

// Capacity is the largest payload Publish accepts.
func (c *FrameChannel) Capacity() int { return c.capacity }

// Publish replaces the latest frame and returns its id. The lock is held
// only for the copy; Publish never waits on readers.
func (c *FrameChannel) Publish(ctx context.Context, payload []byte, width, height int) (int64, error) {
	if len(payload) > c.capacity {
		return NoFrame, fmt.Errorf("%w: %d bytes, capacity %d", ErrFrameTooLarge, len(payload), c.capacity)
	}
	if width < 0 || height < 0 || int64(width) > math.MaxUint32 || int64(height) > math.MaxUint32 {
		return NoFrame, fmt.Errorf("bus: invalid dimensions %dx%d", width, height)
	}
	info, data := c.info.Bytes(), c.data.Bytes()
	if info == nil || data == nil {
		return NoFrame, ErrClosed
	}

	if err := c.lock.Acquire(ctx); err != nil {
		return NoFrame, lockFailure("frame", "acquire", err)
	}
	rec := decodeFrameRecord(info)
	rec.Size = uint32(len(payload))
	rec.Width = uint32(width)
	rec.Height = uint32(height)
	copy(data, payload)
	rec.FrameID++
	encodeFrameRecord(info, rec)
	ringErr := c.ring()
	if err := c.lock.Release(); err != nil {
		return rec.FrameID, lockFailure("frame", "release", err)
	}
	if ringErr != nil {
		return rec.FrameID, lockFailure("frame-signal", "post", ringErr)
	}
	return rec.FrameID, nil
}

// ring posts the doorbell unless it is already rung. Called with the frame
// lock held, so two publishers cannot both see zero.
func (c *FrameChannel) ring() error {
	v, err := c.signal.Value()
	if err != nil {
		return err
	}
	if v > 0 {
		return nil
	}
	return c.signal.Post()
}

// Latest returns the current record without copying the payload.
func (c *FrameChannel) Latest(ctx context.Context) (FrameRecord, error) {
	info := c.info.Bytes()
	if info == nil {
		return FrameRecord{}, ErrClosed
	}
	if err := c.lock.Acquire(ctx); err != nil {
		return FrameRecord{}, lockFailure("frame", "acquire", err)
	}
	rec := decodeFrameRecord(info)
	if err := c.lock.Release(); err != nil {
		return rec, lockFailure("frame", "release", err)
	}
	return rec, nil
}

// NewReader returns a reader that has seen nothing yet.
func (c *FrameChannel) NewReader() *FrameReader {
	return &FrameReader{ch: c, lastSeen: NoFrame}
}

// FrameReader drains new frames into storage it owns. A reader is not safe
// for concurrent use.
type FrameReader struct {
	ch       *FrameChannel
	lastSeen int64
	buf      []byte
}

// LastSeen is the id of the last frame this reader returned.
func (r *FrameReader) LastSeen() int64 { return r.lastSeen }

// TryDrain copies the latest frame if it is newer than the last one seen.
// ok is false when nothing new was published.
func (r *FrameReader) TryDrain(ctx context.Context) (frame Frame, ok bool, err error) {
	c := r.ch
	info, data := c.info.Bytes(), c.data.Bytes()
	if info == nil || data == nil {
		return Frame{}, false, ErrClosed
	}
	if err := c.lock.Acquire(ctx); err != nil {
		return Frame{}, false, lockFailure("frame", "acquire", err)
	}
	rec := decodeFrameRecord(info)
	fresh := rec.FrameID != NoFrame && rec.FrameID != r.lastSeen
	var corrupt bool
	if fresh {
		if int(rec.Size) > c.capacity {
			corrupt = true
		} else {
			r.buf = append(r.buf[:0], data[:rec.Size]...)
			r.lastSeen = rec.FrameID
		}
	}
	if err := c.lock.Release(); err != nil {
		return Frame{}, false, lockFailure("frame", "release", err)
	}
	switch {
	case corrupt:
		return Frame{}, false, fmt.Errorf("%w: frame %d claims %d bytes", ErrCorruptRecord, rec.FrameID, rec.Size)
	case !fresh:
		return Frame{}, false, nil
	}
	return Frame{FrameRecord: rec, Data: r.buf}, true, nil
}

// Drain blocks until a frame newer than the last one seen is available.
// Between attempts it waits on the doorbell instead of polling.
func (r *FrameReader) Drain(ctx context.Context) (Frame, error) {
	for {
		frame, ok, err := r.TryDrain(ctx)
		if err != nil || ok {
			return frame, err
		}
		if err := r.ch.signal.Wait(ctx); err != nil {
			return Frame{}, lockFailure("frame-signal", "wait", err)
		}
	}
}
