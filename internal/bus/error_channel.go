package bus

import "context"

// ErrorChannel is the one-slot latest-error buffer. Writer and reader both
// hold the error lock so a vector is never read half-written.
type ErrorChannel struct {
	seg  Segment
	lock Semaphore
}

// Write replaces the latest error vector.
func (c *ErrorChannel) Write(ctx context.Context, v ErrorVector) error {
	b := c.seg.Bytes()
	if b == nil {
		return ErrClosed
	}
	if err := c.lock.Acquire(ctx); err != nil {
		return lockFailure("error", "acquire", err)
	}
	encodeErrorVector(b, v)
	return lockFailure("error", "release", c.lock.Release())
}

// Read returns the latest error vector; the zero vector until the first
// write.
func (c *ErrorChannel) Read(ctx context.Context) (ErrorVector, error) {
	b := c.seg.Bytes()
	if b == nil {
		return ErrorVector{}, ErrClosed
	}
	if err := c.lock.Acquire(ctx); err != nil {
		return ErrorVector{}, lockFailure("error", "acquire", err)
	}
	v := decodeErrorVector(b)
	return v, lockFailure("error", "release", c.lock.Release())
}
