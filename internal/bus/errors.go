package bus

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrFrameTooLarge rejects a publish whose payload exceeds the data
	// segment. The channel is left untouched.
	ErrFrameTooLarge = errors.New("bus: frame larger than channel capacity")
	// ErrCapacityMismatch means the bus was initialized by a process
	// configured with a different frame capacity.
	ErrCapacityMismatch = errors.New("bus: frame capacity differs from the initialized bus")
	// ErrForeignSegment means the control key is used by something else.
	ErrForeignSegment = errors.New("bus: control segment has an unknown layout")
	// ErrCorruptRecord reports a frame record whose size exceeds capacity.
	ErrCorruptRecord = errors.New("bus: frame record size exceeds capacity")
	// ErrClosed is returned by channel operations after Close.
	ErrClosed = errors.New("bus: closed")
)

// LockError is a failed operation on one of the bus semaphores. The
// controller and the tracker treat it as fatal.
type LockError struct {
	Lock string
	Op   string
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("bus: %s lock %s: %v", e.Lock, e.Op, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// lockFailure wraps err in a LockError unless it is a context cancellation,
// which callers handle as a normal shutdown.
func lockFailure(lock, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &LockError{Lock: lock, Op: op, Err: err}
}

// IsFatal reports whether err leaves the bus in a state the process cannot
// recover from: a lost semaphore or a corrupt frame record.
func IsFatal(err error) bool {
	var lockErr *LockError
	return errors.As(err, &lockErr) || errors.Is(err, ErrCorruptRecord)
}
