package bus

import (
	"context"
	"os"
	"time"

	"dronetrack/internal/sysv"
)

// Segment is an attached shared region.
type Segment interface {
	// Bytes returns the mapping, or nil after Detach.
	Bytes() []byte
	// Attachments is the number of attaches the kernel currently counts.
	Attachments() (int, error)
	Detach() error
}

// Semaphore is a counting semaphore visible to both processes.
type Semaphore interface {
	// Acquire and Release are P and V with undo-on-exit semantics.
	Acquire(ctx context.Context) error
	Release() error
	// Wait and Post are P and V without undo.
	Wait(ctx context.Context) error
	Post() error
	Value() (int, error)
	SetValue(v int) error
}

// Backend creates and removes the kernel objects behind a bus.
type Backend interface {
	AttachSegment(key, size int) (Segment, error)
	OpenSemaphore(key int) (Semaphore, error)
	RemoveSegment(key int) error
	RemoveSemaphore(key int) error
}

// SysvBackend maps the bus onto System V shared memory and semaphores.
type SysvBackend struct {
	Perm         os.FileMode
	PollInterval time.Duration
}

// NewSysvBackend returns a backend creating objects with perm and slicing
// blocking waits by poll.
func NewSysvBackend(perm os.FileMode, poll time.Duration) *SysvBackend {
	return &SysvBackend{Perm: perm, PollInterval: poll}
}

func (b *SysvBackend) AttachSegment(key, size int) (Segment, error) {
	seg, err := sysv.AttachSegment(key, size, b.perm())
	if err != nil {
		return nil, err
	}
	return seg, nil
}

func (b *SysvBackend) OpenSemaphore(key int) (Semaphore, error) {
	sem, err := sysv.OpenSemaphore(key, b.perm(), b.PollInterval)
	if err != nil {
		return nil, err
	}
	return sem, nil
}

func (b *SysvBackend) RemoveSegment(key int) error { return sysv.RemoveSegment(key) }

func (b *SysvBackend) RemoveSemaphore(key int) error { return sysv.RemoveSemaphore(key) }

func (b *SysvBackend) perm() os.FileMode {
	if b.Perm == 0 {
		return 0o666
	}
	return b.Perm
}
