package bus

import (
	"context"
	"fmt"
	"sync"

	"dronetrack/internal/sysv"
)

// MemoryBackend is an in-process Backend with the same create-or-attach,
// attach counting and removal semantics as System V. Two Bus values opened
// on one MemoryBackend behave like two processes sharing the kernel
// namespace. Undo-on-exit is not emulated.
type MemoryBackend struct {
	mu       sync.Mutex
	segments map[int]*memRegion
	sems     map[int]*memSemaphore
}

// NewMemoryBackend returns an empty namespace.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		segments: make(map[int]*memRegion),
		sems:     make(map[int]*memSemaphore),
	}
}

type memRegion struct {
	data     []byte
	attached int
}

type memSegment struct {
	backend *MemoryBackend
	region  *memRegion
	mu      sync.Mutex
	data    []byte
}

func (b *MemoryBackend) AttachSegment(key, size int) (Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memory segment %d: size must be positive, got %d", key, size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	region, ok := b.segments[key]
	if !ok {
		region = &memRegion{data: make([]byte, size)}
		b.segments[key] = region
	}
	if len(region.data) < size {
		return nil, fmt.Errorf("memory segment %d is %d bytes, need %d", key, len(region.data), size)
	}
	region.attached++
	return &memSegment{backend: b, region: region, data: region.data[:size]}, nil
}

func (s *memSegment) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *memSegment) Attachments() (int, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return s.region.attached, nil
}

func (s *memSegment) Detach() error {
	s.mu.Lock()
	if s.data == nil {
		s.mu.Unlock()
		return nil
	}
	s.data = nil
	s.mu.Unlock()

	s.backend.mu.Lock()
	s.region.attached--
	s.backend.mu.Unlock()
	return nil
}

// RemoveSegment drops key from the namespace. Existing attachments keep
// their memory, as with IPC_RMID; a later attach creates a fresh region.
func (b *MemoryBackend) RemoveSegment(key int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.segments, key)
	return nil
}

// SegmentCount reports how many segments exist in the namespace.
func (b *MemoryBackend) SegmentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments)
}

// SemaphoreCount reports how many semaphores exist in the namespace.
func (b *MemoryBackend) SemaphoreCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sems)
}

type memSemaphore struct {
	key     int
	mu      sync.Mutex
	value   int
	removed bool
	changed chan struct{}
}

func (b *MemoryBackend) OpenSemaphore(key int) (Semaphore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sem, ok := b.sems[key]
	if !ok {
		sem = &memSemaphore{key: key, changed: make(chan struct{})}
		b.sems[key] = sem
	}
	return sem, nil
}

// RemoveSemaphore drops key and fails every pending and future operation on
// handles to it with sysv.ErrRemoved.
func (b *MemoryBackend) RemoveSemaphore(key int) error {
	b.mu.Lock()
	sem, ok := b.sems[key]
	delete(b.sems, key)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	sem.mu.Lock()
	sem.removed = true
	sem.notifyLocked()
	sem.mu.Unlock()
	return nil
}

func (s *memSemaphore) Acquire(ctx context.Context) error { return s.wait(ctx) }

func (s *memSemaphore) Release() error { return s.post() }

func (s *memSemaphore) Wait(ctx context.Context) error { return s.wait(ctx) }

func (s *memSemaphore) Post() error { return s.post() }

func (s *memSemaphore) Value() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return 0, s.removedErr("getval")
	}
	return s.value, nil
}

func (s *memSemaphore) SetValue(v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return s.removedErr("setval")
	}
	s.value = v
	s.notifyLocked()
	return nil
}

func (s *memSemaphore) wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.removed {
			s.mu.Unlock()
			return s.removedErr("semop")
		}
		if s.value > 0 {
			s.value--
			s.mu.Unlock()
			return nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (s *memSemaphore) post() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return s.removedErr("semop")
	}
	s.value++
	s.notifyLocked()
	return nil
}

func (s *memSemaphore) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *memSemaphore) removedErr(op string) error {
	return fmt.Errorf("%s key %d: %w", op, s.key, sysv.ErrRemoved)
}
