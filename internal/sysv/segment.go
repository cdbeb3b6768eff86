package sysv

import (
	"fmt"
	"os"
	"sync"
)

// Segment is an attached System V shared memory segment.
type Segment struct {
	key     int
	id      int
	size    int
	created bool

	mu   sync.Mutex
	data []byte
}

// AttachSegment creates the segment identified by key, or attaches to it when
// another process created it first. Created reports which case happened.
func AttachSegment(key, size int, perm os.FileMode) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("sysv: segment %d: size must be positive, got %d", key, size)
	}
	id, created, err := shmCreateOrGet(key, size, int(perm.Perm()))
	if err != nil {
		return nil, fmt.Errorf("shmget key %d: %w", key, err)
	}
	data, err := shmAttach(id)
	if err != nil {
		return nil, fmt.Errorf("shmat key %d: %w", key, err)
	}
	if len(data) < size {
		_ = shmDetach(data)
		return nil, fmt.Errorf("sysv: segment %d is %d bytes, need %d", key, len(data), size)
	}
	return &Segment{key: key, id: id, size: size, created: created, data: data[:size]}, nil
}

// Key returns the IPC key the segment was opened with.
func (s *Segment) Key() int { return s.key }

// ID returns the kernel identifier of the segment.
func (s *Segment) ID() int { return s.id }

// Created reports whether this handle created the segment.
func (s *Segment) Created() bool { return s.created }

// Bytes returns the attached mapping, or nil once detached. The slice must not
// be retained past Detach.
func (s *Segment) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Attachments returns the number of processes currently attached.
func (s *Segment) Attachments() (int, error) {
	n, err := shmAttachCount(s.id)
	if err != nil {
		if removedErrno(err) {
			return 0, fmt.Errorf("shmctl stat key %d: %w", s.key, ErrRemoved)
		}
		return 0, fmt.Errorf("shmctl stat key %d: %w", s.key, err)
	}
	return n, nil
}

// Detach unmaps the segment from this process. It is safe to call more than once.
func (s *Segment) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	data := s.data
	s.data = nil
	if err := shmDetach(data[:cap(data)]); err != nil {
		return fmt.Errorf("shmdt key %d: %w", s.key, err)
	}
	return nil
}

// RemoveSegment marks the segment identified by key for destruction. A segment
// that does not exist is treated as already removed.
func RemoveSegment(key int) error {
	err := shmRemove(key)
	if err == nil || isAbsent(err) || removedErrno(err) {
		return nil
	}
	return fmt.Errorf("shmctl rmid key %d: %w", key, err)
}
