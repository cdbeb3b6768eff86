package sysv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// semUndo is SEM_UNDO from <sys/sem.h>.
const semUndo int16 = 0x1000

// DefaultPollInterval bounds a single kernel wait so cancellation is noticed.
const DefaultPollInterval = 50 * time.Millisecond

// Semaphore is a single-member System V semaphore set.
type Semaphore struct {
	key     int
	id      int
	created bool
	poll    time.Duration
}

// OpenSemaphore creates the semaphore identified by key or opens the existing
// one. A freshly created semaphore starts at zero; the caller initializes it.
func OpenSemaphore(key int, perm os.FileMode, poll time.Duration) (*Semaphore, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	id, created, err := semCreateOrGet(key, int(perm.Perm()))
	if err != nil {
		return nil, fmt.Errorf("semget key %d: %w", key, err)
	}
	return &Semaphore{key: key, id: id, created: created, poll: poll}, nil
}

// Key returns the IPC key the semaphore was opened with.
func (s *Semaphore) Key() int { return s.key }

// Created reports whether this handle created the semaphore.
func (s *Semaphore) Created() bool { return s.created }

// Acquire performs P with SEM_UNDO, so the kernel returns the token if the
// process dies while holding it.
func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.wait(ctx, semUndo)
}

// Release performs V with SEM_UNDO, pairing with Acquire.
func (s *Semaphore) Release() error {
	return s.post(semUndo)
}

// Wait performs P without undo; used for doorbells where the token is produced
// by another process.
func (s *Semaphore) Wait(ctx context.Context) error {
	return s.wait(ctx, 0)
}

// Post performs V without undo.
func (s *Semaphore) Post() error {
	return s.post(0)
}

// Value returns the current semaphore value.
func (s *Semaphore) Value() (int, error) {
	v, err := semGetValue(s.id)
	if err != nil {
		return 0, s.wrap("getval", err)
	}
	return v, nil
}

// SetValue overwrites the semaphore value.
func (s *Semaphore) SetValue(v int) error {
	if err := semSetValue(s.id, v); err != nil {
		return s.wrap("setval", err)
	}
	return nil
}

func (s *Semaphore) wait(ctx context.Context, flags int16) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := semOp(s.id, -1, flags, s.poll)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
			continue
		default:
			return s.wrap("semop", err)
		}
	}
}

func (s *Semaphore) post(flags int16) error {
	for {
		err := semOp(s.id, 1, flags, 0)
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if err != nil {
			return s.wrap("semop", err)
		}
		return nil
	}
}

func (s *Semaphore) wrap(op string, err error) error {
	if removedErrno(err) {
		return fmt.Errorf("%s key %d: %w", op, s.key, ErrRemoved)
	}
	return fmt.Errorf("%s key %d: %w", op, s.key, err)
}

// RemoveSemaphore deletes the semaphore identified by key. A semaphore that does
// not exist is treated as already removed.
func RemoveSemaphore(key int) error {
	err := semRemove(key)
	if err == nil || isAbsent(err) || removedErrno(err) {
		return nil
	}
	return fmt.Errorf("semctl rmid key %d: %w", key, err)
}

func isAbsent(err error) bool {
	return errors.Is(err, syscall.ENOENT)
}
