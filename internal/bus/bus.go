package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"dronetrack/internal/logging"
)

const (
	// DefaultFrameCapacity is the historical 1 MiB frame buffer.
	DefaultFrameCapacity = 1 << 20

	lockRetryDelay = 10 * time.Millisecond
	closeTimeout   = 5 * time.Second
)

// Options configures Open.
type Options struct {
	Keys          Keys
	FrameCapacity int
	// LockPath is the advisory lock file serializing setup and teardown
	// between processes. Both processes must use the same path.
	LockPath string
	Logger   *slog.Logger
}

// Bus is one process's handle on the shared telemetry bus.
type Bus struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	control Segment
	info    Segment
	data    Segment
	errSeg  Segment

	frameLock   Semaphore
	errorLock   Semaphore
	frameSignal Semaphore

	initialized bool

	frames *FrameChannel
	errors *ErrorChannel

	closeOnce sync.Once
	removed   bool
	closeErr  error
}

// Open attaches to the bus, creating and initializing it when this is the
// first process. Callers must Close the bus exactly once; extra calls are
// no-ops.
func Open(ctx context.Context, backend Backend, opts Options) (*Bus, error) {
	if opts.FrameCapacity == 0 {
		opts.FrameCapacity = DefaultFrameCapacity
	}
	if opts.FrameCapacity < 0 {
		return nil, fmt.Errorf("bus: frame capacity must be positive, got %d", opts.FrameCapacity)
	}
	if opts.LockPath == "" {
		return nil, errors.New("bus: lock path is required")
	}
	if opts.Keys == (Keys{}) {
		opts.Keys = DefaultKeys()
	}

	lock, err := acquireFileLock(ctx, opts.LockPath)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	b := &Bus{
		backend: backend,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "bus"),
	}
	if err := b.attach(); err != nil {
		b.detachAll()
		return nil, err
	}
	if err := b.ensureInitialized(); err != nil {
		b.detachAll()
		return nil, err
	}
	attached := b.register()

	b.frames = &FrameChannel{
		info:     b.info,
		data:     b.data,
		lock:     b.frameLock,
		signal:   b.frameSignal,
		capacity: opts.FrameCapacity,
	}
	b.errors = &ErrorChannel{seg: b.errSeg, lock: b.errorLock}

	b.logger.Info("bus attached",
		logging.Bool("initialized", b.initialized),
		logging.Int("attached", int(attached)),
		logging.Int("frame_capacity", opts.FrameCapacity),
	)
	return b, nil
}

// Frames returns the producer-to-tracker frame channel.
func (b *Bus) Frames() *FrameChannel { return b.frames }

// Errors returns the tracker-to-controller error channel.
func (b *Bus) Errors() *ErrorChannel { return b.errors }

// Initialized reports whether this handle created the bus contents.
func (b *Bus) Initialized() bool { return b.initialized }

// Close detaches from the bus. The last process to close removes every
// object from the namespace and reports removed. Subsequent calls return
// the first call's result.
func (b *Bus) Close() (removed bool, err error) {
	b.closeOnce.Do(func() {
		b.removed, b.closeErr = b.close()
	})
	return b.removed, b.closeErr
}

func (b *Bus) close() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	lock, lockErr := acquireFileLock(ctx, b.opts.LockPath)
	if lockErr != nil {
		// The attach count and the objects are only touched under the lock.
		return false, errors.Join(b.detachAll(), fmt.Errorf("bus: close without teardown: %w", lockErr))
	}
	defer lock.Unlock()

	last := false
	if ctl := b.control.Bytes(); ctl != nil {
		remaining := b.liveAttached(decodeControlHeader(ctl)) - 1
		if remaining < 0 {
			remaining = 0
		}
		setAttached(ctl, remaining)
		last = remaining == 0
	}
	detachErr := b.detachAll()

	if !last {
		b.logger.Info("bus detached")
		return false, detachErr
	}
	removeErr := removeObjects(b.backend, b.opts.Keys)
	if removeErr == nil {
		b.logger.Info("bus removed by last closer")
	}
	return true, errors.Join(detachErr, removeErr)
}

// Teardown force-removes every bus object regardless of attachments. It is
// idempotent and is used to recover after a crash.
func Teardown(ctx context.Context, backend Backend, keys Keys, lockPath string) error {
	if keys == (Keys{}) {
		keys = DefaultKeys()
	}
	lock, err := acquireFileLock(ctx, lockPath)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return removeObjects(backend, keys)
}

func (b *Bus) attach() error {
	var err error
	k := b.opts.Keys
	if b.control, err = b.backend.AttachSegment(k.Control, controlHeaderSize); err != nil {
		return fmt.Errorf("attach control segment: %w", err)
	}
	if b.info, err = b.backend.AttachSegment(k.FrameInfo, frameRecordSize); err != nil {
		return fmt.Errorf("attach frame info segment: %w", err)
	}
	if b.data, err = b.backend.AttachSegment(k.FrameData, b.opts.FrameCapacity); err != nil {
		return fmt.Errorf("attach frame data segment: %w", err)
	}
	if b.errSeg, err = b.backend.AttachSegment(k.Error, errorVectorSize); err != nil {
		return fmt.Errorf("attach error segment: %w", err)
	}
	if b.frameLock, err = b.backend.OpenSemaphore(k.FrameLock); err != nil {
		return fmt.Errorf("open frame lock: %w", err)
	}
	if b.errorLock, err = b.backend.OpenSemaphore(k.ErrorLock); err != nil {
		return fmt.Errorf("open error lock: %w", err)
	}
	if b.frameSignal, err = b.backend.OpenSemaphore(k.FrameSignal); err != nil {
		return fmt.Errorf("open frame signal: %w", err)
	}
	return nil
}

// ensureInitialized runs under the file lock. A control header that is not
// ready (fresh segment, or a creator that died mid-initialization) is
// initialized from scratch.
func (b *Bus) ensureInitialized() error {
	ctl := b.control.Bytes()
	hdr := decodeControlHeader(ctl)
	if hdr.Magic != 0 && hdr.Magic != controlMagic {
		return fmt.Errorf("%w: magic %#08x at key %d", ErrForeignSegment, hdr.Magic, b.opts.Keys.Control)
	}
	if hdr.Ready && hdr.Magic == controlMagic {
		if hdr.Version != layoutVersion {
			return fmt.Errorf("%w: layout version %d, want %d", ErrForeignSegment, hdr.Version, layoutVersion)
		}
		if int(hdr.FrameCapacity) != b.opts.FrameCapacity {
			return fmt.Errorf("%w: bus has %d bytes, configured %d", ErrCapacityMismatch, hdr.FrameCapacity, b.opts.FrameCapacity)
		}
		b.reconcile(hdr)
		return nil
	}

	encodeControlHeader(ctl, controlHeader{
		Magic:         controlMagic,
		Version:       layoutVersion,
		FrameCapacity: uint32(b.opts.FrameCapacity),
		CreatorPID:    uint32(os.Getpid()),
	})
	encodeFrameRecord(b.info.Bytes(), FrameRecord{FrameID: NoFrame})
	clear(b.data.Bytes())
	encodeErrorVector(b.errSeg.Bytes(), ErrorVector{})
	if err := b.frameLock.SetValue(1); err != nil {
		return lockFailure("frame", "init", err)
	}
	if err := b.errorLock.SetValue(1); err != nil {
		return lockFailure("error", "init", err)
	}
	if err := b.frameSignal.SetValue(0); err != nil {
		return lockFailure("frame-signal", "init", err)
	}
	setReady(ctl, true)
	b.initialized = true
	return nil
}

// reconcile clamps an attach count left high by a process that died without
// closing. The kernel count includes this handle's own attach.
func (b *Bus) reconcile(hdr controlHeader) {
	n, err := b.control.Attachments()
	if err != nil {
		return
	}
	others := int32(n - 1)
	if hdr.Attached > others {
		logging.WarnWithContext(b.logger, "stale bus attach count", "bus_reconcile",
			logging.Int("recorded", int(hdr.Attached)),
			logging.Int("live", int(others)),
			logging.String(logging.FieldImpact, "a previous process exited without closing the bus"),
			logging.String(logging.FieldErrorHint, "none; the count was corrected"),
		)
		setAttached(b.control.Bytes(), others)
	}
}

// liveAttached is the recorded attach count, including this handle, capped
// at the kernel count so a peer that died without closing does not keep the
// objects alive.
func (b *Bus) liveAttached(hdr controlHeader) int32 {
	n, err := b.control.Attachments()
	if err != nil || hdr.Attached <= int32(n) {
		return hdr.Attached
	}
	b.logger.Warn("peer exited without closing the bus",
		logging.Int("recorded", int(hdr.Attached)),
		logging.Int("live", n),
	)
	return int32(n)
}

func (b *Bus) register() int32 {
	ctl := b.control.Bytes()
	n := decodeControlHeader(ctl).Attached + 1
	setAttached(ctl, n)
	return n
}

func (b *Bus) detachAll() error {
	var errs []error
	for _, seg := range []Segment{b.control, b.info, b.data, b.errSeg} {
		if seg == nil {
			continue
		}
		if err := seg.Detach(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func removeObjects(backend Backend, keys Keys) error {
	var errs []error
	for _, key := range keys.segments() {
		if err := backend.RemoveSegment(key); err != nil {
			errs = append(errs, err)
		}
	}
	for _, key := range keys.semaphores() {
		if err := backend.RemoveSemaphore(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func acquireFileLock(ctx context.Context, path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("bus: lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("bus: acquire %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("bus: acquire %s: %w", path, ctx.Err())
	}
	return lock, nil
}
