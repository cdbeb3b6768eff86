// Package sysv wraps the System V shared memory and semaphore primitives used
// by the telemetry bus.
//
// Segments are created-or-attached by integer key and expose the attached
// mapping as a byte slice. Semaphores are single-member sets; lock waits are
// sliced with semtimedop so callers can abandon them through a context.
// Removing an object that is already gone is reported as success, which keeps
// teardown idempotent when two processes race to clean up.
//
// Only linux/amd64 and linux/arm64 are implemented; other platforms return
// ErrUnsupported from every constructor.
package sysv
