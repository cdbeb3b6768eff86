package sysv

import (
	"errors"
	"syscall"
)

var (
	// ErrRemoved reports an operation on a segment or semaphore that was removed
	// from the namespace, usually by the other process during shutdown.
	ErrRemoved = errors.New("sysv: object removed")
	// ErrUnsupported is returned on platforms without the System V IPC syscalls.
	ErrUnsupported = errors.New("sysv: not supported on this platform")
	// ErrDetached is returned when a detached segment is used.
	ErrDetached = errors.New("sysv: segment detached")
)

// removedErrno maps the errno values the kernel uses for vanished objects.
func removedErrno(err error) bool {
	return errors.Is(err, syscall.EIDRM) || errors.Is(err, syscall.EINVAL)
}

// IsPermissionDenied reports whether err came from the kernel refusing access,
// typical inside sandboxes where IPC namespaces are locked down.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.ENOSYS)
}
