//go:build linux && (amd64 || arm64)

package sysv

import (
	"errors"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// semctl commands from <linux/sem.h>; x/sys/unix does not export them.
const (
	semGetVal = 12
	semSetVal = 16
)

// sembuf mirrors struct sembuf from <sys/sem.h>.
type sembuf struct {
	num uint16
	op  int16
	flg int16
}

func shmCreateOrGet(key, size, perm int) (int, bool, error) {
	id, err := unix.SysvShmGet(key, size, unix.IPC_CREAT|unix.IPC_EXCL|perm)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, unix.EEXIST) {
		return 0, false, err
	}
	id, err = unix.SysvShmGet(key, size, perm)
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

func shmAttach(id int) ([]byte, error) {
	return unix.SysvShmAttach(id, 0, 0)
}

func shmDetach(data []byte) error {
	return unix.SysvShmDetach(data)
}

func shmAttachCount(id int) (int, error) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
		return 0, err
	}
	return int(desc.Nattch), nil
}

func shmRemove(key int) error {
	id, err := unix.SysvShmGet(key, 0, 0)
	if err != nil {
		return err
	}
	_, err = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
	return err
}

func semget(key, nsems, flag int) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(flag))
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}

func semctl(id, num, cmd int, arg uintptr) (int, error) {
	r, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), uintptr(num), uintptr(cmd), arg, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}

func semCreateOrGet(key, perm int) (int, bool, error) {
	id, err := semget(key, 1, unix.IPC_CREAT|unix.IPC_EXCL|perm)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, unix.EEXIST) {
		return 0, false, err
	}
	id, err = semget(key, 1, perm)
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

func semGetValue(id int) (int, error) {
	return semctl(id, 0, semGetVal, 0)
}

func semSetValue(id, value int) error {
	_, err := semctl(id, 0, semSetVal, uintptr(value))
	return err
}

func semOp(id int, delta, flags int16, timeout time.Duration) error {
	ops := [1]sembuf{{num: 0, op: delta, flg: flags}}
	var tsp *unix.Timespec
	if timeout > 0 {
		ts := unix.NsecToTimespec(int64(timeout))
		tsp = &ts
	}
	_, _, errno := unix.Syscall6(unix.SYS_SEMTIMEDOP,
		uintptr(id), uintptr(unsafe.Pointer(&ops[0])), 1, uintptr(unsafe.Pointer(tsp)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func semRemove(key int) error {
	id, err := semget(key, 0, 0)
	if err != nil {
		return err
	}
	_, err = semctl(id, 0, unix.IPC_RMID, 0)
	return err
}
