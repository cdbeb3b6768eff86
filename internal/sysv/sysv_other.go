//go:build !(linux && (amd64 || arm64))

package sysv

import "time"

func shmCreateOrGet(int, int, int) (int, bool, error) { return 0, false, ErrUnsupported }

func shmAttach(int) ([]byte, error) { return nil, ErrUnsupported }

func shmDetach([]byte) error { return ErrUnsupported }

func shmAttachCount(int) (int, error) { return 0, ErrUnsupported }

func shmRemove(int) error { return ErrUnsupported }

func semCreateOrGet(int, int) (int, bool, error) { return 0, false, ErrUnsupported }

func semGetValue(int) (int, error) { return 0, ErrUnsupported }

func semSetValue(int, int) error { return ErrUnsupported }

func semOp(int, int16, int16, time.Duration) error { return ErrUnsupported }

func semRemove(int) error { return ErrUnsupported }
