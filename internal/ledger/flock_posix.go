//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package ledger

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock - advisory-блокировка flock(2) на отдельном файле.
type fileLock struct {
	f *os.File
}

// acquire блокируется без таймаута, пока блокировка не будет получена.
func acquire(path string, exclusive bool) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}

	for {
		err = unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flock: %w", err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
}
