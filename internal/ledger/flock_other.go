//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package ledger

import "sync"

// Без flock(2) исключение действует только внутри процесса: один процесс
// на файл леджера.
var (
	locksMu sync.Mutex
	locks   = map[string]*sync.RWMutex{}
)

type fileLock struct {
	mu        *sync.RWMutex
	exclusive bool
}

func acquire(path string, exclusive bool) (*fileLock, error) {
	locksMu.Lock()
	mu, ok := locks[path]
	if !ok {
		mu = &sync.RWMutex{}
		locks[path] = mu
	}
	locksMu.Unlock()

	if exclusive {
		mu.Lock()
	} else {
		mu.RLock()
	}
	return &fileLock{mu: mu, exclusive: exclusive}, nil
}

func (l *fileLock) release() {
	if l.exclusive {
		l.mu.Unlock()
	} else {
		l.mu.RUnlock()
	}
}
