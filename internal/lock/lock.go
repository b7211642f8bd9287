// Package lock provides keyed in-process mutexes and a flock-based session
// lock that guarantees one runner per session directory.
package lock

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// MutexMap hands out one mutex per key. Components lock the path of the file
// they are about to read-modify-write (sink data, control state).
type MutexMap struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func NewMutexMap() *MutexMap {
	return &MutexMap{
		mutexes: make(map[string]*sync.Mutex),
	}
}

func (m *MutexMap) Lock(key string) {
	m.getMutex(key).Lock()
}

func (m *MutexMap) Unlock(key string) {
	m.getMutex(key).Unlock()
}

func (m *MutexMap) getMutex(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mu, ok := m.mutexes[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.mutexes[key] = mu
	return mu
}

// SessionLock is an exclusive advisory lock on the session directory.
type SessionLock struct {
	path string
	file *os.File
}

func NewSessionLock(path string) *SessionLock {
	return &SessionLock{path: path}
}

// TryLock acquires the lock without blocking and records the holder PID in
// the lock file.
func (sl *SessionLock) TryLock() error {
	f, err := os.OpenFile(sl.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("acquire lock (another runner may own this session): %w", err)
	}

	if err := f.Truncate(0); err != nil {
		sl.release(f)
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		sl.release(f)
		return fmt.Errorf("write PID to lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		sl.release(f)
		return fmt.Errorf("sync lock file: %w", err)
	}

	sl.file = f
	return nil
}

func (sl *SessionLock) release(f *os.File) {
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_ = f.Close()
}

func (sl *SessionLock) Unlock() error {
	if sl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(sl.file.Fd()), syscall.LOCK_UN); err != nil {
		sl.file.Close()
		return fmt.Errorf("release lock: %w", err)
	}

	if err := sl.file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}

	os.Remove(sl.path)
	sl.file = nil
	return nil
}
