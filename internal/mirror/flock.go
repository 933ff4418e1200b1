package mirror

import (
	"os"

	"golang.org/x/sys/unix"
)

// Flock is an advisory, exclusive, non-blocking file lock used to
// serialize repoget invocations against the same destination
// directory, analogous to librepo's use of a lock file per target dir.
type Flock struct {
	f *os.File
}

// NewFlock opens (creating if necessary) path and acquires an
// exclusive, non-blocking flock(2) lock on it. It returns a
// KindIO-wrapped error if another process already holds the lock.
func NewFlock(path string) (*Flock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, Wrap(KindIO, err, "opening lock file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, New(KindIO, "destination is locked by another process")
		}
		return nil, Wrap(KindIO, err, "flock")
	}
	return &Flock{f: f}, nil
}

// Unlock releases the lock and closes the underlying file descriptor.
func (l *Flock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	l.f = nil
	if err != nil {
		return Wrap(KindIO, err, "unlocking")
	}
	if cerr != nil {
		return Wrap(KindIO, cerr, "closing lock file")
	}
	return nil
}
