package mirror

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
)

const lockFilename = ".lock"

// Run acquires an exclusive lock on h.DestDir (spec.md §9 "nested
// perform calls... are forbidden") and drives a single Perform,
// releasing the lock on every exit path. Adapted from the teacher's
// control.go Run(), generalized from a fixed set of named mirrors to
// a single handle's perform.
func Run(ctx context.Context, h *Handle) (*Result, error) {
	if h.DestDir == "" {
		return Perform(ctx, h)
	}

	if err := os.MkdirAll(h.DestDir, 0750); err != nil {
		return nil, Wrap(KindIO, err, "creating destdir")
	}

	lockPath := filepath.Join(h.DestDir, lockFilename)
	lock, err := NewFlock(lockPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("failed to release lock", "error", err)
		}
	}()

	return Perform(ctx, h)
}
