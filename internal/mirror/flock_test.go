package mirror

import (
	"path/filepath"
	"testing"
)

func TestFlockExclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".lock")

	l1, err := NewFlock(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewFlock(path); KindOf(err) != KindIO {
		t.Errorf("expected KindIO while the lock is held, got %v", err)
	}

	if err := l1.Unlock(); err != nil {
		t.Fatal(err)
	}

	l2, err := NewFlock(path)
	if err != nil {
		t.Fatalf("acquiring after unlock should succeed: %v", err)
	}
	if err := l2.Unlock(); err != nil {
		t.Fatal(err)
	}
}

func TestFlockUnlockNil(t *testing.T) {
	t.Parallel()

	var l *Flock
	if err := l.Unlock(); err != nil {
		t.Errorf("Unlock on a nil *Flock should be a no-op, got %v", err)
	}
}
