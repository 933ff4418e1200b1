package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRunAcquiresAndReleasesLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := NewHandle()
	h.DestDir = dir
	h.Local = true
	h.DownloadList = []string{"does-not-matter"}
	h.URLs = []string{"file://" + dir}

	if _, err := Run(context.Background(), h); err != nil {
		// performLocal reports per-target errors inside Result, not via
		// Run's own return, so Run itself should not fail here.
		t.Fatalf("unexpected error: %v", err)
	}

	// The lock must have been released: a second Run should succeed too.
	if _, err := Run(context.Background(), h); err != nil {
		t.Fatalf("second Run should also acquire the lock: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, lockFilename)); err != nil {
		t.Errorf("expected the lock file to exist: %v", err)
	}
}
