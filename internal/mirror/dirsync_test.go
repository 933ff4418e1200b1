package mirror

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirSync(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := DirSync(dir); err != nil {
		t.Fatal(err)
	}
}

func TestDirSyncMissingDirectory(t *testing.T) {
	t.Parallel()

	if err := DirSync(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("expected an error syncing a missing directory")
	}
}

func TestDirSyncRejectsTraversal(t *testing.T) {
	t.Parallel()

	if err := DirSync("a/../../b"); err == nil {
		t.Error("expected an error for a path containing directory traversal")
	}
}

func TestDirSyncTree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "f.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := DirSyncTree(root); err != nil {
		t.Fatal(err)
	}
}
