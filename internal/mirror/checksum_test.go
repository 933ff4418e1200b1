package mirror

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/mirrorctl/repoget/internal/repo"
)

func TestVerifyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "content")
	data := []byte("hello world")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)
	hexSum := hex.EncodeToString(sum[:])

	if err := VerifyFile(path, &repo.Checksum{Algo: repo.SHA256, Hex: hexSum}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := VerifyFile(path, &repo.Checksum{Algo: repo.SHA256, Hex: "0000"}); KindOf(err) != KindChecksumMismatch {
		t.Errorf("expected KindChecksumMismatch, got %v", err)
	}

	if err := VerifyFile(path, &repo.Checksum{Algo: "crc32", Hex: hexSum}); KindOf(err) != KindUnknownChecksum {
		t.Errorf("expected KindUnknownChecksum, got %v", err)
	}

	if err := VerifyFile(path, nil); err != nil {
		t.Errorf("nil checksum should be a no-op, got %v", err)
	}
}

func TestVerifyFileMissing(t *testing.T) {
	t.Parallel()

	err := VerifyFile(filepath.Join(t.TempDir(), "missing"), &repo.Checksum{Algo: repo.SHA256, Hex: "ab"})
	if KindOf(err) != KindIO {
		t.Errorf("expected KindIO, got %v", err)
	}
}
