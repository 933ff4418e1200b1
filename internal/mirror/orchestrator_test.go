package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestAcquireMirrorsExplicitURLs(t *testing.T) {
	t.Parallel()

	h := NewHandle()
	h.URLs = []string{"http://a.example/repo", "", "http://a.example/repo"}

	ml, err := AcquireMirrors(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if ml.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (empty and duplicate dropped)", ml.Len())
	}
}

func TestAcquireMirrorsNoneConfigured(t *testing.T) {
	t.Parallel()

	h := NewHandle()
	h.Local = false
	if _, err := AcquireMirrors(context.Background(), h); KindOf(err) != KindBadOption {
		t.Errorf("expected KindBadOption, got %v", err)
	}
}

func TestAcquireMirrorsFromMirrorlistURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "http://mirror1.example/repo\nhttp://mirror2.example/repo\n")
	}))
	defer srv.Close()

	h := NewHandle()
	h.MirrorlistURL = srv.URL

	ml, err := AcquireMirrors(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if ml.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ml.Len())
	}
}

func TestPerformFetchMirrorsShortCircuit(t *testing.T) {
	t.Parallel()

	h := NewHandle()
	h.URLs = []string{"http://a.example/repo"}
	h.FetchMirrors = true

	res, err := Perform(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.MirrorsUsed) != 1 || len(res.Targets) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestPerformRemoteEndToEnd(t *testing.T) {
	t.Parallel()

	const pkgBody = "package contents"
	sum := sha256.Sum256([]byte(pkgBody))
	pkgHex := hex.EncodeToString(sum[:])

	manifest := fmt.Sprintf(`<?xml version="1.0"?>
<repomd>
  <data type="pkg">
    <checksum type="sha256">%s</checksum>
    <location href="pool/pkg.bin"/>
    <size>%d</size>
  </data>
</repomd>`, pkgHex, len(pkgBody))

	mux := http.NewServeMux()
	mux.HandleFunc("/repodata/repomd.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, manifest)
	})
	mux.HandleFunc("/pool/pkg.bin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pkgBody)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	h := NewHandle()
	h.URLs = []string{srv.URL}
	h.DestDir = dir

	res, err := Perform(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Succeeded() {
		t.Fatalf("expected success, got: %+v", res.FailedTargets())
	}
	if len(res.Targets) != 2 {
		t.Fatalf("expected manifest + 1 file target, got %d", len(res.Targets))
	}

	content, err := os.ReadFile(filepath.Join(dir, "pool", "pkg.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != pkgBody {
		t.Errorf("content = %q, want %q", content, pkgBody)
	}
}

// Sends a real SIGTERM to this process, so it deliberately does not run
// in parallel with the rest of this file's tests.
func TestInstallInterruptHandlerSIGTERM(t *testing.T) {
	ctx, interrupted, cancel := installInterruptHandler(context.Background())
	defer cancel()

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not canceled after SIGTERM")
	}
	if atomic.LoadInt32(interrupted) == 0 {
		t.Error("expected the interrupted flag to be set")
	}
}

// Also sends a real SIGTERM; not run in parallel for the same reason.
func TestPerformInterruptibleSurfacesKindInterrupted(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	h := NewHandle()
	h.URLs = []string{srv.URL}
	h.DestDir = t.TempDir()
	h.Interruptible = true

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
	}()

	_, err := Perform(context.Background(), h)
	if err == nil {
		t.Fatal("expected an error")
	}
	if KindOf(err) != KindInterrupted {
		t.Errorf("expected KindInterrupted, got %v (%v)", KindOf(err), err)
	}
}

func TestPerformLocalMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "present.txt"), []byte("data"), 0600); err != nil {
		t.Fatal(err)
	}

	h := NewHandle()
	h.Local = true
	h.DestDir = dir
	h.URLs = []string{"file://" + dir}
	h.DownloadList = []string{"present.txt", "missing.txt"}

	res, err := Perform(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded() {
		t.Error("expected failure: missing.txt is not present")
	}
	if len(res.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(res.Targets))
	}
	if res.Targets[0].State != TargetFinished {
		t.Errorf("present.txt should be finished: %+v", res.Targets[0])
	}
	if res.Targets[1].State != TargetFailed {
		t.Errorf("missing.txt should be failed: %+v", res.Targets[1])
	}
}
