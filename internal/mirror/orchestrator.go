package mirror

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mirrorctl/repoget/internal/repo"
)

// defaultRepoType names the manifest's fixed relative path per
// spec.md §4.I step 5. repoget only ships the one built-in repo type;
// additional types would add entries here.
const defaultRepoType = "generic"

func manifestPath(repoType string) string {
	switch repoType {
	case "", defaultRepoType:
		return "repodata/repomd.xml"
	default:
		return "repodata/repomd.xml"
	}
}

// fetchBytes performs a one-off GET, used for the bootstrap fetches
// (mirror-list, metalink) that happen before a mirror list exists to
// schedule against.
func fetchBytes(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, Wrap(KindBadOption, err, "building request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, Wrap(KindNetwork, err, "fetching "+rawURL)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, New(KindHTTPStatus, resp.Status+" for "+rawURL)
	}
	return io.ReadAll(resp.Body)
}

// AcquireMirrors builds the internal mirror list per spec.md §4.I
// step 1: explicit URLs, then a fetched+parsed mirror-list, then a
// fetched+parsed metalink. URL variable substitution is applied to the
// explicit URLs and to the mirror-list and metalink locations before
// they are fetched; URLs read from a fetched mirror-list or metalink
// are appended as listed, without substitution.
func AcquireMirrors(ctx context.Context, h *Handle) (*MirrorList, error) {
	ml := NewMirrorList()

	for _, u := range h.URLs {
		ml.AppendURL(ExpandVars(u, h.VarSub))
	}

	if h.MirrorlistURL != "" {
		data, err := fetchBytes(ctx, ExpandVars(h.MirrorlistURL, h.VarSub), h.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		urls, err := repo.ParseMirrorList(bytes.NewReader(data))
		if err != nil {
			return nil, Wrap(KindParseError, err, "parsing mirror-list")
		}
		ml.AppendMirrorList(urls)
	}

	if h.MetalinkURL != "" {
		if err := acquireFromMetalink(ctx, h, ml, h.MetalinkURL); err != nil {
			return nil, err
		}
	}

	if h.MirrorOrMetalinkURL != "" {
		u := ExpandVars(h.MirrorOrMetalinkURL, h.VarSub)
		data, err := fetchBytes(ctx, u, h.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		if repo.Sniff(data) {
			mlDoc, err := repo.ParseMetalink(bytes.NewReader(data), "")
			if err != nil {
				return nil, Wrap(KindParseError, err, "parsing metalink")
			}
			ml.AppendMetalink(mlDoc, "")
		} else {
			urls, err := repo.ParseMirrorList(bytes.NewReader(data))
			if err != nil {
				return nil, Wrap(KindParseError, err, "parsing mirror-list")
			}
			ml.AppendMirrorList(urls)
		}
	}

	if ml.Len() == 0 && !h.Local {
		return nil, New(KindBadOption, "no usable mirrors found")
	}
	return ml, nil
}

func acquireFromMetalink(ctx context.Context, h *Handle, ml *MirrorList, metalinkURL string) error {
	data, err := fetchBytes(ctx, ExpandVars(metalinkURL, h.VarSub), h.ConnectTimeout)
	if err != nil {
		return err
	}
	mlDoc, err := repo.ParseMetalink(bytes.NewReader(data), manifestPath(h.RepoType))
	if err != nil {
		return Wrap(KindParseError, err, "parsing metalink")
	}
	ml.AppendMetalink(mlDoc, manifestPath(h.RepoType))
	return nil
}

// installInterruptHandler derives a cancelable context from ctx and
// arranges for SIGINT/SIGTERM to cancel it, per spec.md §5
// Cancellation and §9 "Global state" (a terminate signal scoped to the
// one in-flight perform). The returned flag is set iff cancellation
// was caused by a delivered signal rather than by the caller's own
// ctx, so the caller can distinguish an interrupted perform from an
// ordinary one.
func installInterruptHandler(ctx context.Context) (context.Context, *int32, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	var interrupted int32

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			atomic.StoreInt32(&interrupted, 1)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, &interrupted, cancel
}

// Perform drives the end-to-end repository download described in
// spec.md §4.I, steps 1–10.
func Perform(ctx context.Context, h *Handle) (res *Result, err error) {
	if err := h.Check(); err != nil {
		return nil, err
	}

	if h.Interruptible {
		var interrupted *int32
		var cancel context.CancelFunc
		ctx, interrupted, cancel = installInterruptHandler(ctx)
		defer cancel()
		defer func() {
			if err != nil && atomic.LoadInt32(interrupted) != 0 {
				err = Wrap(KindInterrupted, err, "perform terminated by signal")
			}
		}()
	}

	ml, err := AcquireMirrors(ctx, h)
	if err != nil {
		return nil, err
	}

	if h.FastestMirror {
		prober := NewFastestMirrorProber(h.FastestMirrorCache, h.FastestMirrorMaxAge)
		prober.Reorder(ml)
	}

	if h.FetchMirrors {
		return &Result{MirrorsUsed: urlsOf(ml)}, nil
	}

	if h.Local {
		return performLocal(h, ml)
	}

	return performRemote(ctx, h, ml)
}

func urlsOf(ml *MirrorList) []string {
	snap := ml.Snapshot()
	out := make([]string, len(snap))
	for i, m := range snap {
		out[i] = m.URL
	}
	return out
}

// performLocal resolves files directly under the first base URL
// without copying, per librepo's local-mode semantics (SPEC_FULL.md §4).
func performLocal(h *Handle, ml *MirrorList) (*Result, error) {
	base := ml.NthURL(0)
	base = strings.TrimPrefix(base, "file://")

	res := &Result{LocalPath: base}
	entries := h.DownloadList
	if len(entries) == 0 {
		return res, New(KindBadOption, "local mode requires download-list")
	}

	for _, name := range entries {
		p := filepath.Join(base, name)
		st, err := os.Stat(p)
		tr := TargetResult{RelativePath: name, Dest: p}
		if err != nil {
			tr.State = TargetFailed
			tr.Err = Wrap(KindIO, err, "locating local file")
		} else {
			tr.State = TargetFinished
			tr.Size = st.Size()
		}
		res.Targets = append(res.Targets, tr)
	}
	return res, nil
}

func performRemote(ctx context.Context, h *Handle, ml *MirrorList) (*Result, error) {
	storage, err := NewStorage(h.DestDir)
	if err != nil {
		return nil, Wrap(KindIO, err, "opening destination storage")
	}

	var current *Storage
	if h.Update {
		current = storage
		if err := current.Load(); err != nil {
			return nil, Wrap(KindIO, err, "loading previous storage state")
		}
	}

	transfer, err := NewTransfer(h)
	if err != nil {
		return nil, err
	}
	dl := NewDownloader(h, ml, transfer, storage, current)

	// Manifest download (step 5): single-target path of the downloader.
	mpath := manifestPath(h.RepoType)
	manifestDest := filepath.Join(h.DestDir, mpath)
	if err := os.MkdirAll(filepath.Dir(manifestDest), 0750); err != nil {
		return nil, Wrap(KindIO, err, "creating manifest directory")
	}

	manifestResults, err := dl.Download(ctx, []Target{{RelativePath: mpath, Dest: manifestDest}})
	if err != nil {
		return nil, err
	}
	if manifestResults[0].State != TargetFinished {
		return nil, Wrap(KindUnfinished, manifestResults[0].Err, "manifest download failed")
	}

	manifestBytes, err := os.ReadFile(manifestDest) // #nosec G304 - path built from operator-configured DestDir
	if err != nil {
		return nil, Wrap(KindIO, err, "reading downloaded manifest")
	}

	// Manifest verification (step 6).
	if h.GPGCheck && h.PGPKeyringPath != "" {
		sigPath := manifestDest + ".asc"
		sigBytes, err := os.ReadFile(sigPath) // #nosec G304 - path derived from DestDir
		if err != nil {
			return nil, Wrap(KindGPGNotVerified, err, "reading manifest signature")
		}
		if err := VerifyManifestSignature(manifestBytes, sigBytes, h.PGPKeyringPath); err != nil {
			return nil, err
		}
	}

	// Manifest parse + filter (step 7).
	manifest, err := repo.ParseManifest(bytes.NewReader(manifestBytes))
	if err != nil {
		return nil, Wrap(KindParseError, err, "parsing manifest")
	}
	entries := manifest.Filter(h.DownloadList, h.DownloadBlacklist)

	// File downloads (step 8).
	targets := make([]Target, 0, len(entries))
	for _, e := range entries {
		dest := filepath.Join(h.DestDir, e.RelativePath)
		if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
			return nil, Wrap(KindIO, err, "creating target directory")
		}
		targets = append(targets, Target{
			RelativePath: e.RelativePath,
			ExpectedSize: e.Size,
			Checksum:     e.Checksum,
			Dest:         dest,
			Resume:       h.Update,
		})
	}

	fileResults, err := dl.Download(ctx, targets)
	if err != nil {
		if h.IgnoreMissing && onlyMissing(fileResults) {
			slog.Warn("ignoring missing files", "count", len(missingOf(fileResults)))
		} else {
			return nil, err
		}
	}

	// Many repository formats ship compressed data files (Packages.gz,
	// primary.xml.xz); decompress each finished one alongside the
	// compressed original so downstream tooling can read it directly.
	for _, r := range fileResults {
		if r.State != TargetFinished {
			continue
		}
		if err := decompressAlongside(r.Dest); err != nil {
			slog.Warn("decompressing content file", "path", r.Dest, "error", err)
		}
	}

	if err := storage.Save(); err != nil {
		return nil, Wrap(KindIO, err, "saving storage state")
	}

	res := &Result{
		MirrorsUsed: urlsOf(ml),
		Targets:     append([]TargetResult{manifestResults[0]}, fileResults...),
	}
	return res, nil
}

// decompressAlongside writes the decompressed form of dest next to it
// when dest's extension names a supported compression scheme; any
// other extension is a no-op.
func decompressAlongside(dest string) error {
	base := filepath.Base(dest)
	ext := filepath.Ext(base)
	if ext != ".gz" && ext != ".bz2" && ext != ".xz" {
		return nil
	}

	f, err := os.Open(dest) // #nosec G304 - path is a just-downloaded target under DestDir
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r, outName, err := repo.DecompressByExtension(base, f)
	if err != nil {
		return err
	}

	outPath := filepath.Join(filepath.Dir(dest), outName)
	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 - derived from DestDir
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, r)
	return err
}

func onlyMissing(results []TargetResult) bool {
	for _, r := range results {
		if r.State != TargetFinished && KindOf(r.Err) != KindHTTPStatus {
			return false
		}
	}
	return true
}

func missingOf(results []TargetResult) []TargetResult {
	var out []TargetResult
	for _, r := range results {
		if r.State != TargetFinished {
			out = append(out, r)
		}
	}
	return out
}
