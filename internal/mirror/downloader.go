package mirror

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mirrorctl/repoget/internal/repo"
	"golang.org/x/sync/errgroup"
)

// fileInfoOf builds the repo.FileInfo that represents a successfully
// downloaded target, for storage bookkeeping and update-mode reuse
// comparisons.
func fileInfoOf(t Target) *repo.FileInfo {
	var checksums []repo.Checksum
	if t.Checksum != nil {
		checksums = []repo.Checksum{*t.Checksum}
	}
	return repo.NewFileInfo(t.RelativePath, uint64(t.ExpectedSize), checksums) // #nosec G115 - sizes are non-negative by construction
}

// Downloader is the parallel, mirror-aware download engine (spec.md
// §4.G): it schedules each target against the mirror list, respecting
// max-parallel-downloads, max-downloads-per-mirror and max-mirror-tries,
// retrying a target against the next-best mirror on transient failure,
// and reusing a previously stored file when update mode allows it.
// Adapted from the teacher's HTTPClient fan-out/fan-in (http_client.go),
// generalized from a single fixed mirror to the full mirror list.
type Downloader struct {
	h        *Handle
	ml       *MirrorList
	transfer *Transfer
	storage  *Storage
	current  *Storage // previous run's storage, for update-mode reuse; may be nil

	mu      sync.Mutex
	perHost map[string]chan struct{}
}

// NewDownloader builds a Downloader.
func NewDownloader(h *Handle, ml *MirrorList, transfer *Transfer, storage, current *Storage) *Downloader {
	return &Downloader{
		h: h, ml: ml, transfer: transfer, storage: storage, current: current,
		perHost: make(map[string]chan struct{}),
	}
}

func (d *Downloader) hostSemaphore(url string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.perHost[url]
	if !ok {
		ch = make(chan struct{}, d.h.MaxDownloadsPerMirror)
		d.perHost[url] = ch
	}
	return ch
}

// candidate is a (mirror index, mirror) pair ranked for a single
// selection: preference descending, fails ascending, then original
// insertion order (spec.md §3 invariant on mirror ordering).
type candidate struct {
	idx int
	m   Mirror
}

func rankedMirrors(snap []Mirror) []candidate {
	out := make([]candidate, len(snap))
	for i, m := range snap {
		out[i] = candidate{idx: i, m: m}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].m.Preference != out[b].m.Preference {
			return out[a].m.Preference > out[b].m.Preference
		}
		if out[a].m.Fails != out[b].m.Fails {
			return out[a].m.Fails < out[b].m.Fails
		}
		return out[a].idx < out[b].idx
	})
	return out
}

// Download fetches every target, returning one TargetResult per target
// in the same order. If h.FailFast is set, the first failure cancels
// all in-flight and pending work and Download returns that error
// immediately; otherwise every target runs to completion and a
// *CompositeError summarizes failures (spec.md §7 "Propagation").
func (d *Downloader) Download(ctx context.Context, targets []Target) ([]TargetResult, error) {
	results := make([]TargetResult, len(targets))
	sem := make(chan struct{}, d.h.MaxParallelDownloads)

	var (
		mu       sync.Mutex
		failures int
		first    error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		i, t := i, t
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			results[i] = TargetResult{RelativePath: t.RelativePath, Dest: t.Dest, State: TargetFailed, Err: gctx.Err()}
			if d.h.EndCB != nil {
				d.h.EndCB(d.h.ProgressData, TargetFailed)
			}
			continue
		}
		g.Go(func() error {
			defer func() { <-sem }()
			res := d.downloadOne(gctx, t)
			results[i] = res
			if res.Err != nil {
				mu.Lock()
				failures++
				if first == nil {
					first = res.Err
				}
				mu.Unlock()
				if d.h.FailFast {
					return res.Err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return results, err
	}
	if failures > 1 {
		return results, &CompositeError{Count: failures, First: first}
	}
	if failures == 1 {
		return results, first
	}
	return results, nil
}

// logVersionSkipHint emits a best-effort debug log comparing the
// incoming target's name/version against whatever current already has
// stored at that path, when both sides carry a Debian-style version
// suffix (internal/repo's go-deb-version wiring). It never changes the
// reuse decision itself, which stays checksum-based (spec.md §4.I).
func logVersionSkipHint(current *Storage, relativePath string) {
	newName, newVer, ok := repo.ExtractNameVersion(relativePath)
	if !ok {
		return
	}
	existing, ok := current.PathInfo(relativePath)
	if !ok {
		return
	}
	oldName, oldVer, ok := repo.ExtractNameVersion(existing.Path())
	if !ok || oldName != newName {
		return
	}
	if newer, ok := repo.NewerVersion(oldVer, newVer); ok {
		slog.Debug("update-mode version comparison", "package", newName,
			"stored_version", oldVer, "incoming_version", newVer, "incoming_newer", newer)
	}
}

// downloadOne drives a single target through reuse-check, then
// mirror-by-mirror attempts, up to h.MaxMirrorTries (0 = try every
// mirror once).
func (d *Downloader) downloadOne(ctx context.Context, t Target) TargetResult {
	start := time.Now()
	res := TargetResult{RelativePath: t.RelativePath, Dest: t.Dest}

	// EndFunc is delivered exactly once per target, regardless of which
	// branch below reaches the terminal state (spec.md §5).
	if d.h.EndCB != nil {
		defer func() { d.h.EndCB(d.h.ProgressData, res.State) }()
	}

	if d.current != nil && t.Checksum != nil {
		probe := fileInfoOf(t)
		if existing, fullpath := d.current.Lookup(probe); existing != nil {
			if err := d.storage.StoreLink(existing, fullpath); err == nil {
				res.State = TargetFinished
				res.Size = int64(existing.Size())
				res.Duration = time.Since(start)
				return res
			}
		} else {
			// Checksum didn't match a stored copy. When the path carries a
			// Debian-style name/version suffix, log whether the stored copy
			// is actually older so an operator can see update mode is doing
			// the right thing; this never substitutes for the checksum
			// check above.
			logVersionSkipHint(d.current, t.RelativePath)
		}
	}

	snap := d.ml.Snapshot()
	ranked := rankedMirrors(snap)
	maxTries := d.h.MaxMirrorTries
	if maxTries <= 0 || maxTries > len(ranked) {
		maxTries = len(ranked)
	}

	var lastErr error
	for attempt := 0; attempt < maxTries; attempt++ {
		c := ranked[attempt]
		hostSem := d.hostSemaphore(c.m.URL)

		select {
		case hostSem <- struct{}{}:
		case <-ctx.Done():
			res.State = TargetFailed
			res.Err = ctx.Err()
			res.Duration = time.Since(start)
			return res
		}

		err := d.attempt(ctx, c.m.URL, t)
		<-hostSem

		if err == nil {
			res.State = TargetFinished
			res.MirrorURL = c.m.URL
			res.Duration = time.Since(start)
			return res
		}

		lastErr = err
		d.ml.IncrementFails(c.idx)

		if ctx.Err() != nil {
			break
		}
		if KindOf(err) == KindInterrupted {
			break
		}
	}

	res.State = TargetFailed
	res.Err = lastErr
	res.Duration = time.Since(start)
	return res
}

// progressFor adapts h.ProgressCB's (userData, total, downloaded) shape
// to the single-argument callback Transfer.Fetch expects, or returns
// nil when no callback is configured (spec.md §4.F, §5).
func (d *Downloader) progressFor(t Target) func(int64) bool {
	if d.h.ProgressCB == nil {
		return nil
	}
	cb := d.h.ProgressCB
	data := d.h.ProgressData
	total := t.ExpectedSize
	return func(downloaded int64) bool {
		return cb(data, total, downloaded)
	}
}

// attempt performs one transfer of t against mirror baseURL, verifying
// checksum and storing the result on success.
func (d *Downloader) attempt(ctx context.Context, baseURL string, t Target) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return Wrap(KindBadOption, err, "invalid mirror URL")
	}

	tmp, err := d.storage.TempFile()
	if err != nil {
		return Wrap(KindIO, err, "creating temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	n, err := d.transfer.FetchToFile(ctx, u, t, tmp, d.progressFor(t))
	if err != nil {
		return err
	}
	if t.ExpectedSize > 0 && n != t.ExpectedSize && n != 0 {
		return New(KindIncompleteRepo, "size mismatch for "+t.RelativePath)
	}
	if err := tmp.Sync(); err != nil {
		return Wrap(KindIO, err, "fsync temp file")
	}

	if d.h.ChecksumCheck && t.Checksum != nil {
		if _, serr := tmp.Seek(0, 0); serr != nil {
			return Wrap(KindIO, serr, "seeking temp file")
		}
		if err := VerifyFile(tmpName, t.Checksum); err != nil {
			return err
		}
	}

	if err := os.Chmod(tmpName, 0600); err != nil {
		return Wrap(KindIO, err, "chmod temp file")
	}

	fi := fileInfoOf(t)
	return d.storage.StoreLink(fi, tmpName)
}
