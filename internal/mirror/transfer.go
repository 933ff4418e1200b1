package mirror

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mirrorctl/repoget/internal/repo"
	"golang.org/x/net/proxy"
)

// progressReportInterval bounds how often the progress callback fires
// for a single transfer, regardless of how fast bytes arrive.
const progressReportInterval = 200 * time.Millisecond

// Target is one file to retrieve, named relative to the mirror root
// (spec.md §3).
type Target struct {
	RelativePath string
	ExpectedSize int64
	Checksum     *repo.Checksum
	Dest         string // absolute destination path
	Resume       bool
}

// TargetState is the terminal state a target reaches (spec.md §5).
type TargetState int

// Target states.
const (
	TargetPending TargetState = iota
	TargetInProgress
	TargetFinished
	TargetFailed
)

// transferOutcome is what a single attempt against one mirror produced.
type transferOutcome struct {
	bytesWritten int64
	err          error
}

// Transfer performs single-target, single-mirror HTTP(S) transfers,
// honoring connect timeout, low-speed abort, overall speed limiting,
// range-resume, and proxying — the librepo "single download" engine
// (spec.md §4.F), generalized from the teacher's HTTPClient.download.
type Transfer struct {
	client *http.Client
	h      *Handle
}

// NewTransfer builds a Transfer configured from h.
func NewTransfer(h *Handle) (*Transfer, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConns = 100
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second
	tr.DialContext = (&net.Dialer{
		Timeout: h.ConnectTimeout,
	}).DialContext

	tlsCfg, err := h.TLS.BuildTLSConfig()
	if err != nil {
		return nil, err
	}
	tr.TLSClientConfig = tlsCfg

	if h.Proxy != "" {
		if err := applyProxy(tr, h); err != nil {
			return nil, err
		}
	}

	return &Transfer{
		client: &http.Client{Transport: tr, Timeout: 0},
		h:      h,
	}, nil
}

func applyProxy(tr *http.Transport, h *Handle) error {
	switch h.ProxyType {
	case ProxySOCKS4, ProxySOCKS5:
		addr := net.JoinHostPort(h.Proxy, strconv.Itoa(h.ProxyPort))
		var auth *proxy.Auth
		if h.ProxyAuth && h.ProxyUserPwd != "" {
			auth = parseUserPwd(h.ProxyUserPwd)
		}
		dialer, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
		if err != nil {
			return Wrap(KindBadOption, err, "building SOCKS dialer")
		}
		tr.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
			return dialer.Dial(network, address)
		}
	case ProxyHTTP, "":
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(h.Proxy, strconv.Itoa(h.ProxyPort)),
		}
		if h.ProxyAuth && h.ProxyUserPwd != "" {
			if a := parseUserPwd(h.ProxyUserPwd); a != nil {
				proxyURL.User = url.UserPassword(a.User, a.Password)
			}
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	default:
		return New(KindBadOption, "unsupported proxy type")
	}
	return nil
}

func parseUserPwd(s string) *proxy.Auth {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return &proxy.Auth{User: s[:i], Password: s[i+1:]}
		}
	}
	return &proxy.Auth{User: s}
}

// lowSpeedReader wraps an io.Reader, measuring throughput over a
// sliding window and returning an error once the rate has stayed below
// limit for longer than lowSpeedTime, per spec.md §4.F "low speed
// abort". A zero limit or zero duration disables the check.
type lowSpeedReader struct {
	r              io.Reader
	limit          int64
	window         time.Duration
	windowStart    time.Time
	windowBytes    int64
	belowSince     time.Time
	maxSpeed       int64
	speedWindowAt  time.Time
	speedWindowN   int64
	progress       func(n int64) (stop bool)
	total          int64
	lastProgressAt time.Time
}

func newLowSpeedReader(r io.Reader, limit int64, window time.Duration, maxSpeed int64, progress func(int64) bool) *lowSpeedReader {
	now := time.Now()
	return &lowSpeedReader{
		r: r, limit: limit, window: window,
		windowStart: now, speedWindowAt: now,
		maxSpeed: maxSpeed, progress: progress,
	}
}

func (lr *lowSpeedReader) Read(p []byte) (int, error) {
	n, err := lr.r.Read(p)
	if n > 0 {
		lr.total += int64(n)
		now := time.Now()

		if lr.limit > 0 && lr.window > 0 {
			lr.windowBytes += int64(n)
			if elapsed := now.Sub(lr.windowStart); elapsed >= time.Second {
				rate := int64(float64(lr.windowBytes) / elapsed.Seconds())
				lr.windowStart = now
				lr.windowBytes = 0
				if rate < lr.limit {
					if lr.belowSince.IsZero() {
						lr.belowSince = now
					} else if now.Sub(lr.belowSince) >= lr.window {
						return n, New(KindTooSlow, "transfer speed below low-speed-limit for low-speed-time")
					}
				} else {
					lr.belowSince = time.Time{}
				}
			}
		}

		if lr.progress != nil && (lr.lastProgressAt.IsZero() || now.Sub(lr.lastProgressAt) >= progressReportInterval) {
			lr.lastProgressAt = now
			if lr.progress(lr.total) {
				return n, New(KindInterrupted, "progress callback requested abort")
			}
		}

		if lr.maxSpeed > 0 {
			lr.speedWindowN += int64(n)
			elapsed := now.Sub(lr.speedWindowAt)
			want := time.Duration(float64(lr.speedWindowN)/float64(lr.maxSpeed)*float64(time.Second)) - elapsed
			if want > 0 {
				time.Sleep(want)
			}
			if elapsed >= time.Second {
				lr.speedWindowAt = now
				lr.speedWindowN = 0
			}
		}
	}
	return n, err
}

// Fetch retrieves target from baseURL, writing to a destination supplied
// by the caller (the downloader owns temp-file lifecycle so it can
// apply its storage-reuse rules), issuing a range request from
// startOffset when it is positive. Returns the number of bytes newly
// written; checksum verification is left to the caller.
func (tr *Transfer) Fetch(ctx context.Context, baseURL *url.URL, target Target, w io.WriterAt, startOffset int64, progress func(total int64) bool) (int64, error) {
	root := *baseURL
	if !strings.HasSuffix(root.Path, "/") {
		root.Path += "/"
		root.RawPath = ""
	}
	reqURL := root.ResolveReference(&url.URL{Path: target.RelativePath})

	header := http.Header{}
	if tr.h.UserAgent != "" {
		header.Set("User-Agent", tr.h.UserAgent)
	} else {
		header.Set("User-Agent", "repoget/1.0")
	}
	if tr.h.HTTPAuth && tr.h.UserPwd != "" {
		a := parseUserPwd(tr.h.UserPwd)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
		if err != nil {
			return 0, Wrap(KindBadFunctionArgument, err, "building request")
		}
		req.SetBasicAuth(a.User, a.Password)
		header = req.Header
	}
	if startOffset > 0 {
		header.Set("Range", "bytes="+strconv.FormatInt(startOffset, 10)+"-")
	}

	req := &http.Request{
		Method: http.MethodGet,
		URL:    reqURL,
		Header: header,
	}
	resp, err := tr.client.Do(req.WithContext(ctx))
	if err != nil {
		return 0, Wrap(KindNetwork, err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusNotFound:
		return 0, New(KindHTTPStatus, "404 not found: "+target.RelativePath)
	default:
		return 0, New(KindHTTPStatus, resp.Status+" for "+target.RelativePath)
	}
	if startOffset > 0 && resp.StatusCode != http.StatusPartialContent {
		startOffset = 0 // server ignored the range; restart from scratch
	}

	src := newLowSpeedReader(resp.Body, tr.h.LowSpeedLimit, tr.h.LowSpeedTime, tr.h.MaxSpeed, progress)

	var written int64
	buf := make([]byte, 64*1024)
	off := startOffset
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := w.WriteAt(buf[:n], off); werr != nil {
				return written, Wrap(KindIO, werr, "writing to destination")
			}
			off += int64(n)
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}

	if progress != nil {
		progress(written)
	}

	return written, nil
}

// FetchToFile is a convenience wrapper for the common case of a fresh
// *os.File destination.
func (tr *Transfer) FetchToFile(ctx context.Context, baseURL *url.URL, target Target, f *os.File, progress func(int64) bool) (int64, error) {
	var start int64
	if target.Resume {
		info, err := f.Stat()
		if err == nil {
			start = info.Size()
		}
	}
	return tr.Fetch(ctx, baseURL, target, f, start, progress)
}
