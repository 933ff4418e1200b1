package mirror

import (
	"net/url"
	"strings"
	"sync"

	"github.com/mirrorctl/repoget/internal/repo"
)

// Protocol classifies a mirror by URL scheme.
type Protocol string

// Recognized protocols. Unknown schemes pass through as ProtocolOther;
// scheme validation beyond the "is this a URL at all" check in
// AppendURL happens at transfer time (spec.md §4.A).
const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolFTP   Protocol = "ftp"
	ProtocolFile  Protocol = "file"
	ProtocolRsync Protocol = "rsync"
	ProtocolOther Protocol = "other"
)

func protocolOf(rawURL string) Protocol {
	if strings.HasPrefix(rawURL, "/") {
		return ProtocolFile
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ProtocolOther
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return ProtocolHTTP
	case "https":
		return ProtocolHTTPS
	case "ftp":
		return ProtocolFTP
	case "file":
		return ProtocolFile
	case "rsync":
		return ProtocolRsync
	default:
		return ProtocolOther
	}
}

const defaultPreference = 100

// Mirror is one server carrying repository content, per spec.md §3.
type Mirror struct {
	URL        string
	Preference int
	Fails      int
	Protocol   Protocol
	Location   string
}

// MirrorList is the unified, ordered, deduplicated mirror set that
// feeds the downloader. Every method takes the list's mutex, so the
// list is safe for concurrent use; once built, only the downloader
// mutates Fails and only the prober reorders it.
type MirrorList struct {
	mu      sync.Mutex
	mirrors []*Mirror
	seen    map[string]int // URL -> index, for exact-match dedup
}

// NewMirrorList constructs an empty mirror list.
func NewMirrorList() *MirrorList {
	return &MirrorList{seen: make(map[string]int)}
}

// isValidMirrorURL applies spec.md §3's invariant: a mirror URL must
// contain "://" or begin with "/".
func isValidMirrorURL(u string) bool {
	return u != "" && (strings.Contains(u, "://") || strings.HasPrefix(u, "/"))
}

// AppendURL appends a single base URL, applying the invariants from
// spec.md §4.C: empty/invalid URLs are ignored (not an error — this
// matches scenario 1 of spec.md §8, where "" and a NULL entry leave
// list length unchanged), and exact-match duplicates are dropped.
// Returns true if a new mirror was appended.
func (l *MirrorList) AppendURL(rawURL string) bool {
	if !isValidMirrorURL(rawURL) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.seen[rawURL]; dup {
		return false
	}
	m := &Mirror{
		URL:        rawURL,
		Preference: defaultPreference,
		Protocol:   protocolOf(rawURL),
	}
	l.seen[rawURL] = len(l.mirrors)
	l.mirrors = append(l.mirrors, m)
	return true
}

// AppendMirrorList appends every URL parsed from a mirror-list file,
// in order (spec.md §4.C).
func (l *MirrorList) AppendMirrorList(urls []string) {
	for _, u := range urls {
		l.AppendURL(u)
	}
}

// AppendMetalink appends every non-empty URL named by a parsed
// metalink, trimming suffixToTrim from the end of each URL first (the
// metalink lists the manifest's own URL, not the mirror root), and
// carrying the metalink's per-URL preference. Preserves source order
// among entries of equal preference (spec.md §3 invariants, §4.C).
func (l *MirrorList) AppendMetalink(ml *repo.Metalink, suffixToTrim string) {
	if ml == nil {
		return
	}
	for _, mu := range ml.URLs {
		u := mu.URL
		if u == "" {
			continue
		}
		if suffixToTrim != "" && strings.HasSuffix(u, suffixToTrim) {
			u = u[:len(u)-len(suffixToTrim)]
		}
		if !isValidMirrorURL(u) {
			continue
		}
		l.mu.Lock()
		if _, dup := l.seen[u]; dup {
			l.mu.Unlock()
			continue
		}
		pref := mu.Preference
		if pref <= 0 || pref > 100 {
			pref = defaultPreference
		}
		m := &Mirror{
			URL:        u,
			Preference: pref,
			Protocol:   protocolOf(u),
			Location:   mu.Location,
		}
		l.seen[u] = len(l.mirrors)
		l.mirrors = append(l.mirrors, m)
		l.mu.Unlock()
	}
}

// AppendInternal splices every mirror of other into l that isn't
// already present by exact URL match, preserving other's order and
// preferences (spec.md §4.C).
func (l *MirrorList) AppendInternal(other *MirrorList) {
	if other == nil {
		return
	}
	other.mu.Lock()
	mirrors := make([]*Mirror, len(other.mirrors))
	copy(mirrors, other.mirrors)
	other.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range mirrors {
		if _, dup := l.seen[m.URL]; dup {
			continue
		}
		cp := *m
		cp.Fails = 0
		l.seen[m.URL] = len(l.mirrors)
		l.mirrors = append(l.mirrors, &cp)
	}
}

// Len returns the number of mirrors in the list.
func (l *MirrorList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.mirrors)
}

// Nth returns the mirror at index i, or nil if out of range.
func (l *MirrorList) Nth(i int) *Mirror {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.mirrors) {
		return nil
	}
	return l.mirrors[i]
}

// NthURL returns the URL of the mirror at index i, or "" if out of range.
func (l *MirrorList) NthURL(i int) string {
	m := l.Nth(i)
	if m == nil {
		return ""
	}
	return m.URL
}

// IncrementFails bumps the failure counter of the mirror at index i.
// Called by the downloader from its per-target goroutines; the mutex
// serializes the updates (spec.md §5).
func (l *MirrorList) IncrementFails(i int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= 0 && i < len(l.mirrors) {
		l.mirrors[i].Fails++
	}
}

// ResetFails zeroes every mirror's failure counter. Perform does not
// call it: each Perform builds a fresh list whose counters start at
// zero, which keeps spec.md §3's "fails... is reset between calls".
func (l *MirrorList) ResetFails() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.mirrors {
		m.Fails = 0
	}
}

// Snapshot returns a defensive copy of the mirror list contents, for
// callers (the scheduler, the prober) that need a stable view to sort
// or iterate without holding the lock.
func (l *MirrorList) Snapshot() []Mirror {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Mirror, len(l.mirrors))
	for i, m := range l.mirrors {
		out[i] = *m
	}
	return out
}

// Reorder replaces the mirror order with order, a permutation of
// indices into the current list (as returned by Snapshot). Used by
// the fastest-mirror prober (spec.md §4.E step 5); per-mirror fails
// and preference travel with their mirror.
func (l *MirrorList) Reorder(order []int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(order) != len(l.mirrors) {
		return
	}
	next := make([]*Mirror, len(l.mirrors))
	for newIdx, oldIdx := range order {
		if oldIdx < 0 || oldIdx >= len(l.mirrors) {
			return
		}
		next[newIdx] = l.mirrors[oldIdx]
	}
	l.mirrors = next
	for i, m := range l.mirrors {
		l.seen[m.URL] = i
	}
}
