package mirror

import (
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func TestFastestMirrorProberReorder(t *testing.T) {
	t.Parallel()

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer fast.Close()

	// A listener that accepts TCP connections but never completes an
	// HTTP response is still "fast" for a connect-latency probe; use an
	// unreachable address instead to get a mirror that is reliably slow.
	unreachable := "http://192.0.2.1:81/repo" // TEST-NET-1, reserved non-routable

	ml := NewMirrorList()
	ml.AppendURL(unreachable)
	ml.AppendURL(fast.URL)

	prober := NewFastestMirrorProber(filepath.Join(t.TempDir(), "cache.json"), time.Hour)
	prober.Reorder(ml)

	if ml.NthURL(0) != fast.URL {
		t.Errorf("expected the reachable mirror first, got order: %v", ml.Snapshot())
	}
}

func TestFastestMirrorProberCachePersists(t *testing.T) {
	t.Parallel()

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer fast.Close()

	cachePath := filepath.Join(t.TempDir(), "cache.json")
	ml := NewMirrorList()
	ml.AppendURL(fast.URL)

	p1 := NewFastestMirrorProber(cachePath, time.Hour)
	p1.Reorder(ml)

	cache := p1.loadCache()
	host := hostOf(fast.URL)
	if _, ok := cache.Entries[host]; !ok {
		t.Fatalf("expected a cache entry for %s", host)
	}

	p2 := NewFastestMirrorProber(cachePath, time.Hour)
	cache2 := p2.loadCache()
	if _, ok := cache2.Entries[host]; !ok {
		t.Error("expected the cache to be loaded by a fresh prober instance")
	}
}

func TestFastestMirrorProberEmptyList(t *testing.T) {
	t.Parallel()

	ml := NewMirrorList()
	prober := NewFastestMirrorProber("", time.Hour)
	prober.Reorder(ml) // must not panic on an empty list
	if ml.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ml.Len())
	}
}

func TestHotCache(t *testing.T) {
	t.Parallel()

	hc := newHotCache()
	if _, ok := hc.lookup("nowhere.example"); ok {
		t.Error("lookup on an empty cache should miss")
	}
	hc.store("nowhere.example", 5*time.Millisecond, time.Minute)
	lat, ok := hc.lookup("nowhere.example")
	if !ok || lat != 5*time.Millisecond {
		t.Errorf("lookup = %v, %v; want 5ms, true", lat, ok)
	}
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	if hostOf("http://example.com:8080/repo") != "example.com:8080" {
		t.Errorf("hostOf() = %q", hostOf("http://example.com:8080/repo"))
	}
}

// probeTimeout is small enough that this test completes quickly even
// though 192.0.2.1 is a non-routable address that will time out rather
// than refuse the connection immediately.
func TestProbeOneUnreachable(t *testing.T) {
	t.Parallel()

	start := time.Now()
	d := probeOne("http://192.0.2.1:81/repo")
	if d < probeTimeout {
		t.Errorf("expected a sentinel duration at least probeTimeout, got %v (elapsed %v)", d, time.Since(start))
	}
}

func TestProbeOneReachable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	d := probeOne("http://" + ln.Addr().String() + "/repo")
	if d >= time.Hour {
		t.Errorf("expected a real latency measurement, got sentinel %v", d)
	}
}
