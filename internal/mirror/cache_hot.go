package mirror

import (
	"time"

	"github.com/coocood/freecache"
)

// hotCacheBytes sizes the in-process freecache layer sitting in front
// of the on-disk fastest-mirror cache.
const hotCacheBytes = 1 << 20 // 1 MiB

// hotCache is the in-memory latency cache fronting FastestMirrorProber's
// on-disk one. A miss here simply falls through to disk; it is never
// the sole source of truth. Each prober owns its own hotCache and
// Perform builds a new prober on every call, so entries do not outlive
// one Perform; Reorder reads the cache file on every call regardless.
type hotCache struct {
	c *freecache.Cache
}

func newHotCache() *hotCache {
	return &hotCache{c: freecache.NewCache(hotCacheBytes)}
}

func (h *hotCache) lookup(host string) (time.Duration, bool) {
	if h == nil || h.c == nil {
		return 0, false
	}
	v, err := h.c.Get([]byte(host))
	if err != nil {
		return 0, false
	}
	return time.Duration(btoi64(v)), true
}

func (h *hotCache) store(host string, lat time.Duration, ttl time.Duration) {
	if h == nil || h.c == nil {
		return
	}
	_ = h.c.Set([]byte(host), i64tob(int64(lat)), int(ttl.Seconds()))
}

func i64tob(v int64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func btoi64(b []byte) int64 {
	var v int64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= int64(b[i]) << (8 * i)
	}
	return v
}
