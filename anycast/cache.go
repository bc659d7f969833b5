package anycast

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// cacheCapacity bounds the number of distinct anycast addresses the
// server cache may hold at once (§3 invariant 4).
const cacheCapacity = 5

// serverCache is the enhanced variant's component C: a recently
// observed anycast-address -> node-address mapping with a per-entry
// expiry. Built on patrickmn/go-cache, which already gives every
// entry its own TTL — exactly the "CacheEntry { address, node,
// expiry }" shape from §3 — rather than hand-rolling a second timer
// arena identical in spirit to the pending buffer's.
//
// DESIGN.md records the one semantic choice this makes explicit: on
// a remap to a different node the source allocates a brand new entry
// and lets the old one age out; this cache updates in place instead,
// the alternative the spec explicitly sanctions (§9) provided lookups
// always return the newest mapping — which they do here since the
// store is keyed 1:1 by address.
type serverCache struct {
	store   *gocache.Cache
	timeout time.Duration
}

func newServerCache(timeout time.Duration) *serverCache {
	return &serverCache{
		store:   gocache.New(timeout, timeout/2),
		timeout: timeout,
	}
}

func cacheKey(addr AnycastAddress) string {
	return strconv.Itoa(int(addr))
}

// lookup returns the cached node for addr, or ok=false on a miss
// (including an expired entry the janitor hasn't swept yet).
func (c *serverCache) lookup(addr AnycastAddress) (NodeAddress, bool) {
	v, ok := c.store.Get(cacheKey(addr))
	if !ok {
		return 0, false
	}
	return v.(NodeAddress), true
}

// record observes a RESPONSE naming node as the server for addr. A
// first sighting allocates an entry if capacity allows; a repeat
// sighting of the same node refreshes its TTL; a sighting of a
// different node overwrites the mapping and its TTL (see type doc).
// Capacity exhaustion on a brand new address degrades silently —
// per §7, cache failure is never fatal, just missed optimization.
func (c *serverCache) record(addr AnycastAddress, node NodeAddress) {
	key := cacheKey(addr)
	if _, exists := c.store.Get(key); !exists {
		if c.store.ItemCount() >= cacheCapacity {
			return
		}
	}
	c.store.Set(key, node, gocache.DefaultExpiration)
}

func (c *serverCache) size() int {
	return c.store.ItemCount()
}

// all returns a snapshot of {address, node} pairs for the status
// reporter (§4.G).
func (c *serverCache) all() map[AnycastAddress]NodeAddress {
	out := make(map[AnycastAddress]NodeAddress)
	for k, item := range c.store.Items() {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[AnycastAddress(n)] = item.Object.(NodeAddress)
	}
	return out
}
