package cache

import (
	"context"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/wasmsandbox/core/internal/runtime"
)

// ModuleCache memoizes compiled modules by content hash, bounded by an LRU
// with least-recently-acquired eviction (spec.md §3), and coalesces
// concurrent compiles of the same bytes with a singleflight group (spec.md
// §5 suspension point 4). Grounded on the cache shape implicit in
// opa/pool.go's policy/parsedData fields, generalized from "one policy at a
// time" to a many-module keyed cache.
type ModuleCache struct {
	rt    runtime.Runtime
	lru   *lru.Cache[[32]byte, *runtime.Module]
	flock singleflight.Group
	disk  *DiskStore // optional, nil disables persistence
}

// NewModuleCache constructs a cache bounded to size entries, compiling
// misses through rt. disk may be nil.
func NewModuleCache(rt runtime.Runtime, size int, disk *DiskStore) (*ModuleCache, error) {
	l, err := lru.New[[32]byte, *runtime.Module](size)
	if err != nil {
		return nil, err
	}
	return &ModuleCache{rt: rt, lru: l, disk: disk}, nil
}

// GetOrCompile returns the cached Module for wasmBytes' content hash,
// compiling (and caching) on a miss. Concurrent calls for the same bytes
// share one compile; a compile failure evicts the key so the cache never
// serves a poisoned entry.
func (c *ModuleCache) GetOrCompile(ctx context.Context, wasmBytes []byte) (*runtime.Module, error) {
	hash := ContentHash(wasmBytes)

	if mod, ok := c.lru.Get(hash); ok {
		return mod, nil
	}

	key := hex.EncodeToString(hash[:])
	v, err, _ := c.flock.Do(key, func() (any, error) {
		if mod, ok := c.lru.Get(hash); ok {
			return mod, nil
		}
		if c.disk != nil {
			if mod, ok, err := c.disk.Load(ctx, hash, c.rt); err == nil && ok {
				c.lru.Add(hash, mod)
				return mod, nil
			}
		}

		mod, err := c.rt.Compile(ctx, wasmBytes)
		if err != nil {
			return nil, &CompileFailedError{Cause: err}
		}
		c.lru.Add(hash, mod)
		if c.disk != nil {
			_ = c.disk.Store(ctx, hash, mod) // best-effort; in-memory cache is authoritative
		}
		return mod, nil
	})
	if err != nil {
		c.lru.Remove(hash)
		return nil, err
	}
	return v.(*runtime.Module), nil
}

// Invalidate drops hash from the cache, e.g. when fsnotify reports the
// backing file changed out-of-band.
func (c *ModuleCache) Invalidate(hash [32]byte) {
	c.lru.Remove(hash)
}

// Len reports the number of currently cached modules.
func (c *ModuleCache) Len() int { return c.lru.Len() }
