// Package cache implements the in-process query cache that sits in front of
// the SQLite index and the remote store.
//
// Entries are keyed by Key(endpoint, params), which sorts parameter names so
// that logically identical requests share an entry. Each entry carries its
// own expiry; an expired entry is treated exactly like a miss and deleted on
// read, so correctness never depends on the janitor. Start runs a janitor
// that sweeps expired entries every CleanupInterval to bound memory.
//
// GetOrLoad coalesces concurrent misses for the same key with
// golang.org/x/sync/singleflight:
//
//	v, err := c.GetOrLoad(ctx, cache.Key(cache.EndpointGalleries, nil), ttls.Galleries,
//	    func(ctx context.Context) (any, error) {
//	        return loadGalleries(ctx)
//	    })
//
// A loader that produced a degraded result can return cache.NoStore(v) to
// hand v back to every waiter without caching it.
package cache
