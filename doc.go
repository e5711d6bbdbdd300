// Package rpcpool turns a set of unreliable, heterogeneous, rate-limited
// Solana JSON-RPC endpoints into one dependable call surface:
//
//   - Endpoint registry with URL dedup and a hard non-production exclusion
//   - Scored endpoint selection with per-endpoint concurrency caps
//   - Exponential cooldown circuit breaking, capped, with graceful
//     degradation when every endpoint is cooling down
//   - Provider rate-limit tracking from response headers
//   - Retry across endpoints with jittered backoff and typed error
//     classification
//   - Stale-cache fallback on exhaustion, results tagged as degraded
//   - Response normalization into JSON-safe values plus a recursive
//     field search for provider-dependent shapes
//   - Background health probing that feeds the same scoring model as
//     production traffic
//
// Design goals:
//   - One explicit Pool handle shared by all callers; no ambient global state
//   - Safe concurrent use; per-endpoint locking only, never around network calls
//   - Functional options configure everything
//   - Pluggable cache, logger and metrics collaborators
//
// Typical usage:
//
//	pool, err := rpcpool.New(
//	    rpcpool.WithRegistry(rpcpool.NewRegistry(rpcpool.MainnetSeeds(nil)...), rpcpool.RegistryFilter{}),
//	    rpcpool.WithMaxInFlight(8),
//	)
//	if err != nil {
//	    // zero endpoints is a deployment defect, fail loudly
//	}
//	inv := rpcpool.NewInvoker(pool,
//	    rpcpool.WithMaxRetries(3),
//	    rpcpool.WithCache(rpcpool.NewInMemoryCache(), time.Minute),
//	)
//	res, err := inv.Call(ctx, "getSlot", nil)
//
// Res.Degraded marks values served from cache after live retrieval
// failed; FindField digs provider-nested fields out of Res.Value.
package rpcpool
