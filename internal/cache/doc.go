// Package cache provides a bounded, expiring in-process store for values that
// are expensive to fetch from the portal's external data store.
//
// Each [Cache] combines two independent policies:
//   - capacity: a least-recently-used list bounded at MaxEntries
//   - age: a per-entry insert timestamp checked lazily on read against the TTL
//
// Every removal is reported with an [EvictReason] so callers and tests can tell
// which policy fired. A miss is a normal outcome, never an error.
//
// A [Registry] groups the named instances of one process so operators can
// inspect and invalidate them together.
package cache
