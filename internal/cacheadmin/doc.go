// Package cacheadmin exposes operator endpoints to inspect and invalidate the
// portal caches and to inspect rate limiter occupancy. Every route needs the
// admin bearer token.
package cacheadmin
