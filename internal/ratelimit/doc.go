// Package ratelimit bounds how often a caller may hit the portal.
//
// Two layers exist:
//   - [IPLimiter] is a per-IP token bucket applied to all traffic for basic
//     flood protection.
//   - [FixedWindow] counts hits per caller token inside a fixed window and is
//     used per operation category (payments, rewards, invoice export, ...),
//     so exhausting one category leaves the others untouched.
//
// Both are single-instance and in-memory. State does not survive a restart and
// is not shared between replicas, which is fine for short-horizon abuse damping
// but not for quota accounting.
package ratelimit
