// Package ratelimit decides when gated pipeline runs may start.
//
// Two gates apply: a global Throttle (N admissions per rolling window across
// all keys) and a KeyedLimiter (one admission per key per window). Gate
// evaluates both atomically. Events that fail either gate are deferred with
// a RetryAfter hint and never dropped.
//
// All methods take the current time explicitly so callers and tests control
// the clock.
package ratelimit
