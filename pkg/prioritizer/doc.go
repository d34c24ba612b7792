// Package prioritizer decides which cache entries are worth keeping.
//
// It owns the per-key usage statistics (hit rate, processing time, cost)
// and scores entries with one of six strategies: medical-content,
// critical-queries, resource-intensive, recency-based, access-frequency and
// the default hybrid weighted mean. The store asks it for eviction victims
// under capacity pressure and purges the victims' statistics afterwards.
//
// The active Config is an immutable value swapped atomically, so a runtime
// reconfiguration takes effect on the next scoring call without locking.
package prioritizer
