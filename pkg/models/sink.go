package models

import "time"

// RemovalReason says why an entry left the store.
type RemovalReason string

const (
	RemovalExpired     RemovalReason = "expired"
	RemovalEvicted     RemovalReason = "evicted"
	RemovalInvalidated RemovalReason = "invalidated"
	RemovalCleared     RemovalReason = "cleared"
	// RemovalDependency marks an entry removed because an entry it depends
	// on was removed.
	RemovalDependency RemovalReason = "dependency"
)

// RemovalEvent records one entry removed from the store.
type RemovalEvent struct {
	RunID     string        `json:"run_id"`
	Key       string        `json:"key"`
	Category  Category      `json:"category"`
	Reason    RemovalReason `json:"reason"`
	Priority  int           `json:"priority"`
	Strategy  string        `json:"strategy,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Snapshot is a point-in-time copy of store and prioritizer statistics.
type Snapshot struct {
	ID          string           `json:"id"`
	Cache       CacheStats       `json:"cache"`
	Prioritizer PrioritizerStats `json:"prioritizer"`
	CreatedAt   time.Time        `json:"created_at"`
}
