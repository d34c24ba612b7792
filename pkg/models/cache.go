package models

import "time"

// Category is a coarse classification of a query that drives its caching behavior.
type Category string

const (
	CategoryClinicalAnalysis Category = "clinical-analysis"
	CategoryEvidenceCheck    Category = "evidence-check"
	CategoryPatientHistory   Category = "patient-history"
	CategoryGeneral          Category = "general"
	CategoryDevelopment      Category = "development"
	CategoryUrgent           Category = "urgent"
)

// Categories lists every category in canonical order.
var Categories = []Category{
	CategoryClinicalAnalysis,
	CategoryEvidenceCheck,
	CategoryPatientHistory,
	CategoryGeneral,
	CategoryDevelopment,
	CategoryUrgent,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Metadata is produced once per entry, at insert time.
type Metadata struct {
	Category  Category  `json:"category"`
	Tags      []string  `json:"tags"`
	SubjectID string    `json:"subject_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Priority  int       `json:"priority"`
}

// HasTag reports whether the metadata carries tag.
func (m Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CacheEntry stores a cached AI response with its bookkeeping.
type CacheEntry struct {
	Key            string    `json:"key"`
	Response       []byte    `json:"response"`
	Metadata       Metadata  `json:"metadata"`
	Query          *Query    `json:"query,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `json:"access_count"`
	Seq            uint64    `json:"seq"`
}

// Expired reports whether the entry is stale at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.Metadata.ExpiresAt)
}

// ItemStats are the live usage statistics tracked per cache key.
type ItemStats struct {
	AccessCount       int64         `json:"access_count"`
	Misses            int64         `json:"misses"`
	LastAccessed      time.Time     `json:"last_accessed"`
	HitRate           float64       `json:"hit_rate"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
	EstimatedCost     float64       `json:"estimated_cost"`
	Computations      int64         `json:"computations"`
}

// CacheStats reports store-wide counters.
type CacheStats struct {
	Entries        int64     `json:"entries"`
	Capacity       int64     `json:"capacity"`
	Hits           int64     `json:"hits"`
	Misses         int64     `json:"misses"`
	Skipped        int64     `json:"skipped"`
	Evictions      int64     `json:"evictions"`
	Expirations    int64     `json:"expirations"`
	HitRate        float64   `json:"hit_rate"`
	MissRate       float64   `json:"miss_rate"`
	AvgAccessCount float64   `json:"avg_access_count"`
	OldestEntry    time.Time `json:"oldest_entry,omitempty"`
	NewestEntry    time.Time `json:"newest_entry,omitempty"`
	// TopKeys lists the most accessed live entries.
	TopKeys []KeyAccess `json:"top_keys,omitempty"`
}

// KeyAccess pairs a cache key with its access count.
type KeyAccess struct {
	Key         string `json:"key"`
	AccessCount int64  `json:"access_count"`
}

// PrioritizerStats summarizes the tracked usage statistics.
type PrioritizerStats struct {
	TrackedItems       int           `json:"tracked_items"`
	AvgAccessCount     float64       `json:"avg_access_count"`
	AvgHitRate         float64       `json:"avg_hit_rate"`
	AvgProcessingTime  time.Duration `json:"avg_processing_time"`
	EstimatedCostSaved float64       `json:"estimated_cost_saved"`
	Strategy           string        `json:"strategy"`
}
