// Package store is the in-memory response cache keyed by query fingerprint.
package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/medcache/pkg/classifier"
	"github.com/pario-ai/medcache/pkg/models"
	"github.com/pario-ai/medcache/pkg/prioritizer"
)

const (
	sinkTimeout  = 5 * time.Second
	topKeysLimit = 5
)

// Config controls store capacity and housekeeping.
type Config struct {
	MaxEntries     int           `yaml:"max_entries"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	StatsRetention time.Duration `yaml:"stats_retention"`
	// SnapshotInterval spaces sink snapshots; zero sends one every sweep.
	SnapshotInterval time.Duration `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:     100,
		SweepInterval:  time.Minute,
		StatsRetention: 24 * time.Hour,
	}
}

// Hints carry what the caller knows about computing a response.
type Hints struct {
	ProcessingTime time.Duration
	Cost           float64
	Tags           []string
}

// Sink receives removal events and periodic snapshots.
type Sink interface {
	RecordRemovals(ctx context.Context, events []models.RemovalEvent) error
	RecordSnapshot(ctx context.Context, snap models.Snapshot) error
}

// Store is the in-memory response cache. All methods are safe for
// concurrent use.
type Store struct {
	cfg         Config
	classifier  *classifier.Classifier
	prioritizer *prioritizer.Prioritizer

	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	seq     uint64
	// dependents maps a key to the keys removed along with it; parents is
	// the reverse index.
	dependents map[string]map[string]struct{}
	parents    map[string]map[string]struct{}

	hits        atomic.Int64
	misses      atomic.Int64
	skipped     atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64

	now     func() time.Time
	logger  *zap.Logger
	metrics *Metrics
	sink    Sink

	lastSnapshot time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l.Named("store") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithSink attaches an external stats sink.
func WithSink(sink Sink) Option {
	return func(s *Store) { s.sink = sink }
}

// New creates a Store that classifies entries with c and delegates eviction
// to p.
func New(cfg Config, c *classifier.Classifier, p *prioritizer.Prioritizer, opts ...Option) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	s := &Store{
		cfg:         cfg,
		classifier:  c,
		prioritizer: p,
		entries:     make(map[string]*models.CacheEntry),
		dependents:  make(map[string]map[string]struct{}),
		parents:     make(map[string]map[string]struct{}),
		now:         time.Now,
		logger:      zap.NewNop(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached response for q. An expired entry is removed and
// reported as a miss.
func (s *Store) Get(q models.Query) ([]byte, bool) {
	key := models.CacheKey(q)
	now := s.now()

	var (
		response []byte
		hit      bool
		expired  []models.RemovalEvent
	)

	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		if e.Expired(now) {
			expired = s.removeLocked(expired, key, e, models.RemovalExpired, now)
		} else {
			e.LastAccessedAt = now
			e.AccessCount++
			response, hit = e.Response, true
		}
	}
	s.prioritizer.RecordAccess(key, hit, 0, 0)
	s.mu.Unlock()

	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	s.metrics.lookup(hit)
	s.emit(expired)
	return response, hit
}

// Set stores response for q. Responses whose TTL is zero are not stored.
// When the store is full, expired entries are removed first and then the
// prioritizer picks the lowest-scored entries to evict.
func (s *Store) Set(q models.Query, response []byte, hints Hints) {
	now := s.now()
	// Classify the same normalized query the key is built from, so that
	// queries sharing a key always share a category.
	canonical := models.Canonical(q)
	md := s.classifier.GenerateMetadata(canonical, now)
	if !md.ExpiresAt.After(now) {
		s.skipped.Add(1)
		s.metrics.skip()
		s.logger.Debug("not caching zero-ttl response", zap.String("category", string(md.Category)))
		return
	}
	for _, tag := range hints.Tags {
		if tag != "" && !md.HasTag(tag) {
			md.Tags = append(md.Tags, tag)
		}
	}

	key := models.CacheKey(q)

	var removed []models.RemovalEvent
	s.mu.Lock()
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.cfg.MaxEntries {
		removed = s.cleanupLocked(now)
	}
	s.seq++
	s.entries[key] = &models.CacheEntry{
		Key:            key,
		Response:       response,
		Metadata:       md,
		Query:          &canonical,
		CreatedAt:      now,
		LastAccessedAt: now,
		Seq:            s.seq,
	}
	if hints.ProcessingTime > 0 || hints.Cost > 0 {
		s.prioritizer.ObserveCompute(key, hints.ProcessingTime, hints.Cost)
	}
	size := len(s.entries)
	s.mu.Unlock()

	s.metrics.size(size)
	s.emit(removed)
}

// Delete removes the entry for q, if any, along with its dependents.
func (s *Store) Delete(q models.Query) bool {
	key := models.CacheKey(q)
	var removed []models.RemovalEvent
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		removed = s.removeLocked(removed, key, e, models.RemovalInvalidated, s.now())
	}
	s.mu.Unlock()
	s.emit(removed)
	return ok
}

// RegisterDependency makes the entry for q depend on the entry for
// dependsOn: whenever the latter leaves the store, for any reason, the
// former is removed too. Removals cascade through chains of dependencies.
// The link is dropped once either side is removed.
func (s *Store) RegisterDependency(q, dependsOn models.Query) {
	key, parent := models.CacheKey(q), models.CacheKey(dependsOn)
	if key == parent {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	link(s.dependents, parent, key)
	link(s.parents, key, parent)
}

// Dependents returns the keys that are removed along with the entry for q.
func (s *Store) Dependents(q models.Query) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	children := s.dependents[models.CacheKey(q)]
	out := make([]string, 0, len(children))
	for k := range children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func link(graph map[string]map[string]struct{}, from, to string) {
	set, ok := graph[from]
	if !ok {
		set = make(map[string]struct{})
		graph[from] = set
	}
	set[to] = struct{}{}
}

// InvalidateByTags removes every entry carrying any of tags and returns the
// number removed, dependents included.
func (s *Store) InvalidateByTags(tags ...string) int {
	if len(tags) == 0 {
		return 0
	}
	now := s.now()
	var removed []models.RemovalEvent

	s.mu.Lock()
	for key, e := range s.entries {
		for _, tag := range tags {
			if e.Metadata.HasTag(tag) {
				removed = s.removeLocked(removed, key, e, models.RemovalInvalidated, now)
				break
			}
		}
	}
	s.mu.Unlock()

	s.logger.Info("invalidated entries by tag", zap.Strings("tags", tags), zap.Int("count", len(removed)))
	s.emit(removed)
	return len(removed)
}

// InvalidateBySubject removes every entry bound to a patient.
func (s *Store) InvalidateBySubject(subjectID string) int {
	if subjectID == "" {
		return 0
	}
	return s.InvalidateByTags("patient:" + subjectID)
}

// Clear removes all entries and all usage statistics.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]*models.CacheEntry)
	s.dependents = make(map[string]map[string]struct{})
	s.parents = make(map[string]map[string]struct{})
	s.prioritizer.ResetStats()
	s.mu.Unlock()

	s.metrics.cleared(n)
	s.logger.Info("cache cleared", zap.Int("count", n))
	return n
}

// Cleanup removes expired entries and, if the store is still at capacity,
// evicts the lowest-priority fraction. It returns the number removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	removed := s.cleanupLocked(s.now())
	s.mu.Unlock()
	s.emit(removed)
	return len(removed)
}

// Sweep removes expired entries and prunes statistics of keys that are no
// longer cached and have not been accessed within StatsRetention.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	removed := s.removeExpiredLocked(now)
	pruned := 0
	if s.cfg.StatsRetention > 0 {
		pruned = s.prioritizer.PruneStats(now.Add(-s.cfg.StatsRetention), func(key string) bool {
			_, ok := s.entries[key]
			return ok
		})
	}
	s.mu.Unlock()

	if len(removed) > 0 || pruned > 0 {
		s.logger.Debug("sweep finished", zap.Int("expired", len(removed)), zap.Int("stats_pruned", pruned))
	}
	s.emit(removed)
	return len(removed)
}

// Len returns the number of entries held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns store-wide counters.
func (s *Store) Stats() models.CacheStats {
	out := models.CacheStats{
		Capacity:    int64(s.cfg.MaxEntries),
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Skipped:     s.skipped.Load(),
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
	}
	if lookups := out.Hits + out.Misses; lookups > 0 {
		out.HitRate = float64(out.Hits) / float64(lookups)
		out.MissRate = float64(out.Misses) / float64(lookups)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out.Entries = int64(len(s.entries))
	if out.Entries == 0 {
		return out
	}
	var accesses int64
	for _, e := range s.entries {
		accesses += e.AccessCount
		if out.OldestEntry.IsZero() || e.CreatedAt.Before(out.OldestEntry) {
			out.OldestEntry = e.CreatedAt
		}
		if e.CreatedAt.After(out.NewestEntry) {
			out.NewestEntry = e.CreatedAt
		}
	}
	out.AvgAccessCount = float64(accesses) / float64(out.Entries)
	out.TopKeys = s.topKeysLocked()
	return out
}

// topKeysLocked returns the most accessed entries, most accessed first and
// ties in insertion order. s.mu must be held.
func (s *Store) topKeysLocked() []models.KeyAccess {
	top := make([]*models.CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		top = append(top, e)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].AccessCount != top[j].AccessCount {
			return top[i].AccessCount > top[j].AccessCount
		}
		return top[i].Seq < top[j].Seq
	})
	if len(top) > topKeysLimit {
		top = top[:topKeysLimit]
	}
	out := make([]models.KeyAccess, len(top))
	for i, e := range top {
		out[i] = models.KeyAccess{Key: e.Key, AccessCount: e.AccessCount}
	}
	return out
}

// Start launches the periodic sweep. It stops when ctx is done or Stop is
// called. Calling Start more than once has no effect.
func (s *Store) Start(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.sweepLoop(ctx)
	})
}

// Stop ends the sweep loop and waits for it to exit. It is safe to call
// more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Store) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep()
			s.snapshot(ctx)
		}
	}
}

// snapshot is only called from the sweep goroutine.
func (s *Store) snapshot(ctx context.Context) {
	if s.sink == nil {
		return
	}
	now := s.now()
	if !s.lastSnapshot.IsZero() && now.Sub(s.lastSnapshot) < s.cfg.SnapshotInterval {
		return
	}
	s.lastSnapshot = now
	snap := models.Snapshot{
		ID:          uuid.NewString(),
		Cache:       s.Stats(),
		Prioritizer: s.prioritizer.GetStatistics(),
		CreatedAt:   now.UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := s.sink.RecordSnapshot(ctx, snap); err != nil {
		s.logger.Warn("record snapshot", zap.Error(err))
	}
}

// cleanupLocked must be called with s.mu held.
func (s *Store) cleanupLocked(now time.Time) []models.RemovalEvent {
	removed := s.removeExpiredLocked(now)
	n := len(s.entries)
	if n < s.cfg.MaxEntries {
		return removed
	}

	cfg := s.prioritizer.Config()
	count := int(math.Ceil(float64(n) * cfg.EvictionFraction))
	if count < 1 {
		count = 1
	}

	candidates := make([]prioritizer.Candidate, 0, n)
	for key, e := range s.entries {
		candidates = append(candidates, prioritizer.Candidate{Key: key, Entry: e})
	}
	for _, v := range s.prioritizer.SelectVictims(candidates, n-count) {
		e, ok := s.entries[v.Key]
		if !ok {
			// Already gone with an earlier victim it depended on.
			continue
		}
		first := len(removed)
		removed = s.removeLocked(removed, v.Key, e, models.RemovalEvicted, now)
		removed[first].Priority = v.Score
		removed[first].Strategy = string(cfg.Strategy)
	}

	s.logger.Debug("evicted entries under capacity pressure",
		zap.Int("evicted", count),
		zap.Int("capacity", s.cfg.MaxEntries),
		zap.String("strategy", string(cfg.Strategy)))
	return removed
}

// removeExpiredLocked must be called with s.mu held.
func (s *Store) removeExpiredLocked(now time.Time) []models.RemovalEvent {
	var removed []models.RemovalEvent
	for key, e := range s.entries {
		if e.Expired(now) {
			removed = s.removeLocked(removed, key, e, models.RemovalExpired, now)
		}
	}
	return removed
}

// removeLocked deletes one entry and its statistics, then every cached
// entry that depends on it. The events are appended to removed, the entry's
// own event first. s.mu must be held.
func (s *Store) removeLocked(removed []models.RemovalEvent, key string, e *models.CacheEntry, reason models.RemovalReason, now time.Time) []models.RemovalEvent {
	delete(s.entries, key)
	s.prioritizer.PurgeStats(key)
	removed = append(removed, models.RemovalEvent{
		Key:       key,
		Category:  e.Metadata.Category,
		Reason:    reason,
		Priority:  e.Metadata.Priority,
		CreatedAt: now.UTC(),
	})

	for parent := range s.parents[key] {
		delete(s.dependents[parent], key)
		if len(s.dependents[parent]) == 0 {
			delete(s.dependents, parent)
		}
	}
	delete(s.parents, key)

	children := s.dependents[key]
	delete(s.dependents, key)
	for child := range children {
		delete(s.parents[child], key)
		if len(s.parents[child]) == 0 {
			delete(s.parents, child)
		}
		if ce, ok := s.entries[child]; ok {
			removed = s.removeLocked(removed, child, ce, models.RemovalDependency, now)
		}
	}
	return removed
}

// emit updates counters and forwards removal events to the sink. It must be
// called without s.mu held.
func (s *Store) emit(events []models.RemovalEvent) {
	if len(events) == 0 {
		return
	}
	runID := uuid.NewString()
	for i := range events {
		events[i].RunID = runID
		switch events[i].Reason {
		case models.RemovalEvicted:
			s.evictions.Add(1)
		case models.RemovalExpired:
			s.expirations.Add(1)
		}
	}
	s.metrics.removed(events)
	s.metrics.size(s.Len())

	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := s.sink.RecordRemovals(ctx, events); err != nil {
		s.logger.Warn("record removals", zap.Error(err), zap.Int("count", len(events)))
	}
}
