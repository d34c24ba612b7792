package prioritizer

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/medcache/pkg/models"
)

// Candidate is an entry considered for eviction. Stats may be nil, in which
// case the prioritizer's own statistics for Key are used.
type Candidate struct {
	Key   string
	Entry *models.CacheEntry
	Stats *models.ItemStats
}

// Scored is a candidate key with its computed priority score.
type Scored struct {
	Key   string
	Score int
	seq   uint64
}

// Prioritizer tracks per-key usage statistics and ranks cache entries.
type Prioritizer struct {
	cfg    atomic.Pointer[Config]
	mu     sync.RWMutex
	stats  map[string]*models.ItemStats
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Prioritizer.
type Option func(*Prioritizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Prioritizer) { p.logger = l.Named("prioritizer") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Prioritizer) { p.now = now }
}

// New creates a Prioritizer after validating cfg.
func New(cfg Config, opts ...Option) (*Prioritizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Prioritizer{
		stats:  make(map[string]*models.ItemStats),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cfg.Store(cfg.clone())
	p.logger.Info("prioritizer initialized",
		zap.String("strategy", string(cfg.Strategy)),
		zap.Float64("eviction_fraction", cfg.EvictionFraction))
	return p, nil
}

// Config returns a copy of the active configuration.
func (p *Prioritizer) Config() Config {
	return *p.cfg.Load().clone()
}

// UpdateConfig validates cfg and installs it for subsequent scoring calls.
// An invalid cfg leaves the active configuration untouched.
func (p *Prioritizer) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		p.logger.Warn("rejected config update", zap.Error(err))
		return err
	}
	p.cfg.Store(cfg.clone())
	p.logger.Info("configuration updated",
		zap.String("strategy", string(cfg.Strategy)),
		zap.Float64("eviction_fraction", cfg.EvictionFraction))
	return nil
}

// RecordAccess folds one lookup into the key's statistics. On a miss a
// positive processingTime joins the running average and cost accumulates.
func (p *Prioritizer) RecordAccess(key string, hit bool, processingTime time.Duration, cost float64) {
	if !p.cfg.Load().CollectStats {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordLocked(key, hit, processingTime, cost)
}

// ObserveCompute records the processing time and cost of computing the
// response stored under key. If the key has no statistics yet, the
// computation is recorded as a miss.
func (p *Prioritizer) ObserveCompute(key string, processingTime time.Duration, cost float64) {
	if !p.cfg.Load().CollectStats {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.stats[key]; ok {
		foldCompute(s, processingTime, cost)
		return
	}
	p.recordLocked(key, false, processingTime, cost)
}

func (p *Prioritizer) recordLocked(key string, hit bool, processingTime time.Duration, cost float64) {
	s, ok := p.stats[key]
	if !ok {
		s = &models.ItemStats{}
		p.stats[key] = s
	}
	s.AccessCount++
	s.LastAccessed = p.now()

	n := float64(s.AccessCount)
	h := 0.0
	if hit {
		h = 1
	}
	s.HitRate = math.Max(0, math.Min(1, (s.HitRate*(n-1)+h)/n))

	if !hit {
		s.Misses++
		foldCompute(s, processingTime, cost)
	}
}

func foldCompute(s *models.ItemStats, processingTime time.Duration, cost float64) {
	if processingTime > 0 {
		s.Computations++
		c := float64(s.Computations)
		avg := (float64(s.AvgProcessingTime)*(c-1) + float64(processingTime)) / c
		s.AvgProcessingTime = time.Duration(avg)
	}
	if cost > 0 {
		s.EstimatedCost += cost
	}
}

// Stats returns a copy of the statistics tracked for key.
func (p *Prioritizer) Stats(key string) (models.ItemStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.stats[key]
	if !ok {
		return models.ItemStats{}, false
	}
	return *s, true
}

// PurgeStats deletes the statistics of keys.
func (p *Prioritizer) PurgeStats(keys ...string) {
	if len(keys) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.stats, k)
	}
}

// ResetStats deletes all statistics.
func (p *Prioritizer) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = make(map[string]*models.ItemStats)
}

// PruneStats deletes statistics last touched before cutoff, except for keys
// for which keep returns true. It returns the number of keys removed.
func (p *Prioritizer) PruneStats(cutoff time.Time, keep func(key string) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for k, s := range p.stats {
		if s.LastAccessed.Before(cutoff) && (keep == nil || !keep(k)) {
			delete(p.stats, k)
			removed++
		}
	}
	return removed
}

// CalculatePriorityScore scores an entry with the active strategy. The
// result is in [0,100]; higher means more worth keeping.
func (p *Prioritizer) CalculatePriorityScore(q models.Query, entry *models.CacheEntry, stats *models.ItemStats) int {
	in := scoringInput{
		cfg:   p.cfg.Load(),
		query: q,
		entry: entry,
		stats: stats,
		now:   p.now(),
	}
	return in.score()
}

// SelectVictims scores candidates and returns the len(candidates)-targetCount
// lowest-scored ones, lowest first. Equal scores evict the older insertion
// first, then the smaller key.
func (p *Prioritizer) SelectVictims(candidates []Candidate, targetCount int) []Scored {
	evict := len(candidates) - targetCount
	if evict <= 0 {
		return nil
	}
	if evict > len(candidates) {
		evict = len(candidates)
	}

	cfg := p.cfg.Load()
	now := p.now()
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		in := scoringInput{cfg: cfg, entry: c.Entry, stats: c.Stats, now: now}
		if in.stats == nil {
			if s, ok := p.Stats(c.Key); ok {
				in.stats = &s
			}
		}
		if c.Entry != nil && c.Entry.Query != nil {
			in.query = *c.Entry.Query
		} else {
			in.query = models.ParseKey(c.Key)
		}
		var seq uint64
		if c.Entry != nil {
			seq = c.Entry.Seq
		}
		scored = append(scored, Scored{Key: c.Key, Score: in.score(), seq: seq})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.Key < b.Key
	})

	victims := scored[:evict]
	p.logger.Debug("selected items to evict",
		zap.Int("count", len(victims)),
		zap.String("strategy", string(cfg.Strategy)),
		zap.Int("total_items", len(candidates)),
		zap.Int("target_count", targetCount))
	return victims
}

// GetItemsToEvict returns the keys of the len(candidates)-targetCount
// lowest-scored candidates.
func (p *Prioritizer) GetItemsToEvict(candidates []Candidate, targetCount int) []string {
	victims := p.SelectVictims(candidates, targetCount)
	if len(victims) == 0 {
		return nil
	}
	keys := make([]string, len(victims))
	for i, v := range victims {
		keys[i] = v.Key
	}
	return keys
}

// GetStatistics summarizes the tracked statistics.
func (p *Prioritizer) GetStatistics() models.PrioritizerStats {
	out := models.PrioritizerStats{Strategy: string(p.cfg.Load().Strategy)}

	p.mu.RLock()
	defer p.mu.RUnlock()
	out.TrackedItems = len(p.stats)
	if out.TrackedItems == 0 {
		return out
	}

	var accesses, hitRate, procTime float64
	for _, s := range p.stats {
		accesses += float64(s.AccessCount)
		hitRate += s.HitRate
		procTime += float64(s.AvgProcessingTime)
		hits := math.Round(float64(s.AccessCount) * s.HitRate)
		out.EstimatedCostSaved += hits * s.EstimatedCost
	}
	n := float64(out.TrackedItems)
	out.AvgAccessCount = accesses / n
	out.AvgHitRate = hitRate / n
	out.AvgProcessingTime = time.Duration(procTime / n)
	return out
}
