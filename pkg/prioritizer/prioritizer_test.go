package prioritizer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/medcache/pkg/models"
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestPrioritizer(t *testing.T, mutate func(*Config)) (*Prioritizer, *fakeClock) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := &fakeClock{t: epoch}
	p, err := New(cfg, WithClock(clock.Now))
	require.NoError(t, err)
	return p, clock
}

func entry(cat models.Category, priority int, created time.Time, tags ...string) *models.CacheEntry {
	return &models.CacheEntry{
		Metadata: models.Metadata{
			Category: cat,
			Priority: priority,
			Tags:     tags,
		},
		CreatedAt:      created,
		LastAccessedAt: created,
	}
}

func TestRecordAccessHitRate(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)

	p.RecordAccess("k", false, 0, 0)
	p.RecordAccess("k", true, 0, 0)
	p.RecordAccess("k", true, 0, 0)
	p.RecordAccess("k", false, 0, 0)

	s, ok := p.Stats("k")
	require.True(t, ok)
	assert.EqualValues(t, 4, s.AccessCount)
	assert.EqualValues(t, 2, s.Misses)
	assert.InDelta(t, 0.5, s.HitRate, 1e-9)
	assert.Equal(t, epoch, s.LastAccessed)
}

func TestRecordAccessHitRateBounded(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		p.RecordAccess("k", rng.Intn(3) > 0, 0, 0)
		s, _ := p.Stats("k")
		require.GreaterOrEqual(t, s.HitRate, 0.0)
		require.LessOrEqual(t, s.HitRate, 1.0)
	}
}

func TestRecordAccessProcessingTimeAndCost(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)

	p.RecordAccess("k", false, 2*time.Second, 0.1)
	p.RecordAccess("k", true, 9*time.Second, 5)
	p.RecordAccess("k", false, 4*time.Second, 0.2)

	s, _ := p.Stats("k")
	assert.Equal(t, 3*time.Second, s.AvgProcessingTime)
	assert.InDelta(t, 0.3, s.EstimatedCost, 1e-9)
	assert.EqualValues(t, 2, s.Computations)
}

func TestRecordAccessDisabled(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.CollectStats = false })

	p.RecordAccess("k", true, 0, 0)
	p.ObserveCompute("k", time.Second, 1)

	_, ok := p.Stats("k")
	assert.False(t, ok)
}

func TestObserveCompute(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)

	p.ObserveCompute("fresh", 1500*time.Millisecond, 0.4)
	s, ok := p.Stats("fresh")
	require.True(t, ok)
	assert.EqualValues(t, 1, s.AccessCount)
	assert.EqualValues(t, 1, s.Misses)
	assert.Equal(t, 1500*time.Millisecond, s.AvgProcessingTime)

	p.RecordAccess("seen", false, 0, 0)
	p.ObserveCompute("seen", 3*time.Second, 0.5)
	s, _ = p.Stats("seen")
	assert.EqualValues(t, 1, s.AccessCount, "compute should not count as another access")
	assert.Equal(t, 3*time.Second, s.AvgProcessingTime)
	assert.InDelta(t, 0.5, s.EstimatedCost, 1e-9)
}

func TestPurgeAndResetStats(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)
	for _, k := range []string{"a", "b", "c"} {
		p.RecordAccess(k, true, 0, 0)
	}

	p.PurgeStats("a", "missing")
	_, ok := p.Stats("a")
	assert.False(t, ok)
	assert.Equal(t, 2, p.GetStatistics().TrackedItems)

	p.ResetStats()
	assert.Zero(t, p.GetStatistics().TrackedItems)
}

func TestPruneStats(t *testing.T) {
	p, clock := newTestPrioritizer(t, nil)
	p.RecordAccess("old-live", false, 0, 0)
	p.RecordAccess("old-orphan", false, 0, 0)
	clock.Advance(2 * time.Hour)
	p.RecordAccess("recent", false, 0, 0)

	removed := p.PruneStats(clock.Now().Add(-time.Hour), func(k string) bool { return k == "old-live" })
	assert.Equal(t, 1, removed)

	_, ok := p.Stats("old-orphan")
	assert.False(t, ok)
	_, ok = p.Stats("old-live")
	assert.True(t, ok)
	_, ok = p.Stats("recent")
	assert.True(t, ok)
}

func TestMedicalContentStrategy(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = StrategyMedicalContent })
	q := models.Query{Text: "x"}

	general := entry(models.CategoryGeneral, 50, epoch)
	assert.Equal(t, 60, p.CalculatePriorityScore(q, general, nil))

	tagged := entry(models.CategoryGeneral, 50, epoch, "evidence:pubmed", "category:general")
	assert.Equal(t, 65, p.CalculatePriorityScore(q, tagged, nil))

	evidence := entry(models.CategoryEvidenceCheck, 40, epoch, "evidence:a", "medical:b", "clinical:c", "medical:d")
	assert.Equal(t, 75, p.CalculatePriorityScore(q, evidence, nil), "tag bonus caps at three tags")

	unranked := entry(models.CategoryUrgent, 50, epoch)
	require.NoError(t, p.UpdateConfig(func() Config {
		c := p.Config()
		c.PriorityCategories = []models.Category{models.CategoryEvidenceCheck}
		return c
	}()))
	assert.Equal(t, 50, p.CalculatePriorityScore(q, unranked, nil))
}

func TestCriticalQueriesStrategy(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = StrategyCriticalQueries })
	e := entry(models.CategoryClinicalAnalysis, 50, epoch)

	assert.Equal(t, 50, p.CalculatePriorityScore(models.Query{Text: "resumen"}, e, nil))
	assert.Equal(t, 65, p.CalculatePriorityScore(models.Query{Text: "Plan de tratamiento"}, e, nil))

	all := models.Query{
		Text:      "diagnóstico diferencial",
		SubjectID: "p-1",
		Context:   &models.QueryContext{Type: models.ContextEMR},
		Options:   models.Options{Priority: "high"},
	}
	assert.Equal(t, 100, p.CalculatePriorityScore(all, e, nil))

	flagged := models.Query{Text: "resumen", Options: models.Options{Context: "critical"}}
	assert.Equal(t, 75, p.CalculatePriorityScore(flagged, e, nil))
}

func TestResourceIntensiveStrategy(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = StrategyResourceIntensive })
	e := entry(models.CategoryGeneral, 50, epoch)
	q := models.Query{Text: "x", Options: models.Options{MaxTokens: 1000}}

	assert.Equal(t, 60, p.CalculatePriorityScore(q, e, nil))

	stats := &models.ItemStats{AvgProcessingTime: 3 * time.Second, EstimatedCost: 0.05}
	assert.Equal(t, 71, p.CalculatePriorityScore(q, e, stats))

	fast := &models.ItemStats{AvgProcessingTime: 900 * time.Millisecond}
	assert.Equal(t, 60, p.CalculatePriorityScore(q, e, fast), "sub-second processing earns nothing")
}

func TestRecencyStrategy(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = StrategyRecencyBased })
	q := models.Query{Text: "x"}

	assert.Equal(t, 50, p.CalculatePriorityScore(q, entry(models.CategoryGeneral, 50, epoch), nil))
	assert.Equal(t, 34, p.CalculatePriorityScore(q, entry(models.CategoryGeneral, 50, epoch.Add(-24*time.Hour)), nil))
	assert.Equal(t, 20, p.CalculatePriorityScore(q, entry(models.CategoryGeneral, 50, epoch.Add(-90*24*time.Hour)), nil))
	assert.Equal(t, 50, p.CalculatePriorityScore(q, entry(models.CategoryGeneral, 50, epoch.Add(time.Hour)), nil))
}

func TestAccessFrequencyStrategy(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = StrategyAccessFrequency })
	q := models.Query{Text: "x"}
	e := entry(models.CategoryGeneral, 50, epoch)

	assert.Equal(t, 76, p.CalculatePriorityScore(q, e, &models.ItemStats{AccessCount: 5, HitRate: 0.8}))

	e.AccessCount = 20
	assert.Equal(t, 75, p.CalculatePriorityScore(q, e, nil), "entry bookkeeping stands in for missing stats")

	assert.Equal(t, 50, p.CalculatePriorityScore(q, nil, nil))
}

func TestHybridStrategy(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)
	q := models.Query{Text: "x"}
	e := entry(models.CategoryGeneral, 10, epoch)

	// content 60, criticality 50, resource 50, recency 50; frequency skipped.
	assert.Equal(t, 54, p.CalculatePriorityScore(q, e, nil))

	// frequency joins with stats: 50+10+20 = 80.
	stats := &models.ItemStats{AccessCount: 5, HitRate: 1}
	want := (60*30.0 + 50*20 + 50*20 + 50*15 + 80*15) / 100
	assert.Equal(t, int(math.Round(want)), p.CalculatePriorityScore(q, e, stats))
}

func TestHybridRenormalizesWeights(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) {
		c.Weights = Weights{Recency: 5}
	})
	old := entry(models.CategoryEvidenceCheck, 90, epoch.Add(-24*time.Hour))
	assert.Equal(t, 34, p.CalculatePriorityScore(models.Query{Text: "x"}, old, nil))

	require.NoError(t, p.UpdateConfig(Config{
		Strategy:         StrategyHybrid,
		Weights:          Weights{Frequency: 1},
		EvictionFraction: 0.2,
	}))
	assert.Equal(t, 50, p.CalculatePriorityScore(models.Query{Text: "x"}, old, nil), "no usable component yields neutral")
}

func TestScoreBounds(t *testing.T) {
	queries := []models.Query{
		{},
		{Text: "diagnóstico urgente", SubjectID: "p", Context: &models.QueryContext{Type: models.ContextEMR}, Options: models.Options{Priority: "high", MaxTokens: 1 << 30}},
		{Text: "x", Options: models.Options{MaxTokens: -500}},
	}
	entries := []*models.CacheEntry{
		nil,
		entry(models.CategoryDevelopment, 0, epoch.Add(-10000*time.Hour)),
		entry(models.CategoryEvidenceCheck, 100, epoch, "evidence:a", "medical:b", "clinical:c"),
		{Metadata: models.Metadata{Category: models.CategoryGeneral, Priority: -40}},
	}
	stats := []*models.ItemStats{
		nil,
		{},
		{AccessCount: 1 << 40, HitRate: 1, AvgProcessingTime: time.Hour, EstimatedCost: 1e9},
	}

	for _, strategy := range Strategies {
		p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = strategy })
		for _, q := range queries {
			for _, e := range entries {
				for _, s := range stats {
					score := p.CalculatePriorityScore(q, e, s)
					assert.GreaterOrEqual(t, score, 0, "strategy %s", strategy)
					assert.LessOrEqual(t, score, 100, "strategy %s", strategy)
				}
			}
		}
	}
}

func TestGetItemsToEvictRespectsTarget(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = StrategyAccessFrequency })

	var candidates []Candidate
	for i := 0; i < 5; i++ {
		e := entry(models.CategoryGeneral, 50, epoch)
		e.AccessCount = int64(4 - i)
		e.Seq = uint64(i)
		candidates = append(candidates, Candidate{Key: fmt.Sprintf("k%d", i), Entry: e})
	}

	assert.Equal(t, []string{"k4", "k3", "k2"}, p.GetItemsToEvict(candidates, 2))
	assert.Nil(t, p.GetItemsToEvict(candidates, 5))
	assert.Nil(t, p.GetItemsToEvict(candidates, 9))
	assert.Len(t, p.GetItemsToEvict(candidates, -1), 5)
	assert.Nil(t, p.GetItemsToEvict(nil, 0))
}

func TestGetItemsToEvictUsesTrackedStats(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = StrategyAccessFrequency })
	for i := 0; i < 10; i++ {
		p.RecordAccess("popular", true, 0, 0)
	}
	candidates := []Candidate{
		{Key: "popular", Entry: &models.CacheEntry{Seq: 1}},
		{Key: "cold", Entry: &models.CacheEntry{Seq: 2}},
	}
	assert.Equal(t, []string{"cold"}, p.GetItemsToEvict(candidates, 1))
}

func TestGetItemsToEvictTieBreak(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = StrategyMedicalContent })

	var candidates []Candidate
	for _, seq := range []uint64{3, 1, 2} {
		e := entry(models.CategoryGeneral, 50, epoch)
		e.Seq = seq
		candidates = append(candidates, Candidate{Key: fmt.Sprintf("s%d", seq), Entry: e})
	}
	candidates = append(candidates,
		Candidate{Key: "b", Entry: entry(models.CategoryGeneral, 50, epoch)},
		Candidate{Key: "a", Entry: entry(models.CategoryGeneral, 50, epoch)},
	)

	assert.Equal(t, []string{"a", "b", "s1", "s2"}, p.GetItemsToEvict(candidates, 1))
}

func TestGetItemsToEvictMalformedKey(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = StrategyCriticalQueries })

	critical := models.CacheKey(models.Query{Text: "diagnóstico", Options: models.Options{Priority: "high"}})
	candidates := []Candidate{
		{Key: critical},
		{Key: "{garbage"},
	}
	assert.Equal(t, []string{"{garbage"}, p.GetItemsToEvict(candidates, 1))
}

func TestHybridEvictsDevelopmentBeforeEvidence(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)

	var candidates []Candidate
	var seq uint64
	add := func(q models.Query, cat models.Category, priority int) string {
		seq++
		key := models.CacheKey(q)
		e := entry(cat, priority, epoch.Add(-time.Hour))
		e.Seq = seq
		e.Query = &q
		candidates = append(candidates, Candidate{Key: key, Entry: e})
		return key
	}

	evidence := []string{
		add(models.Query{Text: "evidencia estatinas"}, models.CategoryEvidenceCheck, 70),
	}
	var dev []string
	for i := 0; i < 10; i++ {
		dev = append(dev, add(models.Query{
			Text:    fmt.Sprintf("consulta %d", i),
			Options: models.Options{Provider: models.ProviderDevelopment},
		}, models.CategoryDevelopment, 20))
	}
	evidence = append(evidence, add(models.Query{Text: "evidencia anticoagulantes"}, models.CategoryEvidenceCheck, 70))

	victims := p.GetItemsToEvict(candidates, 2)
	assert.ElementsMatch(t, dev, victims)
	for _, k := range evidence {
		assert.NotContains(t, victims, k)
	}
}

func TestUpdateConfig(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)
	e := entry(models.CategoryGeneral, 50, epoch.Add(-24*time.Hour))
	q := models.Query{Text: "x"}

	err := p.UpdateConfig(Config{Strategy: "lifo", EvictionFraction: 0.2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Equal(t, StrategyHybrid, p.Config().Strategy)

	cfg := p.Config()
	cfg.Strategy = StrategyRecencyBased
	require.NoError(t, p.UpdateConfig(cfg))
	assert.Equal(t, 34, p.CalculatePriorityScore(q, e, nil))
	assert.Equal(t, "recency-based", p.GetStatistics().Strategy)
}

func TestConfigIsolation(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)
	cfg := p.Config()
	cfg.PriorityCategories[0] = models.CategoryUrgent
	assert.Equal(t, models.CategoryEvidenceCheck, p.Config().PriorityCategories[0])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"unknown strategy", func(c *Config) { c.Strategy = "lru" }, false},
		{"negative weight", func(c *Config) { c.Weights.Recency = -1 }, false},
		{"zero hybrid weights", func(c *Config) { c.Weights = Weights{} }, false},
		{"zero weights non hybrid", func(c *Config) { c.Weights = Weights{}; c.Strategy = StrategyRecencyBased }, true},
		{"zero fraction", func(c *Config) { c.EvictionFraction = 0 }, false},
		{"fraction too large", func(c *Config) { c.EvictionFraction = 0.75 }, false},
		{"half fraction", func(c *Config) { c.EvictionFraction = 0.5 }, true},
		{"unknown category", func(c *Config) { c.PriorityCategories = []models.Category{"cardiology"} }, false},
		{"duplicate category", func(c *Config) {
			c.PriorityCategories = []models.Category{models.CategoryGeneral, models.CategoryGeneral}
		}, false},
		{"no categories", func(c *Config) { c.PriorityCategories = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Strategy: StrategyHybrid})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGetStatistics(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)

	p.RecordAccess("a", false, 2*time.Second, 0.5)
	p.RecordAccess("a", true, 0, 0)
	p.RecordAccess("a", true, 0, 0)
	p.RecordAccess("a", true, 0, 0)
	p.RecordAccess("b", false, 0, 0)

	st := p.GetStatistics()
	assert.Equal(t, 2, st.TrackedItems)
	assert.InDelta(t, 2.5, st.AvgAccessCount, 1e-9)
	assert.InDelta(t, 0.375, st.AvgHitRate, 1e-9)
	assert.Equal(t, time.Second, st.AvgProcessingTime)
	assert.InDelta(t, 1.5, st.EstimatedCostSaved, 1e-9)
	assert.Equal(t, "hybrid", st.Strategy)
}

func TestRecordAccessConcurrent(t *testing.T) {
	p, _ := newTestPrioritizer(t, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				p.RecordAccess("shared", (g+i)%2 == 0, time.Millisecond, 0.001)
				p.Stats("shared")
			}
		}(g)
	}
	wg.Wait()

	s, _ := p.Stats("shared")
	assert.EqualValues(t, 4000, s.AccessCount)
	assert.InDelta(t, 0.5, s.HitRate, 1e-6)
}

func TestZeroPriorityIsNeutral(t *testing.T) {
	p, _ := newTestPrioritizer(t, func(c *Config) { c.Strategy = StrategyCriticalQueries })
	q := models.Query{Text: "resumen"}

	assert.Equal(t, 50, p.CalculatePriorityScore(q, entry(models.CategoryClinicalAnalysis, 0, epoch), nil))
	assert.Equal(t, 50, p.CalculatePriorityScore(q, nil, nil))
	assert.Equal(t, 40, p.CalculatePriorityScore(q, entry("", 40, epoch), nil), "stored priority counts without a category")
}
