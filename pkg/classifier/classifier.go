package classifier

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pario-ai/medcache/pkg/models"
)

const (
	basePriority = 50
	maxTermTags  = 5
	minTermRunes = 4
)

// Config holds the base TTL per category.
type Config struct {
	BaseTTL map[models.Category]time.Duration
}

// DefaultConfig returns the canonical base TTL table.
func DefaultConfig() Config {
	return Config{
		BaseTTL: map[models.Category]time.Duration{
			models.CategoryClinicalAnalysis: 2 * time.Hour,
			models.CategoryEvidenceCheck:    7 * 24 * time.Hour,
			models.CategoryPatientHistory:   12 * time.Hour,
			models.CategoryGeneral:          6 * time.Hour,
			models.CategoryDevelopment:      5 * time.Minute,
			models.CategoryUrgent:           0,
		},
	}
}

// keywordRule pairs a category with the substrings that select it.
type keywordRule struct {
	category models.Category
	keywords []string
}

// keywordRules are scanned in order; the first category with a match wins.
var keywordRules = []keywordRule{
	{models.CategoryClinicalAnalysis, []string{"analizar", "análisis", "diagnóstico", "diagnóstica", "evaluación"}},
	{models.CategoryEvidenceCheck, []string{"evidencia", "estudio", "investigación", "bibliografía", "paper"}},
	{models.CategoryPatientHistory, []string{"historia", "historial", "antecedentes", "evolución", "paciente"}},
	{models.CategoryUrgent, []string{"urgente", "inmediato", "emergencia", "crítico", "grave"}},
	{models.CategoryDevelopment, []string{"prueba", "test", "debug", "desarrollo"}},
}

// Classifier derives cache metadata from queries. It is immutable and safe
// for concurrent use.
type Classifier struct {
	baseTTL map[models.Category]time.Duration
}

// New creates a Classifier. Categories missing from cfg fall back to the
// default table; negative TTLs are treated as zero.
func New(cfg Config) *Classifier {
	ttl := DefaultConfig().BaseTTL
	for cat, d := range cfg.BaseTTL {
		if d < 0 {
			d = 0
		}
		ttl[cat] = d
	}
	return &Classifier{baseTTL: ttl}
}

// BaseTTL returns the unadjusted TTL for a category.
func (c *Classifier) BaseTTL(cat models.Category) time.Duration {
	return c.baseTTL[cat]
}

func blank(q models.Query) bool {
	return strings.TrimSpace(q.Text) == ""
}

// Classify resolves the query's category.
func (c *Classifier) Classify(q models.Query) models.Category {
	if blank(q) {
		return models.CategoryGeneral
	}
	if q.Options.Provider == models.ProviderDevelopment {
		return models.CategoryDevelopment
	}

	text := strings.ToLower(q.Text)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category
			}
		}
	}

	if len(q.Notes) > 0 {
		return models.CategoryClinicalAnalysis
	}
	if q.IsEMR() {
		return models.CategoryPatientHistory
	}
	return models.CategoryGeneral
}

// ComputeTTL returns the adjusted time-to-live for q, rounded to the
// nearest millisecond.
func (c *Classifier) ComputeTTL(q models.Query) time.Duration {
	if blank(q) {
		return c.baseTTL[models.CategoryGeneral]
	}

	ttl := float64(c.baseTTL[c.Classify(q)])
	if q.Options.MaxTokens > 1000 {
		ttl *= 1.5
	}
	if q.IsEMR() {
		ttl *= 0.8
	}
	if !q.HasSubject() {
		ttl *= 1.3
	}

	ms := math.Round(ttl / float64(time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

// GenerateTags returns the ordered tag set for q.
func (c *Classifier) GenerateTags(q models.Query) []string {
	cat := c.Classify(q)
	tags := []string{"category:" + string(cat)}
	if blank(q) {
		return tags
	}

	if q.HasSubject() {
		tags = append(tags, "patient:"+q.SubjectID)
	}
	if q.Options.Provider != "" {
		tags = append(tags, "provider:"+q.Options.Provider)
	}
	if q.Options.Language != "" {
		tags = append(tags, "lang:"+q.Options.Language)
	}
	for _, term := range keyTerms(q.Text) {
		tags = append(tags, "term:"+term)
	}
	return tags
}

// ComputePriority returns the initial priority score in [0,100].
func (c *Classifier) ComputePriority(q models.Query) int {
	if blank(q) {
		return basePriority
	}

	priority := float64(basePriority)
	switch c.Classify(q) {
	case models.CategoryEvidenceCheck:
		priority += 20
	case models.CategoryDevelopment:
		priority -= 30
	}
	if q.Options.MaxTokens > 0 {
		priority += math.Min(20, float64(q.Options.MaxTokens)/100)
	}
	if q.IsEMR() {
		priority += 10
	}
	if n := len(q.Notes); n > 0 {
		priority += math.Min(15, float64(3*n))
	}
	return Clamp(priority)
}

// GenerateMetadata composes category, TTL, tags and priority into the
// metadata stored with a new entry created at now.
func (c *Classifier) GenerateMetadata(q models.Query, now time.Time) models.Metadata {
	return models.Metadata{
		Category:  c.Classify(q),
		Tags:      c.GenerateTags(q),
		SubjectID: q.SubjectID,
		ExpiresAt: now.Add(c.ComputeTTL(q)),
		Priority:  c.ComputePriority(q),
	}
}

// Clamp rounds score and bounds it to [0,100].
func Clamp(score float64) int {
	if math.IsNaN(score) {
		return basePriority
	}
	return int(math.Max(0, math.Min(100, math.Round(score))))
}

// keyTerms returns up to maxTermTags of the most frequent content words in
// text. Ties keep first-seen order.
func keyTerms(text string) []string {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, strings.ToLower(text))

	counts := make(map[string]int)
	var order []string
	for _, word := range strings.Fields(normalized) {
		if utf8.RuneCountInString(word) < minTermRunes || stopwords[word] {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxTermTags {
		order = order[:maxTermTags]
	}
	return order
}
