package prioritizer

import (
	"math"
	"strings"
	"time"

	"github.com/pario-ai/medcache/pkg/classifier"
	"github.com/pario-ai/medcache/pkg/models"
)

const neutralScore = 50

// medicalTagMarkers select tags that earn the medical-content bonus.
var medicalTagMarkers = []string{"evidence:", "medical:", "clinical:"}

// criticalTerms mark diagnostic, treatment or urgency queries.
var criticalTerms = []string{"diagnos", "tratamiento", "urgente", "crítico", "treatment", "urgent", "critical"}

// scoringInput is everything a strategy may look at. entry and stats may be nil.
type scoringInput struct {
	cfg   *Config
	query models.Query
	entry *models.CacheEntry
	stats *models.ItemStats
	now   time.Time
}

// base is the entry's stored priority. A zero priority counts as unset.
func (in scoringInput) base() float64 {
	if in.entry == nil || in.entry.Metadata.Priority == 0 {
		return neutralScore
	}
	return float64(in.entry.Metadata.Priority)
}

func (in scoringInput) score() int {
	base := in.base()
	var s float64
	switch in.cfg.Strategy {
	case StrategyMedicalContent:
		s = in.medicalContent(base)
	case StrategyCriticalQueries:
		s = in.criticalQueries(base)
	case StrategyResourceIntensive:
		s = in.resourceIntensive(base)
	case StrategyRecencyBased:
		s = in.recency(base)
	case StrategyAccessFrequency:
		s = in.accessFrequency(base)
	default:
		s = in.hybrid()
	}
	return classifier.Clamp(s)
}

// medicalContent rewards categories ranked high in PriorityCategories and
// medically tagged entries.
func (in scoringInput) medicalContent(base float64) float64 {
	score := base
	if in.entry == nil {
		return score
	}

	cats := in.cfg.PriorityCategories
	for rank, cat := range cats {
		if cat == in.entry.Metadata.Category {
			score += 20 * (1 - float64(rank)/float64(len(cats)))
			break
		}
	}

	medical := 0
	for _, tag := range in.entry.Metadata.Tags {
		for _, marker := range medicalTagMarkers {
			if strings.Contains(tag, marker) {
				medical++
				break
			}
		}
	}
	score += math.Min(15, float64(5*medical))
	return score
}

// criticalQueries rewards explicitly critical, clinically decisive and
// patient-bound record queries.
func (in scoringInput) criticalQueries(base float64) float64 {
	score := base
	if in.query.IsCritical() {
		score += 25
	}
	text := strings.ToLower(in.query.Text)
	for _, term := range criticalTerms {
		if strings.Contains(text, term) {
			score += 15
			break
		}
	}
	if in.query.HasSubject() && in.query.IsEMR() {
		score += 10
	}
	return score
}

// resourceIntensive rewards entries that are expensive to recompute.
func (in scoringInput) resourceIntensive(base float64) float64 {
	score := base
	if mt := in.query.Options.MaxTokens; mt > 0 {
		score += math.Min(25, float64(mt)/100)
	}
	if in.stats == nil {
		return score
	}
	if in.stats.AvgProcessingTime > time.Second {
		ms := float64(in.stats.AvgProcessingTime) / float64(time.Millisecond)
		score += math.Min(20, ms/500)
	}
	if in.stats.EstimatedCost > 0 {
		score += math.Min(20, in.stats.EstimatedCost*100)
	}
	return score
}

// recency subtracts a logarithmic age penalty of at most 30 points.
func (in scoringInput) recency(base float64) float64 {
	if in.entry == nil {
		return base
	}
	age := in.now.Sub(in.entry.CreatedAt)
	if age < 0 {
		age = 0
	}
	penalty := math.Min(30, math.Log1p(age.Hours())*5)
	return base - penalty
}

// accessFrequency rewards frequently and successfully read entries. Without
// stats it falls back to the entry's own access count.
func (in scoringInput) accessFrequency(base float64) float64 {
	var count, hitRate float64
	switch {
	case in.stats != nil:
		count, hitRate = float64(in.stats.AccessCount), in.stats.HitRate
	case in.entry != nil:
		count = float64(in.entry.AccessCount)
	default:
		return base
	}
	return base + math.Min(25, 2*count) + 20*hitRate
}

// hybrid is the weighted mean of every component scored from a neutral
// base. Components with zero weight, and frequency without stats, are left
// out and the remaining weights re-normalized.
func (in scoringInput) hybrid() float64 {
	w := in.cfg.Weights
	var total, sum float64
	add := func(weight, score float64) {
		if weight > 0 {
			sum += weight * score
			total += weight
		}
	}

	add(w.Content, in.medicalContent(neutralScore))
	add(w.Criticality, in.criticalQueries(neutralScore))
	add(w.Resource, in.resourceIntensive(neutralScore))
	add(w.Recency, in.recency(neutralScore))
	if in.stats != nil {
		add(w.Frequency, in.accessFrequency(neutralScore))
	}

	if total == 0 {
		return neutralScore
	}
	return sum / total
}
