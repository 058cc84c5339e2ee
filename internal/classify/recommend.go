package classify

import (
	"fmt"
	"math"

	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

// Recommendation tiers, from most to least severe.
const (
	RecommendationUrgent       = "URGENT: Please consult a dermatologist immediately. This lesion has high-risk features associated with skin cancer."
	RecommendationConcerning   = "Based on the analysis, this lesion shows some concerning features. Please consult a dermatologist for proper evaluation as soon as possible."
	RecommendationPreCancerous = "This lesion may be pre-cancerous. Recommend a dermatologist visit for evaluation and treatment options."
	RecommendationInconclusive = "The analysis is inconclusive. We recommend consulting a healthcare professional for proper diagnosis."
	RecommendationMonitor      = "The lesion appears to be benign, but monitor for any changes in size, shape, or color. If you notice changes, please consult a healthcare professional."
)

const (
	urgentThreshold     = 0.7
	conclusiveThreshold = 0.5
)

// Recommender maps a top condition and its confidence to guidance text.
type Recommender struct {
	highRisk   map[string]struct{}
	mediumRisk map[string]struct{}
}

// NewRecommender builds a Recommender from the high and medium risk condition names.
func NewRecommender(highRisk, mediumRisk []string) *Recommender {
	return &Recommender{
		highRisk:   toSet(highRisk),
		mediumRisk: toSet(mediumRisk),
	}
}

// Recommend returns the guidance tier for condition at confidence.
// High risk takes precedence when a name appears in both sets.
func (r *Recommender) Recommend(condition string, confidence float64) string {
	if _, ok := r.highRisk[condition]; ok {
		if confidence > urgentThreshold {
			return RecommendationUrgent
		}
		return RecommendationConcerning
	}
	if _, ok := r.mediumRisk[condition]; ok {
		return RecommendationPreCancerous
	}
	if confidence < conclusiveThreshold {
		return RecommendationInconclusive
	}
	return RecommendationMonitor
}

// Diagnose turns a ranked classification into the result stored on a completed job.
// Probabilities are clamped to [0,1], rounded to four decimals and re-sorted so
// the top entry always leads.
func (r *Recommender) Diagnose(conditions []models.Condition) (models.Diagnosis, error) {
	if len(conditions) == 0 {
		return models.Diagnosis{}, fmt.Errorf("%w: empty classification", ErrInference)
	}

	ranked := make([]models.Condition, len(conditions))
	for i, c := range conditions {
		if math.IsNaN(c.Probability) {
			return models.Diagnosis{}, fmt.Errorf("%w: probability for %q is NaN", ErrInference, c.Name)
		}
		ranked[i] = models.Condition{Name: c.Name, Probability: roundTo(clamp01(c.Probability), 4)}
	}
	sortConditions(ranked)

	top := ranked[0]
	return models.Diagnosis{
		Name:            top.Name,
		Confidence:      top.Probability,
		Conditions:      ranked,
		Recommendations: r.Recommend(top.Name, top.Probability),
	}, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
