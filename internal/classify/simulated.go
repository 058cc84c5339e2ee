package classify

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

// SimulatedName identifies the simulated classifier in logs and metrics.
const SimulatedName = "simulated"

// probabilityRange is the interval [Base, Base+Spread) a simulated probability is drawn from.
type probabilityRange struct {
	Base   float64
	Spread float64
}

var defaultRange = probabilityRange{Base: 0.05, Spread: 0.1}

// simulatedRanges favors a benign outcome with a visible tail of pre-cancerous risk.
var simulatedRanges = map[string]probabilityRange{
	"Actinic Keratosis": {Base: 0.05, Spread: 0.2},
	"Benign Keratosis":  {Base: 0.4, Spread: 0.3},
}

// Simulated produces plausible random rankings without running a model.
// It is always ready.
type Simulated struct {
	labels []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated returns a Simulated classifier over labels. A nil rng seeds one randomly.
func NewSimulated(labels []string, rng *rand.Rand) *Simulated {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Simulated{
		labels: append([]string(nil), labels...),
		rng:    rng,
	}
}

func (s *Simulated) Name() string { return SimulatedName }

func (s *Simulated) Ready() bool { return true }

func (s *Simulated) Classify(ctx context.Context, _ []byte) ([]models.Condition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conditions := make([]models.Condition, len(s.labels))
	s.mu.Lock()
	for i, label := range s.labels {
		r, ok := simulatedRanges[label]
		if !ok {
			r = defaultRange
		}
		conditions[i] = models.Condition{
			Name:        label,
			Probability: r.Base + s.rng.Float64()*r.Spread,
		}
	}
	s.mu.Unlock()

	sortConditions(conditions)
	return conditions, nil
}

// sortConditions orders by probability descending, ties broken by name for stable output.
func sortConditions(c []models.Condition) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Probability != c[j].Probability {
			return c[i].Probability > c[j].Probability
		}
		return c[i].Name < c[j].Name
	})
}

var _ models.Classifier = (*Simulated)(nil)
