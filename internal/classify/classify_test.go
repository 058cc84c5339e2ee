package classify_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/kiranshivaraju/lesionscan/internal/classify"
	"github.com/kiranshivaraju/lesionscan/internal/classify/mock"
	"github.com/kiranshivaraju/lesionscan/internal/config"
	"github.com/kiranshivaraju/lesionscan/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommend(t *testing.T) {
	r := classify.NewRecommender([]string{"A", "B", "C"}, []string{"M"})

	tests := []struct {
		name       string
		condition  string
		confidence float64
		want       string
	}{
		{"high risk confident", "A", 0.8, classify.RecommendationUrgent},
		{"high risk at threshold", "B", 0.7, classify.RecommendationConcerning},
		{"high risk unsure", "A", 0.5, classify.RecommendationConcerning},
		{"medium risk", "M", 0.95, classify.RecommendationPreCancerous},
		{"medium risk low confidence", "M", 0.1, classify.RecommendationPreCancerous},
		{"other low confidence", "D", 0.3, classify.RecommendationInconclusive},
		{"other at conclusive threshold", "D", 0.5, classify.RecommendationMonitor},
		{"other confident", "D", 0.9, classify.RecommendationMonitor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Recommend(tt.condition, tt.confidence))
		})
	}
}

func TestRecommend_HighRiskWinsOverMedium(t *testing.T) {
	r := classify.NewRecommender([]string{"X"}, []string{"X"})
	assert.Equal(t, classify.RecommendationUrgent, r.Recommend("X", 0.9))
}

func TestDiagnose(t *testing.T) {
	r := classify.NewRecommender(config.DefaultHighRisk, config.DefaultMediumRisk)

	d, err := r.Diagnose([]models.Condition{
		{Name: "Dermatofibroma", Probability: 0.1},
		{Name: "Melanoma", Probability: 0.812345},
		{Name: "Vascular Lesion", Probability: 1.4},
	})
	require.NoError(t, err)

	assert.Equal(t, "Vascular Lesion", d.Name)
	assert.Equal(t, 1.0, d.Confidence)
	require.Len(t, d.Conditions, 3)
	assert.Equal(t, d.Name, d.Conditions[0].Name)
	assert.Equal(t, d.Confidence, d.Conditions[0].Probability)
	assert.InDelta(t, 0.8123, d.Conditions[1].Probability, 1e-9)
	assert.Equal(t, classify.RecommendationMonitor, d.Recommendations)
}

func TestDiagnose_Errors(t *testing.T) {
	r := classify.NewRecommender(nil, nil)

	_, err := r.Diagnose(nil)
	assert.ErrorIs(t, err, classify.ErrInference)
}

func TestSimulated(t *testing.T) {
	s := classify.NewSimulated(config.DefaultLabels, rand.New(rand.NewPCG(1, 2)))

	assert.True(t, s.Ready())
	assert.Equal(t, classify.SimulatedName, s.Name())

	for i := 0; i < 50; i++ {
		conditions, err := s.Classify(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, conditions, len(config.DefaultLabels))

		assert.True(t, sort.SliceIsSorted(conditions, func(a, b int) bool {
			return conditions[a].Probability > conditions[b].Probability
		}))
		for _, c := range conditions {
			assert.GreaterOrEqual(t, c.Probability, 0.0)
			assert.LessOrEqual(t, c.Probability, 1.0)
		}
		// Benign Keratosis is drawn from [0.4, 0.7), above every other range.
		assert.Equal(t, "Benign Keratosis", conditions[0].Name)
	}
}

func TestSimulated_RespectsContext(t *testing.T) {
	s := classify.NewSimulated(config.DefaultLabels, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Classify(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFallback(t *testing.T) {
	primary := &mock.Classifier{Name_: "primary", ClassifyFunc: func(context.Context, []byte) ([]models.Condition, error) {
		return []models.Condition{{Name: "from-primary", Probability: 1}}, nil
	}}
	secondary := mock.NewFixedClassifier([]models.Condition{{Name: "from-secondary", Probability: 1}})

	f := classify.NewFallback(primary, secondary)
	got, err := f.Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "from-primary", got[0].Name)
	assert.Equal(t, "primary", f.Name())

	primary.NotReady = true
	got, err = f.Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "from-secondary", got[0].Name)
	assert.Equal(t, "mock", f.Name())
	assert.True(t, f.Ready())
}

func TestFallback_PrimaryErrorIsNotRetried(t *testing.T) {
	boom := errors.New("boom")
	called := false
	secondary := &mock.Classifier{ClassifyFunc: func(context.Context, []byte) ([]models.Condition, error) {
		called = true
		return nil, nil
	}}

	f := classify.NewFallback(mock.NewFailingClassifier(boom), secondary)
	_, err := f.Classify(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestNewClassifier_NoModelURLUsesSimulator(t *testing.T) {
	c, err := classify.NewClassifier(context.Background(), config.ClassifierConfig{Labels: config.DefaultLabels})
	require.NoError(t, err)
	assert.Equal(t, classify.SimulatedName, c.Name())
	assert.True(t, c.Ready())
}
