package mock

import (
	"context"

	"github.com/kiranshivaraju/lesionscan/internal/classify"
	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

// Classifier satisfies models.Classifier for testing.
type Classifier struct {
	Name_        string
	NotReady     bool
	ClassifyFunc func(ctx context.Context, image []byte) ([]models.Condition, error)
}

func (m *Classifier) Name() string { return m.Name_ }

func (m *Classifier) Ready() bool { return !m.NotReady }

func (m *Classifier) Classify(ctx context.Context, image []byte) ([]models.Condition, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, image)
	}
	return nil, nil
}

// NewClassifier returns a Classifier answering with a fixed benign ranking.
func NewClassifier() *Classifier {
	return NewFixedClassifier([]models.Condition{
		{Name: "Benign Keratosis", Probability: 0.62},
		{Name: "Actinic Keratosis", Probability: 0.18},
		{Name: "Melanoma", Probability: 0.09},
	})
}

// NewFixedClassifier returns a Classifier that always answers with conditions.
func NewFixedClassifier(conditions []models.Condition) *Classifier {
	return &Classifier{
		Name_: "mock",
		ClassifyFunc: func(_ context.Context, _ []byte) ([]models.Condition, error) {
			return append([]models.Condition(nil), conditions...), nil
		},
	}
}

// NewFailingClassifier returns a Classifier that always returns err.
func NewFailingClassifier(err error) *Classifier {
	return &Classifier{
		Name_: "mock-failing",
		ClassifyFunc: func(_ context.Context, _ []byte) ([]models.Condition, error) {
			return nil, err
		},
	}
}

// NewBlockingClassifier returns a Classifier that blocks until ctx is cancelled.
func NewBlockingClassifier() *Classifier {
	return &Classifier{
		Name_: "mock-blocking",
		ClassifyFunc: func(ctx context.Context, _ []byte) ([]models.Condition, error) {
			<-ctx.Done()
			return nil, classify.ErrInference
		},
	}
}

var _ models.Classifier = (*Classifier)(nil)
