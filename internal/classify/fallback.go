package classify

import (
	"context"

	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

// Fallback answers with primary while it is ready and with secondary otherwise.
// Errors from primary are returned as-is; there is no retry on secondary.
type Fallback struct {
	primary   models.Classifier
	secondary models.Classifier
}

func NewFallback(primary, secondary models.Classifier) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) active() models.Classifier {
	if f.primary.Ready() {
		return f.primary
	}
	return f.secondary
}

// Name reports which classifier currently answers.
func (f *Fallback) Name() string { return f.active().Name() }

func (f *Fallback) Ready() bool { return f.active().Ready() }

func (f *Fallback) Classify(ctx context.Context, image []byte) ([]models.Condition, error) {
	return f.active().Classify(ctx, image)
}

var _ models.Classifier = (*Fallback)(nil)
