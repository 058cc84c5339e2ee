package models

import "context"

// Classifier is the capability every lesion classifier must implement.
// Never call a concrete classifier directly from the orchestrator; inject this interface.
type Classifier interface {
	// Classify returns conditions ranked by probability, descending.
	Classify(ctx context.Context, image []byte) ([]Condition, error)
	// Ready reports whether the classifier can serve requests. Safe for concurrent use.
	Ready() bool
	// Name returns the classifier identifier (e.g., "remote", "simulated").
	Name() string
}
