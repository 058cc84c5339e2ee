package classify

import (
	"context"
	"log/slog"

	"github.com/kiranshivaraju/lesionscan/internal/config"
	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

// NewClassifier constructs the classifier chain from config.
// Called once at server startup.
//
// Without a model URL the simulator answers alone. With one, the model server
// is probed once; when the probe fails the simulator takes over for the life of
// the process.
func NewClassifier(ctx context.Context, cfg config.ClassifierConfig) (models.Classifier, error) {
	simulated := NewSimulated(cfg.Labels, nil)
	if cfg.ModelURL == "" {
		slog.Info("no model url configured, using simulated classifier")
		return simulated, nil
	}

	remote, err := NewRemote(ctx, RemoteConfig{
		BaseURL:   cfg.ModelURL,
		ModelName: cfg.ModelName,
		Labels:    cfg.Labels,
		Timeout:   cfg.Timeout,
	})
	if remote == nil {
		return nil, err
	}
	if err != nil {
		slog.Warn("model not ready, falling back to simulated classifier",
			"model_url", cfg.ModelURL, "model", cfg.ModelName, "error", err)
	} else {
		slog.Info("model loaded", "model_url", cfg.ModelURL, "model", cfg.ModelName)
	}
	return NewFallback(remote, simulated), nil
}
