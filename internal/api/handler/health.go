package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/lesionscan/internal/api/response"
)

const healthCheckTimeout = 2 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type healthResponse struct {
	Status      string            `json:"status"`
	Environment string            `json:"environment"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services,omitempty"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /health. It always
// answers 200; failing checks are reported as degraded under services.
func NewHealthHandler(environment string, checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		var services map[string]string
		if len(checks) > 0 {
			services = make(map[string]string, len(checks))
			for name, check := range checks {
				services[name] = "ok"
				if err := check(ctx); err != nil {
					services[name] = "degraded"
				}
			}
		}

		response.Raw(w, http.StatusOK, healthResponse{
			Status:      "ok",
			Environment: environment,
			Timestamp:   time.Now().UTC(),
			Services:    services,
		})
	}
}
