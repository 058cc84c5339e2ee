package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/lesionscan/internal/analysis"
	"github.com/kiranshivaraju/lesionscan/internal/api/response"
)

// JobReader serves job status and results.
type JobReader interface {
	GetStatus(ctx context.Context, id uuid.UUID) (*analysis.Status, error)
	GetResults(ctx context.Context, id uuid.UUID) (*analysis.Results, error)
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/status/{jobID}.
func NewStatusHandler(jobs JobReader, debug bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := analysis.ParseJobID(chi.URLParam(r, "jobID"))
		if err != nil {
			response.FromError(w, r, err, debug)
			return
		}

		status, err := jobs.GetStatus(r.Context(), id)
		if err != nil {
			response.FromError(w, r, err, debug)
			return
		}
		response.JSON(w, status)
	}
}

// NewResultsHandler returns an http.HandlerFunc for GET /api/results/{jobID}.
func NewResultsHandler(jobs JobReader, debug bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := analysis.ParseJobID(chi.URLParam(r, "jobID"))
		if err != nil {
			response.FromError(w, r, err, debug)
			return
		}

		results, err := jobs.GetResults(r.Context(), id)
		if err != nil {
			response.FromError(w, r, err, debug)
			return
		}
		response.JSON(w, results)
	}
}
