package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrIncompleteResult  = errors.New("incomplete job result")
	ErrStorage           = errors.New("storage unavailable")
)

// Store is the data access interface. All job persistence goes through here.
// Implementations must be safe for concurrent use and apply each UpdateJob atomically.
type Store interface {
	Ping(ctx context.Context) error

	// CreateJob allocates a pending job for imageRef with a fresh id.
	CreateJob(ctx context.Context, imageRef string) (*models.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// UpdateJob moves the job to status, applying opts in the same write,
	// and returns the job as stored afterwards.
	UpdateJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) (*models.Job, error)
}

// validTransitions maps a target status to the statuses it may be entered from.
var validTransitions = map[string][]string{
	models.JobStatusProcessing: {models.JobStatusPending},
	models.JobStatusCompleted:  {models.JobStatusProcessing},
	models.JobStatusFailed:     {models.JobStatusProcessing},
}

// allowedFrom returns the statuses a job must be in to move to status.
func allowedFrom(status string) ([]string, error) {
	from, ok := validTransitions[status]
	if !ok {
		return nil, fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, status)
	}
	return from, nil
}

func canTransition(from, to string) bool {
	for _, s := range validTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

type jobUpdateParams struct {
	Diagnosis     *models.Diagnosis
	FailureReason *string
}

type JobUpdateOption func(*jobUpdateParams)

// WithDiagnosis attaches the classification result. Required for completed.
func WithDiagnosis(d models.Diagnosis) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Diagnosis = &d
	}
}

// WithFailureReason records why the job failed. Required for failed.
func WithFailureReason(reason string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.FailureReason = &reason
	}
}

// buildUpdate applies opts and checks that the payload matches the target status.
func buildUpdate(status string, opts []JobUpdateOption) (*jobUpdateParams, error) {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	switch status {
	case models.JobStatusCompleted:
		if params.Diagnosis == nil || len(params.Diagnosis.Conditions) == 0 {
			return nil, fmt.Errorf("%w: completed job requires a diagnosis", ErrIncompleteResult)
		}
		params.FailureReason = nil
	case models.JobStatusFailed:
		if params.FailureReason == nil || *params.FailureReason == "" {
			return nil, fmt.Errorf("%w: failed job requires a reason", ErrIncompleteResult)
		}
		params.Diagnosis = nil
	default:
		params.Diagnosis = nil
		params.FailureReason = nil
	}
	return params, nil
}
