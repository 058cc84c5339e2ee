package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

const jobColumns = `id, status, image_ref, diagnosis, confidence, possible_conditions,
	recommendations, failure_reason, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateJob(ctx context.Context, imageRef string) (*models.Job, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, status, image_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 RETURNING `+jobColumns,
		uuid.New(), models.JobStatusPending, imageRef, now)

	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("create job: %w: %w", ErrStorage, err)
	}
	return job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w: %w", ErrStorage, err)
	}
	return job, nil
}

// UpdateJob performs a guarded single-statement update: the row only changes if its
// current status is a legal predecessor of status, so concurrent writers cannot
// regress a job or leave it half-written.
func (s *PostgresStore) UpdateJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) (*models.Job, error) {
	from, err := allowedFrom(status)
	if err != nil {
		return nil, err
	}
	params, err := buildUpdate(status, opts)
	if err != nil {
		return nil, err
	}

	var (
		diagnosis       *string
		confidence      *float64
		conditions      []byte
		recommendations *string
	)
	if d := params.Diagnosis; d != nil {
		diagnosis = &d.Name
		confidence = &d.Confidence
		recommendations = &d.Recommendations
		conditions, err = json.Marshal(d.Conditions)
		if err != nil {
			return nil, fmt.Errorf("encode conditions: %w", err)
		}
	}

	job, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET
		   status = $2,
		   updated_at = $3,
		   diagnosis = $4,
		   confidence = $5,
		   possible_conditions = $6,
		   recommendations = $7,
		   failure_reason = $8
		 WHERE id = $1 AND status = ANY($9)
		 RETURNING `+jobColumns,
		id, status, time.Now().UTC(), diagnosis, confidence, conditions,
		recommendations, params.FailureReason, from))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update job: %w: %w", ErrStorage, err)
	}

	// No row matched: either the job does not exist or it is in the wrong state.
	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w: %w", ErrStorage, err)
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j          models.Job
		conditions []byte
	)
	if err := row.Scan(&j.ID, &j.Status, &j.ImageRef, &j.Diagnosis, &j.Confidence, &conditions,
		&j.Recommendations, &j.FailureReason, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &j.PossibleConditions); err != nil {
			return nil, fmt.Errorf("decode conditions: %w", err)
		}
	}
	return &j, nil
}

var _ Store = (*PostgresStore)(nil)
