// Package analysis drives lesion analysis jobs from upload to diagnosis.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lesionscan/internal/cache"
	"github.com/kiranshivaraju/lesionscan/internal/classify"
	"github.com/kiranshivaraju/lesionscan/internal/imaging"
	"github.com/kiranshivaraju/lesionscan/internal/metrics"
	"github.com/kiranshivaraju/lesionscan/internal/store"
	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

// Estimated seconds until a job finishes. Static hints, not measurements.
const (
	EstimateQueued    = 5
	EstimateRemote    = 10
	EstimateSimulated = 5
)

const (
	statusTTL         = 30 * time.Minute
	timedOutReason    = "job timed out"
	maxReasonLength   = 1000
	panicReasonPrefix = "panic: "

	canonicalUUIDLength = 36
)

// ErrInvalidJobID is returned for job ids that are not RFC 4122 UUIDs.
var ErrInvalidJobID = errors.New("invalid job ID")

// ParseJobID parses a version 1 to 5 UUID in canonical hyphenated form.
func ParseJobID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: job ID is required", ErrInvalidJobID)
	}
	if len(raw) != canonicalUUIDLength {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidJobID, raw)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id.Variant() != uuid.RFC4122 || id.Version() < 1 || id.Version() > 5 {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidJobID, raw)
	}
	return id, nil
}

// ImageLoader reads a stored upload by the reference saved on the job.
type ImageLoader interface {
	Read(ref string) ([]byte, error)
}

// Preprocessor prepares raw uploads for classification.
type Preprocessor interface {
	DefaultOptions() imaging.Options
	Process(data []byte, opts imaging.Options) ([]byte, error)
}

// Status is the polling view of a job.
type Status struct {
	JobID         uuid.UUID `json:"jobId"`
	Status        string    `json:"status"`
	EstimatedTime *int      `json:"estimatedTime,omitempty"`
	FailureReason *string   `json:"failureReason,omitempty"`
}

// Results carries the diagnosis of a completed job. For any other status only
// JobID, Status and CreatedAt are set.
type Results struct {
	JobID              uuid.UUID          `json:"jobId"`
	Status             string             `json:"status"`
	Diagnosis          *string            `json:"diagnosis,omitempty"`
	Confidence         *float64           `json:"confidence,omitempty"`
	PossibleConditions []models.Condition `json:"possibleConditions,omitempty"`
	Recommendations    *string            `json:"recommendations,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	ProcessedAt        *time.Time         `json:"processedAt,omitempty"`
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Store        store.Store
	Cache        cache.Cache
	Images       ImageLoader
	Preprocessor Preprocessor
	Classifier   models.Classifier
	Recommender  *classify.Recommender
	// Metrics defaults to a private registry when nil.
	Metrics *metrics.Metrics
	// JobTimeout bounds advancement of a single job. Zero disables it.
	JobTimeout time.Duration
}

// Service creates jobs and advances each one in its own goroutine.
type Service struct {
	store       store.Store
	cache       cache.Cache
	images      ImageLoader
	pre         Preprocessor
	classifier  models.Classifier
	recommender *classify.Recommender
	metrics     *metrics.Metrics
	timeout     time.Duration

	wg sync.WaitGroup
}

func NewService(d Deps) *Service {
	c := d.Cache
	if c == nil {
		c = cache.Noop{}
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		store:       d.Store,
		cache:       c,
		images:      d.Images,
		pre:         d.Preprocessor,
		classifier:  d.Classifier,
		recommender: d.Recommender,
		metrics:     m,
		timeout:     d.JobTimeout,
	}
}

// CreateJob records a pending job for imageRef and starts advancing it in the
// background. It returns as soon as the job is persisted.
func (s *Service) CreateJob(ctx context.Context, imageRef string) (*models.Job, error) {
	if imageRef == "" {
		return nil, fmt.Errorf("create job: image reference is required")
	}

	job, err := s.store.CreateJob(ctx, imageRef)
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	s.mirror(ctx, job.ID, models.JobStatusPending)
	s.metrics.JobCreated()
	slog.Info("job created", "job_id", job.ID, "image_ref", imageRef)

	s.wg.Add(1)
	go s.advance(job.ID, job.ImageRef)

	return job, nil
}

// GetStatus returns the job's status, with an estimate only while processing.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (*Status, error) {
	// Completed is terminal and carries nothing beyond the status.
	if cached, ok, err := s.cache.GetJobStatus(ctx, id); err == nil && ok && cached == models.JobStatusCompleted {
		return &Status{JobID: id, Status: cached}, nil
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	st := &Status{JobID: job.ID, Status: job.Status}
	switch job.Status {
	case models.JobStatusProcessing:
		est := EstimateSimulated
		if s.classifier.Name() == classify.RemoteName {
			est = EstimateRemote
		}
		st.EstimatedTime = &est
	case models.JobStatusFailed:
		st.FailureReason = job.FailureReason
	}
	return st, nil
}

// GetResults returns the full diagnosis for completed jobs and a status-only
// view otherwise.
func (s *Service) GetResults(ctx context.Context, id uuid.UUID) (*Results, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &Results{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}
	if job.Status != models.JobStatusCompleted {
		return res, nil
	}

	processedAt := job.UpdatedAt
	res.Diagnosis = job.Diagnosis
	res.Confidence = job.Confidence
	res.PossibleConditions = job.PossibleConditions
	res.Recommendations = job.Recommendations
	res.ProcessedAt = &processedAt
	return res, nil
}

// Wait blocks until every in-flight job has reached a terminal state or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// advance moves one job through processing to completed or failed.
// It recovers from panics and never leaves a started job in processing.
func (s *Service) advance(jobID uuid.UUID, imageRef string) {
	defer s.wg.Done()
	ctx := context.Background()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic advancing job", "error", r, "job_id", jobID, "stack", string(debug.Stack()))
			s.fail(ctx, jobID, started, fmt.Sprintf("%s%v", panicReasonPrefix, r))
		}
	}()

	if _, err := s.store.UpdateJob(ctx, jobID, models.JobStatusProcessing); err != nil {
		slog.Error("failed to start job", "job_id", jobID, "error", err)
		return
	}
	s.mirror(ctx, jobID, models.JobStatusProcessing)
	slog.Info("job processing", "job_id", jobID, "status", models.JobStatusProcessing)

	jobCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	diagnosis, err := s.analyze(jobCtx, imageRef)
	if err != nil {
		reason := err.Error()
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			reason = timedOutReason
		}
		s.fail(ctx, jobID, started, reason)
		return
	}

	if _, err := s.store.UpdateJob(ctx, jobID, models.JobStatusCompleted, store.WithDiagnosis(diagnosis)); err != nil {
		slog.Error("failed to store job result", "job_id", jobID, "error", err)
		s.fail(ctx, jobID, started, fmt.Sprintf("storing result: %v", err))
		return
	}
	s.mirror(ctx, jobID, models.JobStatusCompleted)
	s.metrics.JobFinished(models.JobStatusCompleted, time.Since(started))
	slog.Info("job completed", "job_id", jobID, "status", models.JobStatusCompleted,
		"diagnosis", diagnosis.Name, "confidence", diagnosis.Confidence,
		"duration_ms", time.Since(started).Milliseconds())
}

// analyze runs load, preprocess and classify in order.
func (s *Service) analyze(ctx context.Context, imageRef string) (models.Diagnosis, error) {
	raw, err := s.images.Read(imageRef)
	if err != nil {
		return models.Diagnosis{}, fmt.Errorf("loading image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return models.Diagnosis{}, err
	}

	processed, err := s.pre.Process(raw, s.pre.DefaultOptions())
	if err != nil {
		return models.Diagnosis{}, fmt.Errorf("preprocessing image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return models.Diagnosis{}, err
	}

	name := s.classifier.Name()
	conditions, err := s.classifier.Classify(ctx, processed)
	if err != nil {
		s.metrics.Classified(name, metrics.OutcomeError)
		return models.Diagnosis{}, fmt.Errorf("classifying image: %w", err)
	}
	s.metrics.Classified(name, metrics.OutcomeSuccess)

	diagnosis, err := s.recommender.Diagnose(conditions)
	if err != nil {
		return models.Diagnosis{}, fmt.Errorf("building diagnosis: %w", err)
	}
	return diagnosis, nil
}

func (s *Service) fail(ctx context.Context, jobID uuid.UUID, started time.Time, reason string) {
	reason = truncateString(reason, maxReasonLength)
	if _, err := s.store.UpdateJob(ctx, jobID, models.JobStatusFailed, store.WithFailureReason(reason)); err != nil {
		slog.Error("failed to mark job failed", "job_id", jobID, "reason", reason, "error", err)
		return
	}
	s.mirror(ctx, jobID, models.JobStatusFailed)
	s.metrics.JobFinished(models.JobStatusFailed, time.Since(started))
	slog.Warn("job failed", "job_id", jobID, "status", models.JobStatusFailed, "error", reason)
}

// mirror copies a status into the cache. The store stays authoritative, so
// cache errors are only logged.
func (s *Service) mirror(ctx context.Context, jobID uuid.UUID, status string) {
	if err := s.cache.SetJobStatus(ctx, jobID, status, statusTTL); err != nil {
		slog.Debug("job status cache write failed", "job_id", jobID, "error", err)
	}
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
