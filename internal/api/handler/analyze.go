package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lesionscan/internal/analysis"
	"github.com/kiranshivaraju/lesionscan/internal/api/response"
	"github.com/kiranshivaraju/lesionscan/internal/upload"
	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

const (
	imageField = "image"

	// multipartOverhead leaves room for boundaries and headers on top of the file limit.
	multipartOverhead = 1 << 20
	formMemory        = 1 << 20

	acceptedMessage = "Image uploaded successfully. Analysis in progress."
)

// JobCreator starts analysis jobs.
type JobCreator interface {
	CreateJob(ctx context.Context, imageRef string) (*models.Job, error)
}

// Uploads stores accepted images.
type Uploads interface {
	Save(filename string, r io.Reader) (*upload.File, error)
	Remove(ref string) error
	MaxBytes() int64
}

type analyzeResponse struct {
	JobID         uuid.UUID `json:"jobId"`
	Status        string    `json:"status"`
	EstimatedTime int       `json:"estimatedTime"`
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /api/analyze.
// The multipart field "image" is validated and stored before a job is created.
func NewAnalyzeHandler(jobs JobCreator, uploads Uploads, debug bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, uploads.MaxBytes()+multipartOverhead)

		file, header, err := formFile(r)
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
		if err != nil {
			response.FromError(w, r, err, debug)
			return
		}
		defer file.Close()

		if header.Size > uploads.MaxBytes() {
			response.FromError(w, r, upload.ErrTooLarge, debug)
			return
		}

		stored, err := uploads.Save(header.Filename, file)
		if err != nil {
			response.FromError(w, r, err, debug)
			return
		}
		slog.Info("image uploaded", "ref", stored.Ref, "original_name", stored.OriginalName, "size", stored.Size)

		job, err := jobs.CreateJob(r.Context(), stored.Ref)
		if err != nil {
			if rmErr := uploads.Remove(stored.Ref); rmErr != nil {
				slog.Warn("failed to remove orphaned upload", "ref", stored.Ref, "error", rmErr)
			}
			response.FromError(w, r, err, debug)
			return
		}

		response.Accepted(w, analyzeResponse{
			JobID:         job.ID,
			Status:        job.Status,
			EstimatedTime: analysis.EstimateQueued,
		}, acceptedMessage)
	}
}

// formFile parses the multipart body and returns the image part.
func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, nil, upload.ErrTooLarge
		}
		return nil, nil, upload.ErrMissingFile
	}
	file, header, err := r.FormFile(imageField)
	if err != nil {
		return nil, nil, upload.ErrMissingFile
	}
	return file, header, nil
}
