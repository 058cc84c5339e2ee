// Package models contains shared data models used across the lesionscan codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// IsTerminal reports whether no further transition is possible from status.
func IsTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Job tracks one image-analysis request. The API returns its ID on POST /api/analyze;
// the client polls GET /api/status/{jobID} and GET /api/results/{jobID}.
//
// Result fields are populated only when Status is completed. FailureReason is
// populated only when Status is failed.
type Job struct {
	ID                 uuid.UUID   `db:"id"                  json:"id"`
	Status             string      `db:"status"              json:"status"`
	ImageRef           string      `db:"image_ref"           json:"image_ref"`
	Diagnosis          *string     `db:"diagnosis"           json:"diagnosis,omitempty"`
	Confidence         *float64    `db:"confidence"          json:"confidence,omitempty"`
	PossibleConditions []Condition `db:"possible_conditions" json:"possible_conditions,omitempty"`
	Recommendations    *string     `db:"recommendations"     json:"recommendations,omitempty"`
	FailureReason      *string     `db:"failure_reason"      json:"failure_reason,omitempty"`
	CreatedAt          time.Time   `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"          json:"updated_at"`
}

// Condition is one entry of a ranked classification.
type Condition struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// Diagnosis is the full result written to a job on completion.
// Conditions is sorted by probability, descending; Name and Confidence mirror its first entry.
type Diagnosis struct {
	Name            string
	Confidence      float64
	Conditions      []Condition
	Recommendations string
}
