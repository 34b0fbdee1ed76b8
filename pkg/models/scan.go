// Package models defines the domain types shared across services, the
// pipeline runner, and the HTTP API.
package models

import (
	"encoding/json"
	"time"
)

// ScanStatus is the lifecycle status of a scan.
type ScanStatus string

// Scan lifecycle states.
const (
	ScanStatusQueued   ScanStatus = "queued"
	ScanStatusRunning  ScanStatus = "running"
	ScanStatusComplete ScanStatus = "complete"
	ScanStatusFailed   ScanStatus = "failed"
	ScanStatusCanceled ScanStatus = "canceled"
)

// IsTerminal reports whether the status is a terminal state.
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case ScanStatusComplete, ScanStatusFailed, ScanStatusCanceled:
		return true
	}
	return false
}

// Valid reports whether the status is a known scan status.
func (s ScanStatus) Valid() bool {
	switch s {
	case ScanStatusQueued, ScanStatusRunning, ScanStatusComplete, ScanStatusFailed, ScanStatusCanceled:
		return true
	}
	return false
}

// Scan is a single token risk scan. The evidence ledger and assessment are
// stored as opaque JSON on the row; typed accessors live on the struct.
type Scan struct {
	ID             string          `json:"scanId"`
	Chain          string          `json:"chain"`
	TokenAddress   string          `json:"tokenAddress"`
	Status         ScanStatus      `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	DurationMs     *int64          `json:"durationMs,omitempty"`
	ScannerVersion string          `json:"scannerVersion"`
	ScoreVersion   string          `json:"scoreVersion"`
	Evidence       json.RawMessage `json:"evidence,omitempty"`
	Assessment     json.RawMessage `json:"assessment,omitempty"`
	Narrative      *string         `json:"narrative,omitempty"`
	ModelID        *string         `json:"modelId,omitempty"`
	Error          *string         `json:"error,omitempty"`
}

// EvidenceLedger decodes the persisted evidence ledger, or returns an empty
// ledger when none has been written yet.
func (s *Scan) EvidenceLedger() (EvidenceLedger, error) {
	var ledger EvidenceLedger
	if len(s.Evidence) == 0 {
		return ledger, nil
	}
	if err := json.Unmarshal(s.Evidence, &ledger); err != nil {
		return EvidenceLedger{}, err
	}
	return ledger, nil
}

// JobStatus is the lifecycle status of a scan job.
type JobStatus string

// Job lifecycle states.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
)

// IsTerminal reports whether the job status is terminal.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusSkipped:
		return true
	}
	return false
}

// ScanJob is one queued execution of a scan. At most one job per scan may be
// pending or running at any time.
type ScanJob struct {
	ID         string     `json:"jobId"`
	ScanID     string     `json:"scanId"`
	Status     JobStatus  `json:"status"`
	Attempt    int        `json:"attempt"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      *string    `json:"error,omitempty"`
}

// EnqueueResult reports the outcome of an idempotent enqueue.
type EnqueueResult struct {
	Enqueued bool      `json:"enqueued"`
	JobID    string    `json:"jobId"`
	Status   JobStatus `json:"jobStatus"`
}
