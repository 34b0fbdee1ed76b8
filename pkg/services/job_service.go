package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tokenscope/tokenscope/pkg/models"
)

// enqueueRetries bounds the insert-retry loop used when concurrent enqueues
// race for the scan_jobs_one_live unique index.
const enqueueRetries = 3

// JobService owns the scan_jobs table. The one-at-a-time claim invariant:
// at most one job per scan is pending or running.
type JobService struct {
	db *sql.DB
}

// NewJobService creates a JobService.
func NewJobService(db *sql.DB) *JobService {
	return &JobService{db: db}
}

const jobColumns = `id, scan_id, status, attempt, created_at, started_at, finished_at, error`

// Enqueue inserts a pending job for the scan unless one is already pending
// or running, in which case the existing job is returned. Idempotent. The
// one-live-job invariant is backed by the scan_jobs_one_live partial unique
// index: when two enqueues race past the SELECT, the losing insert hits a
// unique violation and the retry returns the winner's job.
func (s *JobService) Enqueue(ctx context.Context, scanID string) (*models.EnqueueResult, error) {
	var lastErr error
	for attempt := 0; attempt < enqueueRetries; attempt++ {
		result, err := s.tryEnqueue(ctx, scanID)
		if err == nil {
			return result, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to enqueue job after %d attempts: %w", enqueueRetries, lastErr)
}

func (s *JobService) tryEnqueue(ctx context.Context, scanID string) (*models.EnqueueResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		existingID     string
		existingStatus models.JobStatus
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, status FROM scan_jobs
		 WHERE scan_id = $1 AND status IN ($2, $3)
		 ORDER BY created_at LIMIT 1 FOR UPDATE`,
		scanID, models.JobStatusPending, models.JobStatusRunning,
	).Scan(&existingID, &existingStatus)

	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit enqueue: %w", err)
		}
		return &models.EnqueueResult{Enqueued: false, JobID: existingID, Status: existingStatus}, nil
	case errors.Is(err, sql.ErrNoRows):
		// No live job; fall through to insert.
	default:
		return nil, fmt.Errorf("failed to query live jobs: %w", err)
	}

	jobID := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO scan_jobs (id, scan_id, status, attempt, created_at)
		 VALUES ($1, $2, $3, 0, $4)`,
		jobID, scanID, models.JobStatusPending, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit enqueue: %w", err)
	}

	return &models.EnqueueResult{Enqueued: true, JobID: jobID, Status: models.JobStatusPending}, nil
}

// ClaimNext claims the oldest pending job via conditional update. Exactly
// one claimer wins for a given row; losers retry on the next oldest. Returns
// nil when no pending jobs remain.
func (s *JobService) ClaimNext(ctx context.Context) (*models.ScanJob, error) {
	for {
		var jobID string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM scan_jobs WHERE status = $1 ORDER BY created_at LIMIT 1`,
			models.JobStatusPending).Scan(&jobID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query pending jobs: %w", err)
		}

		row := s.db.QueryRowContext(ctx,
			`UPDATE scan_jobs SET status = $1, started_at = $2, attempt = attempt + 1
			 WHERE id = $3 AND status = $4
			 RETURNING `+jobColumns,
			models.JobStatusRunning, time.Now(), jobID, models.JobStatusPending)

		job, err := scanJobRow(row)
		if errors.Is(err, ErrNotFound) {
			// Lost the race for this row; try the next oldest.
			continue
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}
}

// Finalize records the terminal job status.
func (s *JobService) Finalize(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("job status %q is not terminal: %w", status, ErrInvalidInput)
	}

	var errArg any
	if errMsg != "" {
		errArg = errMsg
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_jobs SET status = $1, finished_at = $2, error = $3 WHERE id = $4`,
		status, time.Now(), errArg, jobID)
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// GetJob returns a job by id, or ErrNotFound.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*models.ScanJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scan_jobs WHERE id = $1`, jobID)
	return scanJobRow(row)
}

func scanJobRow(row rowScanner) (*models.ScanJob, error) {
	var (
		job        models.ScanJob
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		errMsg     sql.NullString
	)
	err := row.Scan(&job.ID, &job.ScanID, &job.Status, &job.Attempt,
		&job.CreatedAt, &startedAt, &finishedAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job row: %w", err)
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	return &job, nil
}
