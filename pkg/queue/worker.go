// Package queue drives scan jobs from the database-backed queue through the
// pipeline runner. One process-local worker exists; HTTP handlers that
// enqueue a job call Trigger without awaiting it, and the worker drains the
// pending queue until empty.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/services"
)

// JobQueue is the claim/finalize surface of the job store.
type JobQueue interface {
	ClaimNext(ctx context.Context) (*models.ScanJob, error)
	Finalize(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error
}

// ScanRunner executes one scan run to a terminal state.
type ScanRunner interface {
	Run(ctx context.Context, scanID string) error
}

// Worker is the process-local job consumer.
type Worker struct {
	jobs   JobQueue
	runner ScanRunner
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	kicked  bool
	wg      sync.WaitGroup
}

// NewWorker creates the worker.
func NewWorker(jobs JobQueue, runner ScanRunner, logger *slog.Logger) *Worker {
	return &Worker{jobs: jobs, runner: runner, logger: logger}
}

// Trigger starts the drain loop unless one is already running. When a loop
// is active the trigger is remembered, so jobs enqueued while the loop winds
// down are not missed.
func (w *Worker) Trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.kicked = true
		return
	}
	w.running = true
	w.wg.Add(1)
	go w.drain()
}

// Wait blocks until the current drain loop (if any) finishes. Used during
// shutdown.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) drain() {
	defer w.wg.Done()
	for {
		w.drainQueue()

		w.mu.Lock()
		if w.kicked {
			w.kicked = false
			w.mu.Unlock()
			continue
		}
		w.running = false
		w.mu.Unlock()
		return
	}
}

// drainQueue claims jobs until the pending queue is empty.
func (w *Worker) drainQueue() {
	ctx := context.Background()
	for {
		job, err := w.jobs.ClaimNext(ctx)
		if err != nil {
			w.logger.Error("failed to claim next job", "error", err)
			return
		}
		if job == nil {
			return
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *models.ScanJob) {
	log := w.logger.With("job_id", job.ID, "scan_id", job.ScanID)
	log.Info("job claimed", "attempt", job.Attempt)

	err := w.runner.Run(ctx, job.ScanID)

	status := models.JobStatusCompleted
	errMsg := ""
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotClaimable):
		// Another worker (or a direct run) owns the scan.
		status = models.JobStatusSkipped
		errMsg = "scan was not claimable"
	default:
		status = models.JobStatusFailed
		errMsg = err.Error()
	}

	if err := w.jobs.Finalize(ctx, job.ID, status, errMsg); err != nil {
		log.Error("failed to finalize job", "status", status, "error", err)
		return
	}
	log.Info("job finished", "status", status)
}
