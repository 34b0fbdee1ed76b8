package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/services"
)

// memQueue is an in-memory job queue safe for concurrent triggers.
type memQueue struct {
	mu        sync.Mutex
	pending   []*models.ScanJob
	finalized map[string]models.JobStatus
	errors    map[string]string
}

func newMemQueue(scanIDs ...string) *memQueue {
	q := &memQueue{finalized: map[string]models.JobStatus{}, errors: map[string]string{}}
	for i, scanID := range scanIDs {
		q.pending = append(q.pending, &models.ScanJob{
			ID:     "job-" + string(rune('a'+i)),
			ScanID: scanID,
			Status: models.JobStatusPending,
		})
	}
	return q
}

func (q *memQueue) ClaimNext(context.Context) (*models.ScanJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.Status = models.JobStatusRunning
	return job, nil
}

func (q *memQueue) Finalize(_ context.Context, jobID string, status models.JobStatus, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.finalized[jobID] = status
	if errMsg != "" {
		q.errors[jobID] = errMsg
	}
	return nil
}

func (q *memQueue) enqueue(job *models.ScanJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, job)
}

type recordingRunner struct {
	mu   sync.Mutex
	runs []string
	errs map[string]error
}

func (r *recordingRunner) Run(_ context.Context, scanID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, scanID)
	if r.errs != nil {
		return r.errs[scanID]
	}
	return nil
}

func TestWorkerDrainsQueue(t *testing.T) {
	queue := newMemQueue("scan-1", "scan-2", "scan-3")
	runner := &recordingRunner{}
	worker := NewWorker(queue, runner, slog.Default())

	worker.Trigger()
	worker.Wait()

	assert.Equal(t, []string{"scan-1", "scan-2", "scan-3"}, runner.runs)
	assert.Equal(t, models.JobStatusCompleted, queue.finalized["job-a"])
	assert.Equal(t, models.JobStatusCompleted, queue.finalized["job-b"])
	assert.Equal(t, models.JobStatusCompleted, queue.finalized["job-c"])
}

func TestWorkerJobOutcomes(t *testing.T) {
	queue := newMemQueue("scan-ok", "scan-busy", "scan-broken")
	runner := &recordingRunner{errs: map[string]error{
		"scan-busy":   services.ErrNotClaimable,
		"scan-broken": errors.New("pipeline exploded"),
	}}
	worker := NewWorker(queue, runner, slog.Default())

	worker.Trigger()
	worker.Wait()

	assert.Equal(t, models.JobStatusCompleted, queue.finalized["job-a"])
	assert.Equal(t, models.JobStatusSkipped, queue.finalized["job-b"])
	assert.Equal(t, models.JobStatusFailed, queue.finalized["job-c"])
	assert.Equal(t, "pipeline exploded", queue.errors["job-c"])
}

func TestWorkerTriggerWhileRunning(t *testing.T) {
	queue := newMemQueue("scan-1")
	started := make(chan struct{})
	release := make(chan struct{})
	runner := &blockingRunner{started: started, release: release}
	worker := NewWorker(queue, runner, slog.Default())

	worker.Trigger()
	<-started

	// Enqueue while the loop is busy; the re-trigger must not be lost.
	queue.enqueue(&models.ScanJob{ID: "job-late", ScanID: "scan-late", Status: models.JobStatusPending})
	worker.Trigger()
	close(release)
	worker.Wait()

	assert.Equal(t, models.JobStatusCompleted, queue.finalized["job-late"])
}

func TestWorkerConcurrentTriggersRunOneLoop(t *testing.T) {
	queue := newMemQueue("scan-1", "scan-2")
	runner := &recordingRunner{}
	worker := NewWorker(queue, runner, slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Trigger()
		}()
	}
	wg.Wait()
	worker.Wait()

	// Every job processed exactly once.
	require.Len(t, runner.runs, 2)
	assert.ElementsMatch(t, []string{"scan-1", "scan-2"}, runner.runs)
}

type blockingRunner struct {
	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once
}

func (r *blockingRunner) Run(_ context.Context, _ string) error {
	r.startOnce.Do(func() { close(r.started) })
	select {
	case <-r.release:
	case <-time.After(5 * time.Second):
	}
	return nil
}
