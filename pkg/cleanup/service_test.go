package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	count   int64
	err     error
}

func (f *fakePruner) DeleteTerminalOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.count, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestSweepUsesRetentionCutoff(t *testing.T) {
	pruner := &fakePruner{count: 3}
	svc := NewService(pruner, 30, time.Hour)

	svc.sweep(context.Background())

	require.Equal(t, 1, pruner.calls())
	want := time.Now().AddDate(0, 0, -30)
	assert.WithinDuration(t, want, pruner.cutoffs[0], 5*time.Second)
}

func TestSweepSurvivesPrunerErrors(t *testing.T) {
	pruner := &fakePruner{err: errors.New("database unavailable")}
	svc := NewService(pruner, 30, time.Hour)

	svc.sweep(context.Background())
	svc.sweep(context.Background())

	assert.Equal(t, 2, pruner.calls())
}

func TestStartSweepsImmediatelyAndOnTicks(t *testing.T) {
	pruner := &fakePruner{}
	svc := NewService(pruner, 7, 10*time.Millisecond)

	svc.Start(context.Background())
	defer svc.Stop()

	deadline := time.After(2 * time.Second)
	for pruner.calls() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 sweeps, got %d", pruner.calls())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStopWaitsForLoopExit(t *testing.T) {
	pruner := &fakePruner{}
	svc := NewService(pruner, 7, time.Hour)

	svc.Start(context.Background())
	svc.Stop()

	calls := pruner.calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, pruner.calls(), "no sweeps after Stop")
}

func TestStartIsIdempotent(t *testing.T) {
	pruner := &fakePruner{}
	svc := NewService(pruner, 7, time.Hour)

	svc.Start(context.Background())
	svc.Start(context.Background())
	svc.Stop()
}
