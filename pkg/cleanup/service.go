// Package cleanup enforces the scan retention policy in the background.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// ScanPruner deletes terminal scans older than the cutoff.
type ScanPruner interface {
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically deletes complete and failed scans past their retention
// window. Events and jobs cascade with the scan row, so one delete is enough.
// Idempotent and safe to run from multiple processes.
type Service struct {
	scans         ScanPruner
	retentionDays int
	interval      time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service that keeps terminal scans for
// retentionDays and sweeps on the given interval.
func NewService(scans ScanPruner, retentionDays int, interval time.Duration) *Service {
	return &Service{
		scans:         scans,
		retentionDays: retentionDays,
		interval:      interval,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"retention_days", s.retentionDays,
		"interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	count, err := s.scans.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: scan cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted expired scans", "count", count, "cutoff", cutoff)
	}
}
