package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/version"
)

// ScanService owns the scans table. The scan row is the consistency anchor:
// status transitions are compare-and-swap on the current status.
type ScanService struct {
	db *sql.DB
}

// NewScanService creates a ScanService.
func NewScanService(db *sql.DB) *ScanService {
	return &ScanService{db: db}
}

const scanColumns = `id, chain, token_address, status, created_at, duration_ms,
	scanner_version, score_version, evidence, assessment, narrative, model_id, error`

// CreateScan inserts a new queued scan for the lowercased token address.
func (s *ScanService) CreateScan(ctx context.Context, chain, tokenAddress string) (*models.Scan, error) {
	scan := &models.Scan{
		ID:             uuid.NewString(),
		Chain:          chain,
		TokenAddress:   tokenAddress,
		Status:         models.ScanStatusQueued,
		CreatedAt:      time.Now(),
		ScannerVersion: version.Scanner,
		ScoreVersion:   version.Score,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (id, chain, token_address, status, created_at, scanner_version, score_version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		scan.ID, scan.Chain, scan.TokenAddress, scan.Status, scan.CreatedAt,
		scan.ScannerVersion, scan.ScoreVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert scan: %w", err)
	}
	return scan, nil
}

// GetScan returns the full scan row, or ErrNotFound.
func (s *ScanService) GetScan(ctx context.Context, id string) (*models.Scan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE id = $1`, id)
	return scanScanRow(row)
}

// FindRecentComplete returns the most recent complete scan for the pair, or
// ErrNotFound when none exists.
func (s *ScanService) FindRecentComplete(ctx context.Context, chain, tokenAddress string) (*models.Scan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scanColumns+` FROM scans
		 WHERE chain = $1 AND token_address = $2 AND status = $3
		 ORDER BY created_at DESC LIMIT 1`,
		chain, tokenAddress, models.ScanStatusComplete)
	return scanScanRow(row)
}

// Claim transitions queued → running. Exactly one caller wins; losers get
// ErrNotClaimable.
func (s *ScanService) Claim(ctx context.Context, id string) (*models.Scan, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE scans SET status = $1 WHERE id = $2 AND status = $3
		 RETURNING `+scanColumns,
		models.ScanStatusRunning, id, models.ScanStatusQueued)
	scan, err := scanScanRow(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotClaimable
	}
	return scan, err
}

// Complete persists the terminal complete state with the full ledger and
// assessment. The compare-and-swap on running guards against double writes.
// An empty modelID is stored as NULL; it marks a fallback assessment that no
// model produced.
func (s *ScanService) Complete(ctx context.Context, id string, durationMs int64,
	evidence, assessment json.RawMessage, narrative, modelID string) error {

	var modelArg any
	if modelID != "" {
		modelArg = modelID
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scans SET status = $1, duration_ms = $2, evidence = $3,
		 assessment = $4, narrative = $5, model_id = $6
		 WHERE id = $7 AND status = $8`,
		models.ScanStatusComplete, durationMs, evidence, assessment,
		narrative, modelArg, id, models.ScanStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete scan: %w", err)
	}
	return requireOneRow(res, id)
}

// Fail persists the terminal failed state with the partial ledger for
// postmortem. Must be committed before run.failed is emitted.
func (s *ScanService) Fail(ctx context.Context, id string, durationMs int64,
	evidence json.RawMessage, errMsg string) error {

	res, err := s.db.ExecContext(ctx,
		`UPDATE scans SET status = $1, duration_ms = $2, evidence = $3, error = $4
		 WHERE id = $5 AND status = $6`,
		models.ScanStatusFailed, durationMs, evidence, errMsg,
		id, models.ScanStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to fail scan: %w", err)
	}
	return requireOneRow(res, id)
}

// Delete removes a scan; events and jobs cascade.
func (s *ScanService) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	return requireOneRow(res, id)
}

// DeleteTerminalOlderThan removes complete and failed scans created before
// cutoff and returns how many were deleted. Queued and running scans are
// never touched.
func (s *ScanService) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scans WHERE status IN ($1, $2) AND created_at < $3`,
		models.ScanStatusComplete, models.ScanStatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired scans: %w", err)
	}
	return res.RowsAffected()
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScanRow(row rowScanner) (*models.Scan, error) {
	var (
		scan       models.Scan
		durationMs sql.NullInt64
		evidence   []byte
		assessment []byte
		narrative  sql.NullString
		modelID    sql.NullString
		errMsg     sql.NullString
	)
	err := row.Scan(&scan.ID, &scan.Chain, &scan.TokenAddress, &scan.Status,
		&scan.CreatedAt, &durationMs, &scan.ScannerVersion, &scan.ScoreVersion,
		&evidence, &assessment, &narrative, &modelID, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	if durationMs.Valid {
		scan.DurationMs = &durationMs.Int64
	}
	if len(evidence) > 0 {
		scan.Evidence = json.RawMessage(evidence)
	}
	if len(assessment) > 0 {
		scan.Assessment = json.RawMessage(assessment)
	}
	if narrative.Valid {
		scan.Narrative = &narrative.String
	}
	if modelID.Valid {
		scan.ModelID = &modelID.String
	}
	if errMsg.Valid {
		scan.Error = &errMsg.String
	}
	return &scan, nil
}
