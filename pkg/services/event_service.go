package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tokenscope/tokenscope/pkg/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// appendRetries bounds the insert-retry loop used to serialize concurrent
// appends for the same scan.
const appendRetries = 5

// EventService owns the append-only scan_events table. Appends are sequenced
// by (scan_id, seq): read max(seq), insert max+1, retry on unique violation.
// This is safe against multi-process workers without advisory locks.
type EventService struct {
	db *sql.DB
}

// NewEventService creates an EventService.
func NewEventService(db *sql.DB) *EventService {
	return &EventService{db: db}
}

const eventColumns = `id, scan_id, seq, ts, level, type, step_key, message, payload`

// Append inserts the next event for the scan and returns it. Events are
// immutable after insert.
func (s *EventService) Append(ctx context.Context, scanID string, level models.EventLevel,
	eventType string, stepKey *string, message string, payload json.RawMessage) (*models.ScanEvent, error) {

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		event, err := s.tryAppend(ctx, scanID, level, eventType, stepKey, message, payload)
		if err == nil {
			return event, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to append event after %d attempts: %w", appendRetries, lastErr)
}

func (s *EventService) tryAppend(ctx context.Context, scanID string, level models.EventLevel,
	eventType string, stepKey *string, message string, payload json.RawMessage) (*models.ScanEvent, error) {

	var payloadArg any
	if len(payload) > 0 {
		payloadArg = []byte(payload)
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO scan_events (scan_id, seq, ts, level, type, step_key, message, payload)
		 SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6, $7
		 FROM scan_events WHERE scan_id = $1
		 RETURNING `+eventColumns,
		scanID, time.Now(), level, eventType, stepKey, message, payloadArg)

	return scanEventRow(row)
}

// ListEvents returns the full timeline for a scan ordered by the global id.
func (s *EventService) ListEvents(ctx context.Context, scanID string) ([]models.ScanEvent, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM scan_events WHERE scan_id = $1 ORDER BY id`, scanID)
}

// ListEventsAfter returns events with id strictly greater than afterID,
// ordered by the global id.
func (s *EventService) ListEventsAfter(ctx context.Context, scanID string, afterID int64) ([]models.ScanEvent, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM scan_events WHERE scan_id = $1 AND id > $2 ORDER BY id`,
		scanID, afterID)
}

// GetLatestEvent returns the most recent event for a scan, or ErrNotFound.
func (s *EventService) GetLatestEvent(ctx context.Context, scanID string) (*models.ScanEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM scan_events WHERE scan_id = $1 ORDER BY id DESC LIMIT 1`,
		scanID)
	return scanEventRow(row)
}

func (s *EventService) queryEvents(ctx context.Context, query string, args ...any) ([]models.ScanEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.ScanEvent
	for rows.Next() {
		event, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

func scanEventRow(row rowScanner) (*models.ScanEvent, error) {
	var (
		event   models.ScanEvent
		stepKey sql.NullString
		payload []byte
	)
	err := row.Scan(&event.ID, &event.ScanID, &event.Seq, &event.TS,
		&event.Level, &event.Type, &stepKey, &event.Message, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}
	if stepKey.Valid {
		event.StepKey = &stepKey.String
	}
	if len(payload) > 0 {
		event.Payload = json.RawMessage(payload)
	}
	return &event, nil
}
