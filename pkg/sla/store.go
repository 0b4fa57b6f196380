package sla

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store reads and writes sla_events/sla_alerts against a *sqlx.DB owned
// and migrated by pkg/workflow.Store; it never opens its own connection.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an already-open, already-migrated workflow database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// InsertEvent appends one cycle observation.
func (s *Store) InsertEvent(ctx context.Context, ev CycleEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sla_events (session_id, stage, outcome, latency_ms, quote_fallback, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Stage, ev.Outcome, ev.LatencyMs, boolToInt(ev.QuoteFallback), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert sla event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit most recent events, oldest first, used
// to seed the in-memory rolling window after a process restart.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]CycleEvent, error) {
	var events []CycleEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM (
			SELECT * FROM sla_events ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sla events: %w", err)
	}
	return events, nil
}

// RaiseAlert inserts a new active alert row.
func (s *Store) RaiseAlert(ctx context.Context, alertType AlertType, title, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sla_alerts (alert_type, title, message, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		alertType, title, message, AlertActive, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("raise alert: %w", err)
	}
	return res.LastInsertId()
}

// LastAlert returns the most recent alert of a given type, used for cooldown
// checks, regardless of its status.
func (s *Store) LastAlert(ctx context.Context, alertType AlertType) (Alert, bool, error) {
	var a Alert
	err := s.db.GetContext(ctx, &a, `
		SELECT * FROM sla_alerts WHERE alert_type = ? ORDER BY id DESC LIMIT 1`, alertType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Alert{}, false, nil
		}
		return Alert{}, false, fmt.Errorf("last alert %s: %w", alertType, err)
	}
	return a, true, nil
}

// ActiveAlerts returns every alert still in status 'active'.
func (s *Store) ActiveAlerts(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	err := s.db.SelectContext(ctx, &alerts, `
		SELECT * FROM sla_alerts WHERE status = ? ORDER BY id DESC`, AlertActive)
	if err != nil {
		return nil, fmt.Errorf("active alerts: %w", err)
	}
	return alerts, nil
}

// ResolveAlert marks an alert resolved.
func (s *Store) ResolveAlert(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sla_alerts SET status = ?, resolved_at = ? WHERE id = ?`,
		AlertResolved, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("resolve alert %d: %w", id, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
