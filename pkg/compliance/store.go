package compliance

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists compliance_audit rows to a dedicated SQLite database. The
// Compliance Center exclusively owns this table; no other component writes
// to it, though the rate-limit predicate reads it.
type Store struct {
	db *sqlx.DB
}

// OpenStore opens (and migrates) the compliance SQLite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open compliance db: %w", err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("compliance goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("compliance migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Insert appends one audit row and returns its assigned id.
func (s *Store) Insert(ctx context.Context, row AuditRow) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO compliance_audit
			(actor, account_id, session_id, action, decision, blocked, hits, policy_scope, policy_ver, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Actor, row.AccountID, row.SessionID, row.Action, row.Decision,
		boolToInt(row.Blocked), row.Hits, row.PolicyScope, row.PolicyVer, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert compliance audit: %w", err)
	}
	return res.LastInsertId()
}

// CountWithinWindow counts prior audit rows for a scope id within a trailing
// window, used by the rate-limit predicate. scopeColumn is "account_id" or
// "session_id".
func (s *Store) CountWithinWindow(ctx context.Context, scopeColumn, scopeID string, window time.Duration) (int, error) {
	if scopeColumn != "account_id" && scopeColumn != "session_id" {
		return 0, fmt.Errorf("invalid scope column %q", scopeColumn)
	}
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM compliance_audit
		WHERE %s = ? AND action = 'message_send' AND blocked = 0 AND created_at >= ?`, scopeColumn)
	var count int
	since := time.Now().UTC().Add(-window)
	if err := s.db.GetContext(ctx, &count, query, scopeID, since); err != nil {
		return 0, fmt.Errorf("count compliance audit: %w", err)
	}
	return count, nil
}

// Replay returns audit rows matching the given filter, most recent first.
func (s *Store) Replay(ctx context.Context, filter ReplayFilter) ([]AuditRow, error) {
	query := `SELECT id, actor, account_id, session_id, action, decision, blocked, hits, policy_scope, policy_ver, created_at
		FROM compliance_audit WHERE 1=1`
	var args []any

	if filter.AccountID != "" {
		query += " AND account_id = ?"
		args = append(args, filter.AccountID)
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.BlockedOnly {
		query += " AND blocked = 1"
	}
	query += " ORDER BY id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	type row struct {
		ID          int64     `db:"id"`
		Actor       string    `db:"actor"`
		AccountID   string    `db:"account_id"`
		SessionID   string    `db:"session_id"`
		Action      string    `db:"action"`
		Decision    string    `db:"decision"`
		Blocked     int       `db:"blocked"`
		Hits        string    `db:"hits"`
		PolicyScope string    `db:"policy_scope"`
		PolicyVer   string    `db:"policy_ver"`
		CreatedAt   time.Time `db:"created_at"`
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("replay compliance audit: %w", err)
	}

	out := make([]AuditRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, AuditRow{
			ID: r.ID, Actor: r.Actor, AccountID: r.AccountID, SessionID: r.SessionID,
			Action: r.Action, Decision: r.Decision, Blocked: r.Blocked != 0, Hits: r.Hits,
			PolicyScope: r.PolicyScope, PolicyVer: r.PolicyVer, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
