package workflow

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoSessionsAvailable indicates no pending sessions/jobs are queued.
var ErrNoSessionsAvailable = errors.New("workflow: no sessions available")

// Store persists session_tasks, session_state_transitions, and
// workflow_jobs. The SLA monitor (package sla) shares the same underlying
// database handle for sla_events/sla_alerts but never writes through Store.
type Store struct {
	db *sqlx.DB
}

// OpenStore opens (and migrates) the workflow SQLite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open workflow db: %w", err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("workflow goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("workflow migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle so sibling components (the SLA monitor)
// can share one SQLite file without a second connection pool.
func (s *Store) DB() *sqlx.DB { return s.db }

// EnsureSession inserts a new session row in state NEW if one doesn't
// already exist; idempotent.
func (s *Store) EnsureSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_tasks (session_id, state, state_blob, created_at, updated_at)
		VALUES (?, ?, '{}', ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		sessionID, StateNew, time.Now().UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// GetSession returns the current session row.
func (s *Store) GetSession(ctx context.Context, sessionID string) (SessionTask, error) {
	var task SessionTask
	err := s.db.GetContext(ctx, &task, `SELECT * FROM session_tasks WHERE session_id = ?`, sessionID)
	if err != nil {
		return SessionTask{}, fmt.Errorf("get session %q: %w", sessionID, err)
	}
	return task, nil
}

// SetManualTakeover parks or releases a session, which excludes it from
// automated processing without touching its outstanding jobs.
func (s *Store) SetManualTakeover(ctx context.Context, sessionID string, on bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_tasks SET manual_takeover = ?, updated_at = ? WHERE session_id = ?`,
		boolToInt(on), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("set manual takeover: %w", err)
	}
	return nil
}

// TransitionState attempts from -> to, recording the attempt either way.
// Illegal attempts are recorded as rejected and do not mutate state unless
// force is true (operator override, reason "forced").
func (s *Store) TransitionState(ctx context.Context, sessionID string, to State, force bool) error {
	task, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	allowed := force || IsAllowed(task.State, to)
	status := "applied"
	reason := ""
	if force {
		reason = "forced"
	}
	if !allowed {
		status = "rejected"
		reason = "illegal_transition"
	}

	record := TransitionRecord{
		SessionID: sessionID, FromState: task.State, ToState: to, Status: status, Reason: reason, Metadata: "{}",
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO session_state_transitions (session_id, from_state, to_state, status, reason, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID, record.FromState, record.ToState, record.Status, record.Reason, record.Metadata, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("record transition: %w", err)
	}

	if !allowed {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `UPDATE session_tasks SET state = ?, updated_at = ? WHERE session_id = ?`,
		to, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	return nil
}

// GetTransitions returns the transition history for a session, most recent first.
func (s *Store) GetTransitions(ctx context.Context, sessionID string, limit int) ([]TransitionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []TransitionRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT * FROM session_state_transitions WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get transitions: %w", err)
	}
	return records, nil
}

// EnqueueJob idempotently inserts a job keyed by its dedupe_key.
func (s *Store) EnqueueJob(ctx context.Context, sessionID, stage, contentHash, payload string) error {
	key := DedupeKey(sessionID, contentHash, stage)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_jobs (dedupe_key, session_id, stage, payload, status, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedupe_key) DO NOTHING`,
		key, sessionID, stage, payload, JobPending, time.Now().UTC(), time.Now().UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// ClaimJobs atomically marks up to limit pending-and-due jobs running with
// a lease, ordered by id (oldest first), and returns them.
func (s *Store) ClaimJobs(ctx context.Context, limit int, leaseDuration time.Duration) ([]Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var ids []int64
	err = tx.SelectContext(ctx, &ids, `
		SELECT id FROM workflow_jobs
		WHERE status = ? AND next_run_at <= ?
		ORDER BY id ASC LIMIT ?`, JobPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select claimable jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	leaseUntil := now.Add(leaseDuration)
	query, args, err := sqlx.In(`UPDATE workflow_jobs SET status = ?, lease_until = ?, updated_at = ? WHERE id IN (?)`,
		JobRunning, leaseUntil, now, ids)
	if err != nil {
		return nil, fmt.Errorf("build claim update: %w", err)
	}
	query = tx.Rebind(query)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	var jobs []Job
	selQuery, selArgs, err := sqlx.In(`SELECT * FROM workflow_jobs WHERE id IN (?) ORDER BY id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("build claim select: %w", err)
	}
	selQuery = tx.Rebind(selQuery)
	if err := tx.SelectContext(ctx, &jobs, selQuery, selArgs...); err != nil {
		return nil, fmt.Errorf("reselect claimed jobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return jobs, nil
}

// RecoverExpiredJobs reverts running jobs whose lease has expired back to
// pending, releasing the claim for the next ClaimJobs call. Called at the
// start of every worker iteration and after process restart.
func (s *Store) RecoverExpiredJobs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_jobs SET status = ?, lease_until = NULL, updated_at = ?
		WHERE status = ? AND lease_until < ?`,
		JobPending, time.Now().UTC(), JobRunning, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("recover expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// CompleteJob marks a job done.
func (s *Store) CompleteJob(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workflow_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		JobDone, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return nil
}

// FailJob increments attempts and either dead-letters the job (at
// max_attempts) or reschedules it with exponential backoff.
func (s *Store) FailJob(ctx context.Context, id int64, jobErr error, maxAttempts int, baseBackoff time.Duration) error {
	var job Job
	if err := s.db.GetContext(ctx, &job, `SELECT * FROM workflow_jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("load job %d: %w", id, err)
	}

	attempts := job.Attempts + 1
	errMsg := ""
	if jobErr != nil {
		errMsg = jobErr.Error()
	}

	if attempts >= maxAttempts {
		_, err := s.db.ExecContext(ctx, `
			UPDATE workflow_jobs SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			JobDead, attempts, errMsg, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("dead-letter job %d: %w", id, err)
		}
		return nil
	}

	backoff := time.Duration(float64(baseBackoff) * math.Pow(2, float64(attempts-1)))
	nextRun := time.Now().UTC().Add(backoff)
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_jobs SET status = ?, attempts = ?, last_error = ?, next_run_at = ?, lease_until = NULL, updated_at = ?
		WHERE id = ?`,
		JobPending, attempts, errMsg, nextRun, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reschedule job %d: %w", id, err)
	}
	return nil
}

// GetStateBlob returns the raw JSON bookkeeping blob for a session
// (outbound send history, courier lock, etc.) — opaque to Store itself.
func (s *Store) GetStateBlob(ctx context.Context, sessionID string) (string, error) {
	var blob string
	err := s.db.GetContext(ctx, &blob, `SELECT state_blob FROM session_tasks WHERE session_id = ?`, sessionID)
	if err != nil {
		return "", fmt.Errorf("get state blob %q: %w", sessionID, err)
	}
	return blob, nil
}

// SetStateBlob overwrites the raw JSON bookkeeping blob for a session.
func (s *Store) SetStateBlob(ctx context.Context, sessionID, blob string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE session_tasks SET state_blob = ?, updated_at = ? WHERE session_id = ?`,
		blob, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("set state blob %q: %w", sessionID, err)
	}
	return nil
}

// StalledSessions returns session IDs currently in one of states whose
// updated_at is older than quietPeriod — candidates for a follow-up nudge.
func (s *Store) StalledSessions(ctx context.Context, states []State, quietPeriod time.Duration) ([]string, error) {
	query, args, err := sqlx.In(`
		SELECT session_id FROM session_tasks
		WHERE manual_takeover = 0 AND state IN (?) AND updated_at <= ?`,
		states, time.Now().UTC().Add(-quietPeriod))
	if err != nil {
		return nil, fmt.Errorf("build stalled sessions query: %w", err)
	}
	query = s.db.Rebind(query)

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("stalled sessions: %w", err)
	}
	return ids, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
