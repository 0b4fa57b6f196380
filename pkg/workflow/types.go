// Package workflow owns the durable per-session state machine and the
// lease-based job queue that the worker (C6) drains.
package workflow

import "time"

// State is one of the session lifecycle stages.
type State string

const (
	StateNew      State = "new"
	StateReplied  State = "replied"
	StateQuoted   State = "quoted"
	StateFollowed State = "followed"
	StateOrdered  State = "ordered"
	StateClosed   State = "closed"
	StateManual   State = "manual"
)

// SessionTask is one row of the session_tasks table.
type SessionTask struct {
	SessionID       string    `db:"session_id"`
	State           State     `db:"state"`
	ManualTakeover  bool      `db:"manual_takeover"`
	LastMessageHash string    `db:"last_message_hash"`
	PeerUserID      string    `db:"peer_user_id"`
	LastItemTitle   string    `db:"last_item_title"`
	LastPeerName    string    `db:"last_peer_name"`
	LastError       string    `db:"last_error"`
	StateBlob       string    `db:"state_blob"` // JSON: outbound history, courier lock, etc.
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// JobStatus is the lifecycle of a workflow_jobs row.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobDead    JobStatus = "dead"
)

// Job is one outstanding unit of work.
type Job struct {
	ID         int64     `db:"id"`
	DedupeKey  string    `db:"dedupe_key"`
	SessionID  string    `db:"session_id"`
	Stage      string    `db:"stage"`
	Payload    string    `db:"payload"`
	Status     JobStatus `db:"status"`
	Attempts   int       `db:"attempts"`
	NextRunAt  time.Time `db:"next_run_at"`
	LeaseUntil *time.Time `db:"lease_until"`
	LastError  string    `db:"last_error"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// TransitionRecord is one append-only state-transition audit row.
type TransitionRecord struct {
	ID        int64     `db:"id"`
	SessionID string    `db:"session_id"`
	FromState State     `db:"from_state"`
	ToState   State     `db:"to_state"`
	Status    string    `db:"status"` // applied | rejected
	Reason    string    `db:"reason"`
	Metadata  string    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

// DedupeKey builds the unique job key for a (session, content hash, stage)
// tuple: "{session_id}:{content_hash[:16]}:{stage}".
func DedupeKey(sessionID, contentHash, stage string) string {
	h := contentHash
	if len(h) > 16 {
		h = h[:16]
	}
	return sessionID + ":" + h + ":" + stage
}
