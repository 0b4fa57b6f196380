// Package sla implements the SLA monitor (C7): a rolling window of recent
// workflow cycles, percentile/ratio summaries, and threshold-based alerts.
// It shares the workflow database's sla_events/sla_alerts tables but never
// touches session_tasks or workflow_jobs.
package sla

import "time"

// Outcome is the terminal result of one workflow cycle observation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Stage identifies which part of the pipeline a cycle observation covers.
type Stage string

const (
	StageFirstReply    Stage = "first_reply"
	StageQuoteFollowup Stage = "quote_followup"
	StageReadNoReply   Stage = "read_no_reply_followup"
)

// CycleEvent is one recorded observation, persisted to sla_events and held
// in the in-memory rolling window.
type CycleEvent struct {
	ID            int64     `db:"id"`
	SessionID     string    `db:"session_id"`
	Stage         Stage     `db:"stage"`
	Outcome       Outcome   `db:"outcome"`
	LatencyMs     int64     `db:"latency_ms"`
	QuoteFallback bool      `db:"quote_fallback"`
	CreatedAt     time.Time `db:"created_at"`
}

// Sample is the aggregate view over the current rolling window.
type Sample struct {
	ProcessedSessions      int     `json:"processed_sessions"`
	FirstReplyTotal        int     `json:"first_reply_total"`
	FirstReplyWithinTarget int     `json:"first_reply_within_target"`
	QuoteFollowupTotal     int     `json:"quote_followup_total"`
	QuoteFollowupSuccess   int     `json:"quote_followup_success"`
	ReadNoReplyTotal       int     `json:"read_no_reply_followup_total"`
	ReadNoReplySuccess     int     `json:"read_no_reply_followup_success"`
}

// Summary is the derived, human/machine-readable rollup published alongside
// the raw sample.
type Summary struct {
	FailureRate          float64 `json:"failure_rate"`
	CycleP50Seconds      float64 `json:"cycle_p50_seconds"`
	CycleP95Seconds      float64 `json:"cycle_p95_seconds"`
	FirstReplyOnTimeRate float64 `json:"first_reply_on_time_rate"`
	QuoteFollowupRate    float64 `json:"quote_followup_rate"`
}

// AlertType enumerates the threshold breaches the monitor can raise.
type AlertType string

const (
	AlertHighFailureRate       AlertType = "HIGH_FAILURE_RATE"
	AlertFirstReplyDegraded    AlertType = "FIRST_REPLY_SLA_DEGRADED"
	AlertWorkflowCycleSlow     AlertType = "WORKFLOW_CYCLE_SLOW"
)

// AlertStatus is the lifecycle of an sla_alerts row.
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

// Alert is one raised (or previously raised, now resolved) threshold breach.
type Alert struct {
	ID         int64       `db:"id" json:"id"`
	AlertType  AlertType   `db:"alert_type" json:"alert_type"`
	Title      string      `db:"title" json:"title"`
	Message    string      `db:"message" json:"message"`
	Status     AlertStatus `db:"status" json:"status"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time  `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Config tunes window size and alert thresholds.
type Config struct {
	WindowSize                 int
	AlertMinSamples            int
	AlertFailureRateThreshold  float64
	AlertFirstReplyRatioThresh float64
	AlertCycleP95Seconds       float64
	AlertCooldown              time.Duration
	FirstReplyTargetSeconds    float64
	MetricsPath                string
}

// Snapshot is the full document written to MetricsPath.
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	Sample      Sample    `json:"sample"`
	Summary     Summary   `json:"summary"`
	Alerts      []Alert   `json:"active_alerts"`
}
