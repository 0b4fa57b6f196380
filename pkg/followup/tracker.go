// Package followup supplements the specification with a re-engagement
// policy: a buyer who was quoted or replied to but never answered gets one
// scheduled nudge, contributing the read_no_reply_followup_total/success
// counters the SLA monitor tracks. There is no section of the original
// spec naming this component directly; it is implied by sla_monitor's
// counters, which presuppose something decides when a follow-up fires.
package followup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/G3niusYukki/xianyu-chatops/pkg/message"
	"github.com/G3niusYukki/xianyu-chatops/pkg/sla"
	"github.com/G3niusYukki/xianyu-chatops/pkg/workflow"
)

// Config tunes when a stalled session qualifies for a follow-up nudge.
type Config struct {
	QuietPeriod time.Duration // time since last reply with no buyer response
	NudgeText   string
}

// Tracker scans quoted/replied sessions that have gone quiet and sends one
// follow-up message each, transitioning them to followed on success.
type Tracker struct {
	cfg      Config
	store    *workflow.Store
	pipeline *message.Pipeline
	monitor  *sla.Monitor
	accountID string
	logger   *slog.Logger
}

func NewTracker(cfg Config, store *workflow.Store, pipeline *message.Pipeline, monitor *sla.Monitor, accountID string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NudgeText == "" {
		cfg.NudgeText = "亲，请问还在考虑这款宝贝吗？有问题随时找我哦~"
	}
	return &Tracker{cfg: cfg, store: store, pipeline: pipeline, monitor: monitor, accountID: accountID, logger: logger.With("component", "followup")}
}

// Scan finds sessions in replied/quoted whose updated_at is older than
// QuietPeriod and enqueues one follow-up job for each; the send itself
// and the move to followed happen in Nudge when that job is dispatched.
// Its own job row lives in workflow_jobs under stage "followup" so the
// scan never double-sends after a process restart.
func (t *Tracker) Scan(ctx context.Context) error {
	candidates, err := t.findStalled(ctx)
	if err != nil {
		return fmt.Errorf("find stalled sessions: %w", err)
	}

	for _, sessionID := range candidates {
		if err := t.store.EnqueueJob(ctx, sessionID, "followup", "quiet-period", "{}"); err != nil {
			t.logger.Warn("enqueue followup job failed", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

// findStalled is intentionally a thin method over Store so it can be
// grounded on a single SQL query rather than pulling every session into
// memory; the query itself lives alongside the other workflow SQL.
func (t *Tracker) findStalled(ctx context.Context) ([]string, error) {
	return t.store.StalledSessions(ctx, []workflow.State{workflow.StateReplied, workflow.StateQuoted}, t.cfg.QuietPeriod)
}

// Nudge sends the follow-up for one session, recording success/failure to
// the SLA monitor and advancing state on success.
func (t *Tracker) Nudge(ctx context.Context, sessionID string) error {
	start := time.Now()
	decision, err := t.pipeline.Send(ctx, message.SendParams{
		AccountID: t.accountID,
		SessionID: sessionID,
		Actor:     "followup",
		ReplyText: t.cfg.NudgeText,
	})

	outcome := sla.OutcomeSuccess
	if err != nil || decision.Blocked {
		outcome = sla.OutcomeFailure
	} else if terr := t.store.TransitionState(ctx, sessionID, workflow.StateFollowed, false); terr != nil {
		t.logger.Warn("transition to followed failed", "session_id", sessionID, "error", terr)
	}

	if t.monitor != nil {
		recErr := t.monitor.RecordCycle(ctx, sla.CycleEvent{
			SessionID: sessionID,
			Stage:     sla.StageReadNoReply,
			Outcome:   outcome,
			LatencyMs: time.Since(start).Milliseconds(),
		})
		if recErr != nil {
			t.logger.Warn("record followup sla cycle failed", "error", recErr)
		}
	}

	if err != nil {
		return err
	}
	if decision.Blocked {
		return fmt.Errorf("followup blocked by %s: %s", decision.BlockedBy, decision.Reason)
	}
	return nil
}
