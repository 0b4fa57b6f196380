// Package worker implements C6: the main automation loop that drains the
// workflow job queue, drives the message pipeline, and feeds cycle
// outcomes to the SLA monitor. Adapted from the teacher's pkg/queue
// worker/pool/orphan-recovery shape (claim -> dispatch -> complete/fail,
// with periodic orphan-lease recovery), generalized from a single LLM
// chat-turn executor to this domain's reply/quote/follow-up job stages.
package worker

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/G3niusYukki/xianyu-chatops/pkg/followup"
	"github.com/G3niusYukki/xianyu-chatops/pkg/message"
	"github.com/G3niusYukki/xianyu-chatops/pkg/quote"
	"github.com/G3niusYukki/xianyu-chatops/pkg/sla"
	"github.com/G3niusYukki/xianyu-chatops/pkg/transport"
	"github.com/G3niusYukki/xianyu-chatops/pkg/workflow"
)

// Config tunes the loop's cadence and per-job limits.
type Config struct {
	PollInterval         time.Duration
	JitterMax            time.Duration
	ClaimLimit           int
	LeaseDuration        time.Duration
	MaxAttempts          int
	BaseBackoff          time.Duration
	AccountID            string
	QuoteValidityMinutes int
	OrderKeywords        []string
	KeywordReplies       map[string]string

	// OriginCity seeds quote.Request.Origin when a buyer's message omits an
	// explicit pickup city. QuoteReplyTemplate, if non-empty, overrides
	// message.DefaultQuoteReplyTemplate.
	OriginCity        string
	QuoteReplyTemplate string

	// MaxSendsPerSecond and SendBurst bound this account's total outbound
	// send rate across all sessions, independent of message.CooldownPolicy
	// (which bounds one session's own pace). A shared marketplace gateway
	// throttles by account, not by session, so this cap exists even when
	// every individual session is well within its own cooldown.
	MaxSendsPerSecond float64
	SendBurst         int
}

// Runner is the long-lived automation loop for one account.
type Runner struct {
	cfg       Config
	store     *workflow.Store
	channel   transport.Channel
	pipeline  *message.Pipeline
	engine    *quote.Engine
	monitor   *sla.Monitor
	followup  *followup.Tracker
	cooldowns message.CooldownStore
	logger    *slog.Logger
	limiter   *rate.Limiter

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(cfg Config, store *workflow.Store, channel transport.Channel, pipeline *message.Pipeline, engine *quote.Engine, monitor *sla.Monitor, tracker *followup.Tracker, cooldowns message.CooldownStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(cfg.MaxSendsPerSecond)
	burst := cfg.SendBurst
	if cfg.MaxSendsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Runner{
		cfg: cfg, store: store, channel: channel, pipeline: pipeline, engine: engine,
		monitor: monitor, followup: tracker, cooldowns: cooldowns, logger: logger.With("component", "worker"),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Start launches the loop in a background goroutine.
func (r *Runner) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(runCtx)
}

// Stop signals the loop to exit and waits for it to drain.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	if err := r.channel.Start(ctx); err != nil {
		r.logger.Error("transport start failed", "error", err)
		return
	}
	defer r.channel.Stop() //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.runCycle(ctx); err != nil {
			r.logger.Error("worker cycle failed", "error", err)
		}

		sleep := r.cfg.PollInterval
		if r.cfg.JitterMax > 0 {
			sleep += time.Duration(rand.Int63n(int64(r.cfg.JitterMax))) //nolint:gosec
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// runCycle is one full iteration: recover orphaned leases, ingest new
// messages, claim due jobs, and dispatch each; every reply job that runs
// records an SLA event regardless of outcome.
func (r *Runner) runCycle(ctx context.Context) error {
	if _, err := r.store.RecoverExpiredJobs(ctx); err != nil {
		return fmt.Errorf("recover expired jobs: %w", err)
	}

	unread, err := r.channel.GetUnreadSessions(ctx)
	if err != nil {
		return fmt.Errorf("get unread sessions: %w", err)
	}
	for _, msg := range unread {
		if err := r.ingest(ctx, msg); err != nil {
			r.logger.Warn("ingest message failed", "session_id", msg.SessionID, "error", err)
		}
	}

	jobs, err := r.store.ClaimJobs(ctx, r.cfg.ClaimLimit, r.cfg.LeaseDuration)
	if err != nil {
		return fmt.Errorf("claim jobs: %w", err)
	}
	for _, job := range jobs {
		r.dispatch(ctx, job)
	}

	if r.followup != nil {
		if err := r.followup.Scan(ctx); err != nil {
			r.logger.Warn("followup scan failed", "error", err)
		}
	}

	if r.monitor != nil {
		if _, err := r.monitor.EvaluateAlerts(ctx); err != nil {
			r.logger.Warn("sla alert evaluation failed", "error", err)
		}
		if err := r.monitor.WriteSnapshot(ctx); err != nil {
			r.logger.Warn("sla snapshot write failed", "error", err)
		}
	}

	return nil
}

// ingest ensures the session row exists and enqueues a reply job keyed by
// a hash of the inbound text, so re-observing the same message (retried
// delivery, both transports briefly racing) never double-enqueues.
func (r *Runner) ingest(ctx context.Context, msg transport.UnreadMessage) error {
	if err := r.store.EnsureSession(ctx, msg.SessionID); err != nil {
		return err
	}

	task, err := r.store.GetSession(ctx, msg.SessionID)
	if err != nil {
		return err
	}
	if task.ManualTakeover {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	return r.store.EnqueueJob(ctx, msg.SessionID, "reply", contentHash(msg.Text), string(payload))
}

func contentHash(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// dispatch runs one job to completion, recording an SLA cycle event for
// every reply job it runs (a job skipped for manual takeover is completed
// without one) and resolving the job (complete or scheduled for retry) — a
// dispatch that panics on a bad payload would stall the whole queue, so
// every error path here ends in FailJob rather than propagating.
func (r *Runner) dispatch(ctx context.Context, job workflow.Job) {
	if job.Stage == "followup" {
		r.dispatchFollowup(ctx, job)
		return
	}

	// A session can be put into manual takeover after its job was already
	// enqueued (ingest's own check only guards enqueue time), so re-check
	// right before running it rather than dispatching a message an
	// operator has since taken over.
	task, err := r.store.GetSession(ctx, job.SessionID)
	if err != nil {
		r.logger.Warn("load session before dispatch failed", "job_id", job.ID, "session_id", job.SessionID, "error", err)
	} else if task.ManualTakeover {
		if completeErr := r.store.CompleteJob(ctx, job.ID); completeErr != nil {
			r.logger.Error("complete skipped_manual job bookkeeping failed", "job_id", job.ID, "error", completeErr)
		}
		r.logger.Info("job skipped_manual: session under manual takeover", "job_id", job.ID, "session_id", job.SessionID)
		return
	}

	start := time.Now()
	outcome := sla.OutcomeSuccess
	stage := sla.StageFirstReply
	quoteFallback := false

	err := r.runJob(ctx, job, &quoteFallback)
	if err != nil {
		outcome = sla.OutcomeFailure
		r.logger.Warn("job failed", "job_id", job.ID, "session_id", job.SessionID, "error", err)
		if failErr := r.store.FailJob(ctx, job.ID, err, r.cfg.MaxAttempts, r.cfg.BaseBackoff); failErr != nil {
			r.logger.Error("fail job bookkeeping failed", "job_id", job.ID, "error", failErr)
		}
	} else if completeErr := r.store.CompleteJob(ctx, job.ID); completeErr != nil {
		r.logger.Error("complete job bookkeeping failed", "job_id", job.ID, "error", completeErr)
	}

	if r.monitor != nil {
		recErr := r.monitor.RecordCycle(ctx, sla.CycleEvent{
			SessionID:     job.SessionID,
			Stage:         stage,
			Outcome:       outcome,
			LatencyMs:     time.Since(start).Milliseconds(),
			QuoteFallback: quoteFallback,
		})
		if recErr != nil {
			r.logger.Warn("record sla cycle failed", "error", recErr)
		}
	}
}

// dispatchFollowup hands a "followup" stage job to the follow-up tracker,
// which records its own SLA cycle event (read_no_reply_followup_total is
// a distinct counter from the reply-path's first_reply_total).
func (r *Runner) dispatchFollowup(ctx context.Context, job workflow.Job) {
	if r.followup == nil {
		if err := r.store.CompleteJob(ctx, job.ID); err != nil {
			r.logger.Error("complete orphaned followup job failed", "job_id", job.ID, "error", err)
		}
		return
	}

	if err := r.limiter.Wait(ctx); err != nil {
		r.logger.Warn("wait for send rate limit failed", "job_id", job.ID, "error", err)
	}

	if err := r.followup.Nudge(ctx, job.SessionID); err != nil {
		r.logger.Warn("followup nudge failed", "session_id", job.SessionID, "error", err)
		if failErr := r.store.FailJob(ctx, job.ID, err, r.cfg.MaxAttempts, r.cfg.BaseBackoff); failErr != nil {
			r.logger.Error("fail followup job bookkeeping failed", "job_id", job.ID, "error", failErr)
		}
		return
	}
	if err := r.store.CompleteJob(ctx, job.ID); err != nil {
		r.logger.Error("complete followup job bookkeeping failed", "job_id", job.ID, "error", err)
	}
}

func (r *Runner) runJob(ctx context.Context, job workflow.Job, quoteFallback *bool) error {
	var msg transport.UnreadMessage
	if err := json.Unmarshal([]byte(job.Payload), &msg); err != nil {
		return fmt.Errorf("unmarshal job payload: %w", err)
	}

	var offeredCouriers []string
	if r.cooldowns != nil {
		if state, err := r.cooldowns.LoadCooldown(ctx, msg.SessionID); err != nil {
			r.logger.Warn("load cooldown state for classification failed", "session_id", msg.SessionID, "error", err)
		} else if !state.CourierLocked {
			offeredCouriers = state.QuotedCouriers
		}
	}

	intent := message.Classify(msg.Text, r.cfg.OrderKeywords, r.cfg.KeywordReplies, offeredCouriers)

	params := message.SendParams{
		AccountID: r.cfg.AccountID,
		SessionID: msg.SessionID,
		Actor:     "worker",
		Intent:    intent,
	}

	switch intent {
	case message.IntentKeyword:
		if reply, ok := message.KeywordReply(msg.Text, r.cfg.KeywordReplies); ok {
			params.ReplyText = reply
		} else {
			params.ReplyText = "您好，请问有什么可以帮您？"
		}
		if err := r.store.TransitionState(ctx, msg.SessionID, workflow.StateReplied, false); err != nil {
			r.logger.Warn("transition to replied failed", "session_id", msg.SessionID, "error", err)
		}
	case message.IntentQuote:
		parsed := message.ParseQuoteRequest(msg.Text, r.cfg.OriginCity)
		if len(parsed.MissingFields) > 0 {
			params.ReplyText = message.BuildQuoteFormatHintReply(parsed)
			params.QuoteNeedInfo = true
		} else {
			req := parsed.Request
			result, err := r.engine.GetQuote(ctx, req)
			if err != nil {
				return fmt.Errorf("get quote: %w", err)
			}
			*quoteFallback = result.FallbackUsed
			params.ReplyText = message.ComposeQuoteReply(req, result, r.cfg.QuoteValidityMinutes, r.cfg.QuoteReplyTemplate)
			params.IsQuote = true
			params.QuoteFallback = result.FallbackUsed
			if courier, ok := result.Explain["matched_courier"].(string); ok && courier != "" && courier != "auto" {
				params.OfferedCouriers = []string{courier}
			}
			if terr := r.store.TransitionState(ctx, msg.SessionID, workflow.StateQuoted, false); terr != nil {
				r.logger.Warn("transition to quoted failed", "session_id", msg.SessionID, "error", terr)
			}
		}
	case message.IntentCourierChoice:
		courier, _ := message.MatchOfferedCourier(msg.Text, offeredCouriers)
		params.ReplyText = fmt.Sprintf("好的，已为您安排%s，感谢支持~", courier)
		params.LockCourier = true
		if err := r.store.TransitionState(ctx, msg.SessionID, workflow.StateReplied, false); err != nil {
			r.logger.Warn("transition to replied failed", "session_id", msg.SessionID, "error", err)
		}
	case message.IntentOrder:
		params.ReplyText = "好的，祝您购物愉快，拍下后请及时付款哦~"
		params.IsOrderIntent = true
		if err := r.store.TransitionState(ctx, msg.SessionID, workflow.StateOrdered, false); err != nil {
			r.logger.Warn("transition to ordered failed", "session_id", msg.SessionID, "error", err)
		}
	default:
		params.ReplyText = "您好，请问有什么可以帮您？"
		if err := r.store.TransitionState(ctx, msg.SessionID, workflow.StateReplied, false); err != nil {
			r.logger.Warn("transition to replied failed", "session_id", msg.SessionID, "error", err)
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send rate limit: %w", err)
	}

	decision, err := r.pipeline.Send(ctx, params)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	if decision.Blocked {
		return fmt.Errorf("reply blocked by %s: %s", decision.BlockedBy, decision.Reason)
	}
	return nil
}
