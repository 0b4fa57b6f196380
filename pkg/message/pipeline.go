package message

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/G3niusYukki/xianyu-chatops/pkg/compliance"
)

// Sender is the minimal outbound transport surface the pipeline needs.
// pkg/transport's Channel satisfies it; kept as a local interface so
// message does not import transport directly (the dependency runs the
// other way: transport is a delivery mechanism, message is policy).
type Sender interface {
	SendText(ctx context.Context, sessionID, text string) error
}

// CooldownStore persists and retrieves each session's rolling send
// history; backed in production by the state_blob column on
// pkg/workflow.Store's session_tasks row.
type CooldownStore interface {
	LoadCooldown(ctx context.Context, sessionID string) (CooldownState, error)
	SaveCooldown(ctx context.Context, sessionID string, state CooldownState) error
}

// Pipeline wires compliance and cooldown enforcement around a Sender;
// classification and quote composition happen in its callers.
type Pipeline struct {
	compliance *compliance.Center
	cooldowns  CooldownStore
	sender     Sender
	policy     CooldownPolicy
	logger     *slog.Logger
}

func NewPipeline(center *compliance.Center, cooldowns CooldownStore, sender Sender, policy CooldownPolicy, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == (CooldownPolicy{}) {
		policy = defaultCooldownPolicy()
	}
	return &Pipeline{compliance: center, cooldowns: cooldowns, sender: sender, policy: policy, logger: logger.With("component", "message-pipeline")}
}

// SendParams describes one reply a caller wants dispatched through the
// pipeline, including the bookkeeping C6 and the SLA monitor need on the
// resulting OutboundDecision.
type SendParams struct {
	AccountID string
	SessionID string
	Actor     string
	ReplyText string
	Intent    Intent

	IsQuote       bool
	QuoteFallback bool
	QuoteNeedInfo bool
	IsOrderIntent bool

	// OfferedCouriers, when this send is a quote reply, is the set of
	// courier names presented to the buyer — memoized into the session's
	// cooldown state on successful send so a later Classify call can
	// recognize the buyer picking one of them (§4.5 step 2).
	OfferedCouriers []string
	// LockCourier marks that this send is acting on (and locking in) a
	// buyer's courier choice.
	LockCourier bool
}

// Send runs params.ReplyText through the compliance center, then the
// cooldown guard, then dispatches via the Sender. It never panics on a
// blocked message: callers get a fully-populated OutboundDecision either
// way.
func (p *Pipeline) Send(ctx context.Context, params SendParams) (OutboundDecision, error) {
	decision := OutboundDecision{
		SessionID:     params.SessionID,
		ReplyText:     params.ReplyText,
		Intent:        params.Intent,
		IsQuote:       params.IsQuote,
		QuoteFallback: params.QuoteFallback,
		QuoteNeedInfo: params.QuoteNeedInfo,
		IsOrderIntent: params.IsOrderIntent,
	}

	verdict, err := p.compliance.EvaluateBeforeSend(ctx, params.ReplyText, params.Actor, params.AccountID, params.SessionID, "message_send")
	if err != nil {
		return decision, fmt.Errorf("compliance evaluation: %w", err)
	}
	if !verdict.Allowed {
		decision.Blocked = true
		decision.BlockedBy = "compliance"
		decision.BlockedByPolicy = true
		decision.Reason = verdict.Reason
		return decision, nil
	}

	state, err := p.cooldowns.LoadCooldown(ctx, params.SessionID)
	if err != nil {
		return decision, fmt.Errorf("load cooldown state: %w", err)
	}

	now := time.Now().UTC()
	allowed, reason := evaluateCooldown(p.policy, state, now)
	if !allowed {
		decision.Blocked = true
		decision.BlockedBy = "cooldown"
		decision.Reason = reason
		return decision, nil
	}

	if err := p.sender.SendText(ctx, params.SessionID, params.ReplyText); err != nil {
		return decision, fmt.Errorf("send text: %w", err)
	}

	decision.FirstReplySent = len(state.SentAt) == 0
	state = recordSend(p.policy, state, now)
	if params.IsQuote && len(params.OfferedCouriers) > 0 {
		state.QuotedCouriers = params.OfferedCouriers
		state.CourierLocked = false
	}
	if params.LockCourier {
		state.CourierLocked = true
	}
	if err := p.cooldowns.SaveCooldown(ctx, params.SessionID, state); err != nil {
		p.logger.Warn("save cooldown state failed", "session_id", params.SessionID, "error", err)
	}

	decision.Sent = true
	if decision.IsQuote {
		decision.QuoteSuccess = true
	}
	return decision, nil
}
