// Package message implements C5: intent classification, quote-reply
// composition, and the compliance/cooldown-gated send pipeline.
package message

import "time"

// Intent is the classified purpose of an inbound buyer message.
type Intent string

const (
	IntentOrder         Intent = "order"
	IntentCourierChoice Intent = "courier_choice"
	IntentQuote         Intent = "quote"
	IntentKeyword       Intent = "keyword"
	IntentUnknown       Intent = "unknown"
)

// Inbound is one buyer message awaiting a reply.
type Inbound struct {
	SessionID  string
	PeerUserID string
	PeerName   string
	ItemTitle  string
	Text       string
	ReceivedAt time.Time
}

// OutboundDecision is the result of running an inbound message through the
// full reply pipeline: classification, quote composition (if relevant),
// compliance check, cooldown check, and transport dispatch outcome.
type OutboundDecision struct {
	SessionID  string
	Intent     Intent
	ReplyText  string
	Sent       bool
	Blocked    bool
	BlockedBy  string // "compliance" | "cooldown"
	Reason     string
	QuoteStale bool

	// IsQuote, QuoteSuccess, QuoteFallback, QuoteNeedInfo, IsOrderIntent and
	// BlockedByPolicy are the return-descriptor fields C6 bookkeeping and
	// the SLA monitor consult. QuoteSuccess is only ever set true when
	// IsQuote is true AND the send was not Blocked, so a quote blocked by
	// policy never contributes to quote_success_rate.
	IsQuote         bool
	QuoteSuccess    bool
	QuoteFallback   bool
	QuoteNeedInfo   bool
	IsOrderIntent   bool
	BlockedByPolicy bool

	// FirstReplySent is true when the session had no prior recorded
	// outbound send before this one went through.
	FirstReplySent bool
}

// CooldownState is the subset of a session's bookkeeping the cooldown
// policy needs: a bounded history of recent send timestamps, plus the
// courier-choice memoization C5 consults (§4.5 step 2): the couriers
// offered in the session's last quote reply, and whether a courier
// choice has already been locked in.
type CooldownState struct {
	SentAt []time.Time

	QuotedCouriers []string
	CourierLocked  bool
}

// CooldownPolicy tunes the outbound pacing guard, independent of and
// evaluated after the compliance center's policy decision.
type CooldownPolicy struct {
	MinIntervalSeconds int
	MaxPerHour         int
	MaxPerDay          int
	HistoryCap         int
}
