// Package compliance evaluates every outbound message against layered
// policies (global -> account -> session), persists an append-only audit
// trail, and enforces per-scope rate limits.
package compliance

import "time"

// RateLimitRule bounds how many messages may be sent within a window.
type RateLimitRule struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxMessages   int `yaml:"max_messages"`
}

// RateLimitPolicy holds the account- and session-scoped rate limit rules.
type RateLimitPolicy struct {
	Account RateLimitRule `yaml:"account"`
	Session RateLimitRule `yaml:"session"`
}

// Policy is one resolvable layer (global, an account override, or a
// session override) of the compliance policy document.
type Policy struct {
	Whitelist []string        `yaml:"whitelist"`
	Blacklist []string        `yaml:"blacklist"`
	StopWords []string        `yaml:"stop_words"`
	RateLimit RateLimitPolicy `yaml:"rate_limit"`
}

// PolicyDocument is the on-disk YAML shape: a global policy plus optional
// per-account and per-session overrides.
type PolicyDocument struct {
	Global   Policy            `yaml:"global"`
	Accounts map[string]Policy `yaml:"accounts"`
	Sessions map[string]Policy `yaml:"sessions"`
}

// Decision is the result of EvaluateBeforeSend.
type Decision struct {
	Allowed     bool
	Blocked     bool
	Reason      string
	Hits        []string
	PolicyScope string
}

// AuditRow is one append-only compliance_audit record.
type AuditRow struct {
	ID          int64
	Actor       string
	AccountID   string
	SessionID   string
	Action      string
	Decision    string
	Blocked     bool
	Hits        string // comma-joined keyword hits
	PolicyScope string
	PolicyVer   string
	CreatedAt   time.Time
}

// ReplayFilter selects a subset of audit rows for Replay.
type ReplayFilter struct {
	AccountID   string
	SessionID   string
	BlockedOnly bool
	Limit       int
}
