package compliance

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const policyVersion = "v1"

// Center evaluates every outbound message against the layered policy and
// records the decision to the append-only audit trail.
type Center struct {
	store  *Store
	policy *policyStore
	logger *slog.Logger

	pollInterval time.Duration
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewCenter constructs a Center backed by store, reading policy YAML from
// policyPath. Call Start to begin the mtime-polling reload loop.
func NewCenter(store *Store, policyPath string, pollInterval time.Duration, logger *slog.Logger) *Center {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Center{
		store:        store,
		policy:       newPolicyStore(policyPath),
		logger:       logger.With("component", "compliance-center"),
		pollInterval: pollInterval,
	}
	if err := c.policy.load(); err != nil {
		c.logger.Warn("initial policy load failed, using defaults", "error", err)
	}
	return c
}

// Start launches the background policy-reload loop. The policy file's mtime
// is polled rather than watched via an fsnotify-style API, matching the
// original tool's reload mechanism.
func (c *Center) Start(ctx context.Context) {
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop halts the reload loop and waits for it to exit.
func (c *Center) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Center) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.policy.load(); err != nil {
				c.logger.Error("policy reload failed", "error", err)
			}
		}
	}
}

// EvaluateBeforeSend evaluates one outbound message and returns the
// decision, always recording it to the audit table first (§4.1: every
// evaluation is audited, even when allowed).
func (c *Center) EvaluateBeforeSend(ctx context.Context, content, actor, accountID, sessionID, action string) (Decision, error) {
	policy, scope := c.policy.resolve(accountID, sessionID)
	lower := strings.ToLower(content)

	decision := Decision{PolicyScope: scope}

	switch {
	case matchAny(lower, policy.Whitelist):
		decision.Allowed = true
		decision.Reason = "whitelist_pass"

	case hits(lower, policy.StopWords) != nil:
		decision.Blocked = true
		decision.Reason = "high_risk_stop_word"
		decision.Hits = hits(lower, policy.StopWords)

	case hits(lower, policy.Blacklist) != nil:
		decision.Blocked = true
		decision.Reason = "blacklist_hit"
		decision.Hits = hits(lower, policy.Blacklist)

	default:
		blocked, reason, err := c.rateLimitBlock(ctx, accountID, sessionID, policy)
		if err != nil {
			return Decision{}, err
		}
		if blocked {
			decision.Blocked = true
			decision.Reason = reason
		} else {
			decision.Allowed = true
			decision.Reason = "pass"
		}
	}

	row := AuditRow{
		Actor: actor, AccountID: accountID, SessionID: sessionID, Action: action,
		Decision: decision.Reason, Blocked: decision.Blocked,
		Hits: strings.Join(decision.Hits, ","), PolicyScope: scope, PolicyVer: policyVersion,
	}
	if _, err := c.store.Insert(ctx, row); err != nil {
		return Decision{}, err
	}

	return decision, nil
}

// rateLimitBlock checks the session-scoped window first (tighter), then the
// account-scoped window, counting prior allowed sends from the audit table.
func (c *Center) rateLimitBlock(ctx context.Context, accountID, sessionID string, policy Policy) (bool, string, error) {
	if sessionID != "" && policy.RateLimit.Session.MaxMessages > 0 {
		window := time.Duration(policy.RateLimit.Session.WindowSeconds) * time.Second
		n, err := c.store.CountWithinWindow(ctx, "session_id", sessionID, window)
		if err != nil {
			return false, "", err
		}
		if n >= policy.RateLimit.Session.MaxMessages {
			return true, reasonRateLimit("session_rate_limit", n, policy.RateLimit.Session.MaxMessages), nil
		}
	}

	if accountID != "" && policy.RateLimit.Account.MaxMessages > 0 {
		window := time.Duration(policy.RateLimit.Account.WindowSeconds) * time.Second
		n, err := c.store.CountWithinWindow(ctx, "account_id", accountID, window)
		if err != nil {
			return false, "", err
		}
		if n >= policy.RateLimit.Account.MaxMessages {
			return true, reasonRateLimit("account_rate_limit", n, policy.RateLimit.Account.MaxMessages), nil
		}
	}

	return false, "", nil
}

// Replay returns recorded audit rows matching filter.
func (c *Center) Replay(ctx context.Context, filter ReplayFilter) ([]AuditRow, error) {
	return c.store.Replay(ctx, filter)
}

func matchAny(lower string, terms []string) bool {
	return hits(lower, terms) != nil
}

func hits(lower string, terms []string) []string {
	var found []string
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) {
			found = append(found, term)
		}
	}
	return found
}

func reasonRateLimit(kind string, n, max int) string {
	return kind + ":" + strconv.Itoa(n) + "/" + strconv.Itoa(max)
}
