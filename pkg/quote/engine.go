package quote

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	pricingRuleVersion = "v1.2"
	engineVersion       = "v1"
)

// EngineConfig tunes the quote engine's sources, caching, and breaker.
type EngineConfig struct {
	Mode                     string // rule_only | hybrid
	TimeoutPerAttempt        time.Duration
	RetryTimes               int
	SafetyMargin             float64
	CircuitFailThreshold     int
	CircuitOpenDuration      time.Duration
	HalfOpenSuccessThreshold int
	HotCacheTTL              time.Duration
	PrimaryCacheTTL          time.Duration
	MaxStale                 time.Duration
}

// Engine is the multi-source shipping quote engine (C2).
type Engine struct {
	cfg EngineConfig

	cache    *twoTierCache
	breaker  *circuitBreaker
	remote   RemoteProvider
	costs    CostProvider
	snapshot *SnapshotStore
	logger   *slog.Logger
}

func NewEngine(cfg EngineConfig, remote RemoteProvider, costs CostProvider, snapshotStore *SnapshotStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		cache:    newTwoTierCache(cfg.HotCacheTTL, cfg.PrimaryCacheTTL, cfg.MaxStale),
		breaker:  newCircuitBreaker(cfg.CircuitFailThreshold, cfg.CircuitOpenDuration, cfg.HalfOpenSuccessThreshold),
		remote:   remote,
		costs:    costs,
		snapshot: snapshotStore,
		logger:   logger.With("component", "quote-engine"),
	}
}

// GetQuote resolves a shipping quote, consulting caches before sources and
// never raising: every path returns a Result, falling back all the way to
// the built-in template quote if necessary.
func (e *Engine) GetQuote(ctx context.Context, req Request) (Result, error) {
	norm := normalizeRequest(req)
	key := norm.CacheKey()

	if hit, ok := e.cache.getHot(key); ok {
		hit.CacheHit = true
		return hit, nil
	}

	if value, fresh, stale, found := e.cache.getPrimary(key); found {
		if fresh {
			value.CacheHit = true
			return value, nil
		}
		if stale {
			value.CacheHit = true
			value.Stale = true
			go e.refreshInBackground(context.Background(), norm, key)
			return value, nil
		}
	}

	start := time.Now()
	result := e.quoteMultiSource(ctx, norm)
	result.TotalFee *= 1 + e.cfg.SafetyMargin
	result.Snapshot.LatencyMs = time.Since(start).Milliseconds()
	result.Snapshot.PricingRuleVersion = pricingRuleVersion
	if result.Explain == nil {
		result.Explain = map[string]any{}
	}
	result.Explain["normalized_origin"] = norm.Origin
	result.Explain["normalized_destination"] = norm.Destination
	result.Explain["engine_version"] = engineVersion
	result.Explain["courier"] = norm.Courier

	e.cache.set(key, result)
	if e.snapshot != nil {
		if err := e.snapshot.Save(ctx, key, result); err != nil {
			e.logger.Warn("save quote snapshot failed", "error", err)
		}
	}

	return result, nil
}

func (e *Engine) refreshInBackground(ctx context.Context, req Request, key string) {
	result := e.quoteMultiSource(ctx, req)
	result.TotalFee *= 1 + e.cfg.SafetyMargin
	e.cache.set(key, result)
	if e.snapshot != nil {
		if err := e.snapshot.Save(ctx, key, result); err != nil {
			e.logger.Warn("background refresh snapshot save failed", "error", err)
		}
	}
}

func (e *Engine) quoteMultiSource(ctx context.Context, req Request) Result {
	if e.cfg.Mode == "rule_only" || e.remote == nil {
		return e.fallbackChain(ctx, req, nil, "")
	}

	if !e.breaker.allow() {
		return e.fallbackChain(ctx, req, nil, "circuit_open")
	}

	lastTimedOut := false
	attempts := e.cfg.RetryTimes
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.TimeoutPerAttempt)
		result, err := e.remote.Quote(attemptCtx, req)
		lastTimedOut = errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			e.breaker.recordSuccess()
			result.Provider = "api"
			result.Snapshot.ProviderChain = []string{"api"}
			return result
		}
	}
	e.breaker.recordFailure()

	reason := "Remote provider temporary failure"
	if lastTimedOut {
		reason = "Remote provider timeout"
	}
	return e.fallbackChain(ctx, req, []string{}, reason)
}

// fallbackChain is invoked when the remote source is skipped or failed. It
// never raises: hot cache, then cost_table, then the built-in template.
func (e *Engine) fallbackChain(ctx context.Context, req Request, chain []string, fallbackReason string) Result {
	chain = append(chain, "hot_cache_miss")

	if hit, ok := e.cache.getHot(req.CacheKey()); ok {
		hit.FallbackUsed = true
		hit.Snapshot.ProviderChain = chain
		hit.Snapshot.FallbackReason = fallbackReason
		return hit
	}

	chain = append(chain, "cost_table")
	if e.costs != nil {
		records, err := e.costs.FindCandidates(ctx, req.Origin, req.Destination, req.Courier)
		if err == nil {
			if result, ok := costTableQuote(req, records); ok {
				result.FallbackUsed = true
				result.Snapshot.ProviderChain = chain
				result.Snapshot.FallbackReason = fallbackReason
				result.Snapshot.CostSource = "cost_table"
				return result
			}
		}
	}

	chain = append(chain, "fallback_template")
	result := templateQuote(req)
	result.Snapshot.ProviderChain = chain
	result.Snapshot.FallbackReason = fallbackReason
	result.Snapshot.CostSource = "fallback_template"
	return result
}

// PrewarmCache quotes the first 20 of routes (all of them if fewer) exactly
// as given, each with its own weight; no standard weight is substituted.
// Failures are logged but never abort the batch.
func (e *Engine) PrewarmCache(ctx context.Context, routes []Request) {
	limit := len(routes)
	if limit > 20 {
		limit = 20
	}
	for _, req := range routes[:limit] {
		if _, err := e.GetQuote(ctx, req); err != nil {
			e.logger.Warn("prewarm route failed", "origin", req.Origin, "destination", req.Destination, "error", err)
		}
	}
}

// HealthCheck reports circuit and cache state for operator tooling.
func (e *Engine) HealthCheck() map[string]any {
	state, failCount := e.breaker.snapshot()
	return map[string]any{
		"engine_version":  engineVersion,
		"circuit_state":   state.String(),
		"circuit_fails":   failCount,
		"hot_cache_size":  e.cache.size(),
	}
}
