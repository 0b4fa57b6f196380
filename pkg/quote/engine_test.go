package quote

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	calls  int32
	fail   bool
	slow   time.Duration
	result Result
}

func (f *fakeRemote) Quote(ctx context.Context, req Request) (Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if f.fail {
		return Result{}, errors.New("remote unavailable")
	}
	if f.result.TotalFee == 0 {
		f.result = Result{TotalFee: 20, Currency: "CNY"}
	}
	return f.result, nil
}

func baseEngineConfig() EngineConfig {
	return EngineConfig{
		Mode:                     "hybrid",
		TimeoutPerAttempt:        50 * time.Millisecond,
		RetryTimes:               1,
		SafetyMargin:             0,
		CircuitFailThreshold:     2,
		CircuitOpenDuration:      time.Minute,
		HalfOpenSuccessThreshold: 1,
		HotCacheTTL:              time.Minute,
		PrimaryCacheTTL:          time.Minute,
		MaxStale:                 time.Minute,
	}
}

func TestEngineUsesRemoteWhenHealthy(t *testing.T) {
	remote := &fakeRemote{result: Result{TotalFee: 15}}
	engine := NewEngine(baseEngineConfig(), remote, nil, nil, nil)

	result, err := engine.GetQuote(context.Background(), Request{Origin: "北京", Destination: "上海", WeightKg: 1})
	require.NoError(t, err)
	assert.Equal(t, "api", result.Provider)
	assert.Equal(t, 15.0, result.TotalFee)
	assert.False(t, result.FallbackUsed)
}

func TestEngineFallsBackToTemplateWhenRemoteNil(t *testing.T) {
	engine := NewEngine(baseEngineConfig(), nil, nil, nil, nil)

	result, err := engine.GetQuote(context.Background(), Request{Origin: "北京", Destination: "北京", WeightKg: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "fallback_template", result.Provider)
	assert.True(t, result.FallbackUsed)
}

func TestEngineFallsBackToCostTableOnRemoteFailure(t *testing.T) {
	remote := &fakeRemote{fail: true}
	costs := &fakeCostProvider{records: []CostRecord{{Courier: "sf", Origin: "北京市", Destination: "上海市", FirstCost: 8, ExtraCost: 2}}}
	engine := NewEngine(baseEngineConfig(), remote, costs, nil, nil)

	result, err := engine.GetQuote(context.Background(), Request{Origin: "北京", Destination: "上海", WeightKg: 1})
	require.NoError(t, err)
	assert.Equal(t, "cost_table", result.Provider)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, "Remote provider temporary failure", result.Snapshot.FallbackReason)
}

func TestEngineFallsBackToTemplateOnRemoteTimeout(t *testing.T) {
	remote := &fakeRemote{slow: 200 * time.Millisecond}
	cfg := baseEngineConfig()
	cfg.TimeoutPerAttempt = 10 * time.Millisecond
	engine := NewEngine(cfg, remote, nil, nil, nil)

	result, err := engine.GetQuote(context.Background(), Request{Origin: "北京", Destination: "北京", WeightKg: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "fallback_template", result.Provider)
	assert.Equal(t, "Remote provider timeout", result.Snapshot.FallbackReason)
}

func TestEngineOpensCircuitAfterRepeatedFailures(t *testing.T) {
	remote := &fakeRemote{fail: true}
	cfg := baseEngineConfig()
	cfg.CircuitFailThreshold = 2
	cfg.RetryTimes = 1
	engine := NewEngine(cfg, remote, nil, nil, nil)
	ctx := context.Background()

	// Two distinct requests (different cache keys) to avoid the cache
	// short-circuiting the remote call on the second attempt.
	_, err := engine.GetQuote(ctx, Request{Origin: "北京", Destination: "上海", WeightKg: 1})
	require.NoError(t, err)
	_, err = engine.GetQuote(ctx, Request{Origin: "北京", Destination: "广州", WeightKg: 1})
	require.NoError(t, err)

	health := engine.HealthCheck()
	assert.Equal(t, "open", health["circuit_state"])

	callsBefore := atomic.LoadInt32(&remote.calls)
	_, err = engine.GetQuote(ctx, Request{Origin: "北京", Destination: "深圳", WeightKg: 1})
	require.NoError(t, err)
	assert.Equal(t, callsBefore, atomic.LoadInt32(&remote.calls), "circuit must be open: no further remote calls")
}

func TestEngineCachesResultOnSecondLookup(t *testing.T) {
	remote := &fakeRemote{result: Result{TotalFee: 15}}
	engine := NewEngine(baseEngineConfig(), remote, nil, nil, nil)
	ctx := context.Background()
	req := Request{Origin: "北京", Destination: "上海", WeightKg: 1}

	_, err := engine.GetQuote(ctx, req)
	require.NoError(t, err)
	result, err := engine.GetQuote(ctx, req)
	require.NoError(t, err)

	assert.True(t, result.CacheHit)
	assert.Equal(t, int32(1), atomic.LoadInt32(&remote.calls))
}

func TestEngineAppliesSafetyMargin(t *testing.T) {
	remote := &fakeRemote{result: Result{TotalFee: 100}}
	cfg := baseEngineConfig()
	cfg.SafetyMargin = 0.1
	engine := NewEngine(cfg, remote, nil, nil, nil)

	result, err := engine.GetQuote(context.Background(), Request{Origin: "北京", Destination: "上海", WeightKg: 1})
	require.NoError(t, err)
	assert.InDelta(t, 110.0, result.TotalFee, 0.001)
}

func TestEnginePrewarmCacheIgnoresFailures(t *testing.T) {
	engine := NewEngine(baseEngineConfig(), nil, nil, nil, nil)
	routes := make([]Request, 25)
	for i := range routes {
		routes[i] = Request{Origin: "北京", Destination: "上海", WeightKg: float64(i)}
	}
	assert.NotPanics(t, func() { engine.PrewarmCache(context.Background(), routes) })
}

func TestEngineSavesSnapshot(t *testing.T) {
	store, err := OpenSnapshotStore(filepath.Join(t.TempDir(), "quotes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	remote := &fakeRemote{result: Result{TotalFee: 18}}
	engine := NewEngine(baseEngineConfig(), remote, nil, store, nil)
	req := Request{Origin: "北京", Destination: "上海", WeightKg: 1}

	_, err = engine.GetQuote(context.Background(), req)
	require.NoError(t, err)

	snapshot, found, err := store.GetLatest(context.Background(), req.CacheKey())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "api", snapshot.Provider)
}

type fakeCostProvider struct {
	records []CostRecord
}

func (f *fakeCostProvider) FindCandidates(_ context.Context, origin, destination, courier string) ([]CostRecord, error) {
	var out []CostRecord
	for _, r := range f.records {
		if r.Origin == origin && r.Destination == destination {
			out = append(out, r)
		}
	}
	return out, nil
}
