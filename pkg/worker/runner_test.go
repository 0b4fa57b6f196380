package worker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G3niusYukki/xianyu-chatops/pkg/compliance"
	"github.com/G3niusYukki/xianyu-chatops/pkg/message"
	"github.com/G3niusYukki/xianyu-chatops/pkg/quote"
	"github.com/G3niusYukki/xianyu-chatops/pkg/transport"
	"github.com/G3niusYukki/xianyu-chatops/pkg/workflow"
)

type fakeChannel struct {
	mu      sync.Mutex
	pending []transport.UnreadMessage
	sent    []string
}

func (f *fakeChannel) Start(ctx context.Context) error { return nil }
func (f *fakeChannel) Stop() error                     { return nil }
func (f *fakeChannel) IsReady() bool                   { return true }

func (f *fakeChannel) GetUnreadSessions(ctx context.Context) ([]transport.UnreadMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out, nil
}

func (f *fakeChannel) SendText(ctx context.Context, sessionID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sessionID+":"+text)
	return nil
}

type memCooldownStore struct {
	mu     sync.Mutex
	states map[string]message.CooldownState
}

func newMemCooldownStore() *memCooldownStore {
	return &memCooldownStore{states: make(map[string]message.CooldownState)}
}

func (m *memCooldownStore) LoadCooldown(ctx context.Context, sessionID string) (message.CooldownState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[sessionID], nil
}

func (m *memCooldownStore) SaveCooldown(ctx context.Context, sessionID string, state message.CooldownState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[sessionID] = state
	return nil
}

func newTestRunner(t *testing.T, channel *fakeChannel) (*Runner, *workflow.Store) {
	t.Helper()

	wfStore, err := workflow.OpenStore(filepath.Join(t.TempDir(), "workflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = wfStore.Close() })

	complianceStore, err := compliance.OpenStore(filepath.Join(t.TempDir(), "compliance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = complianceStore.Close() })
	center := compliance.NewCenter(complianceStore, filepath.Join(t.TempDir(), "missing-policy.yaml"), time.Minute, nil)

	policy := message.CooldownPolicy{MinIntervalSeconds: 0, MaxPerHour: 1000, MaxPerDay: 1000, HistoryCap: 50}
	cooldowns := newMemCooldownStore()
	pipeline := message.NewPipeline(center, cooldowns, channel, policy, nil)

	engine := quote.NewEngine(quote.EngineConfig{
		Mode:                 "rule_only",
		HotCacheTTL:          time.Minute,
		PrimaryCacheTTL:      time.Minute,
		MaxStale:             time.Minute,
		CircuitOpenDuration:  time.Minute,
		TimeoutPerAttempt:    time.Second,
		RetryTimes:           1,
	}, nil, nil, nil, nil)

	cfg := Config{
		ClaimLimit:           10,
		LeaseDuration:        time.Minute,
		MaxAttempts:          3,
		BaseBackoff:          time.Second,
		AccountID:            "acct-1",
		QuoteValidityMinutes: 30,
		OrderKeywords:        []string{"下单", "已付款"},
		KeywordReplies:       map[string]string{"包邮": "默认不包邮"},
		OriginCity:           "杭州",
	}
	runner := NewRunner(cfg, wfStore, channel, pipeline, engine, nil, nil, cooldowns, nil)
	return runner, wfStore
}

func TestRunnerIngestAndDispatchKeywordReply(t *testing.T) {
	channel := &fakeChannel{pending: []transport.UnreadMessage{{SessionID: "sess-1", Text: "可以包邮不"}}}
	runner, wfStore := newTestRunner(t, channel)
	ctx := context.Background()

	require.NoError(t, runner.runCycle(ctx))

	channel.mu.Lock()
	sent := channel.sent
	channel.mu.Unlock()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "默认不包邮")

	task, err := wfStore.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateReplied, task.State)
}

func TestRunnerIngestSkipsManualTakeoverSessions(t *testing.T) {
	channel := &fakeChannel{}
	runner, wfStore := newTestRunner(t, channel)
	ctx := context.Background()

	require.NoError(t, wfStore.EnsureSession(ctx, "sess-2"))
	require.NoError(t, wfStore.SetManualTakeover(ctx, "sess-2", true))

	require.NoError(t, runner.ingest(ctx, transport.UnreadMessage{SessionID: "sess-2", Text: "你好"}))

	jobs, err := wfStore.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, jobs, "no job should be enqueued for a manually-taken-over session")
}

func TestRunnerIngestDeduplicatesRepeatedMessage(t *testing.T) {
	channel := &fakeChannel{}
	runner, wfStore := newTestRunner(t, channel)
	ctx := context.Background()

	msg := transport.UnreadMessage{SessionID: "sess-3", Text: "你好"}
	require.NoError(t, runner.ingest(ctx, msg))
	require.NoError(t, runner.ingest(ctx, msg))

	jobs, err := wfStore.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestRunnerDispatchSkipsSessionPutIntoManualTakeoverAfterEnqueue(t *testing.T) {
	channel := &fakeChannel{}
	runner, wfStore := newTestRunner(t, channel)
	ctx := context.Background()

	msg := transport.UnreadMessage{SessionID: "sess-5", Text: "可以包邮不"}
	require.NoError(t, runner.ingest(ctx, msg))

	// Manual takeover starts after the job was already enqueued; dispatch
	// must re-check and skip rather than send.
	require.NoError(t, wfStore.SetManualTakeover(ctx, "sess-5", true))

	require.NoError(t, runner.runCycle(ctx))

	channel.mu.Lock()
	sent := channel.sent
	channel.mu.Unlock()
	assert.Empty(t, sent, "a session put into manual takeover after enqueue must never be sent to")

	jobs, err := wfStore.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, jobs, "the skipped job must be marked done, not left pending")
}

func TestRunnerDispatchOrderIntentTransitionsToOrdered(t *testing.T) {
	channel := &fakeChannel{pending: []transport.UnreadMessage{{SessionID: "sess-4", Text: "已付款，麻烦发货"}}}
	runner, wfStore := newTestRunner(t, channel)
	ctx := context.Background()

	// StateNew -> StateOrdered is not a legal direct transition; seed the
	// session at StateReplied first, from which StateOrdered is allowed.
	require.NoError(t, wfStore.EnsureSession(ctx, "sess-4"))
	require.NoError(t, wfStore.TransitionState(ctx, "sess-4", workflow.StateReplied, false))

	require.NoError(t, runner.runCycle(ctx))

	task, err := wfStore.GetSession(ctx, "sess-4")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateOrdered, task.State)
}
