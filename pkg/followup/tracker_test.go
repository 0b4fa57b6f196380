package followup

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
	"github.com/G3niusYukki/xianyu-chatops/pkg/workflow"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendText(ctx context.Context, sessionID, text string) error {
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

func newTestPipeline(t *testing.T, sender *fakeSender, policy message.CooldownPolicy) (*message.Pipeline, *memCooldownStore) {
	t.Helper()
	store, err := compliance.OpenStore(filepath.Join(t.TempDir(), "compliance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	center := compliance.NewCenter(store, filepath.Join(t.TempDir(), "missing-policy.yaml"), time.Minute, nil)

	cooldowns := newMemCooldownStore()
	return message.NewPipeline(center, cooldowns, sender, policy, nil), cooldowns
}

func openTestWorkflowStore(t *testing.T) *workflow.Store {
	t.Helper()
	store, err := workflow.OpenStore(filepath.Join(t.TempDir(), "workflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func relaxedPolicy() message.CooldownPolicy {
	return message.CooldownPolicy{MinIntervalSeconds: 0, MaxPerHour: 1000, MaxPerDay: 1000, HistoryCap: 50}
}

func TestTrackerScanEnqueuesFollowupForStalledSession(t *testing.T) {
	wfStore := openTestWorkflowStore(t)
	sender := &fakeSender{}
	pipeline, _ := newTestPipeline(t, sender, relaxedPolicy())
	ctx := context.Background()

	require.NoError(t, wfStore.EnsureSession(ctx, "sess-1"))
	require.NoError(t, wfStore.TransitionState(ctx, "sess-1", workflow.StateReplied, false))

	tracker := NewTracker(Config{QuietPeriod: 0}, wfStore, pipeline, nil, "acct-1", nil)
	require.NoError(t, tracker.Scan(ctx))

	jobs, err := wfStore.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "followup", jobs[0].Stage)
	assert.Equal(t, "sess-1", jobs[0].SessionID)
}

func TestTrackerScanSkipsFreshSessions(t *testing.T) {
	wfStore := openTestWorkflowStore(t)
	sender := &fakeSender{}
	pipeline, _ := newTestPipeline(t, sender, relaxedPolicy())
	ctx := context.Background()

	require.NoError(t, wfStore.EnsureSession(ctx, "sess-2"))
	require.NoError(t, wfStore.TransitionState(ctx, "sess-2", workflow.StateReplied, false))

	tracker := NewTracker(Config{QuietPeriod: time.Hour}, wfStore, pipeline, nil, "acct-1", nil)
	require.NoError(t, tracker.Scan(ctx))

	jobs, err := wfStore.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestTrackerScanSkipsManualTakeoverSessions(t *testing.T) {
	wfStore := openTestWorkflowStore(t)
	sender := &fakeSender{}
	pipeline, _ := newTestPipeline(t, sender, relaxedPolicy())
	ctx := context.Background()

	require.NoError(t, wfStore.EnsureSession(ctx, "sess-3"))
	require.NoError(t, wfStore.TransitionState(ctx, "sess-3", workflow.StateReplied, false))
	require.NoError(t, wfStore.SetManualTakeover(ctx, "sess-3", true))

	tracker := NewTracker(Config{QuietPeriod: 0}, wfStore, pipeline, nil, "acct-1", nil)
	require.NoError(t, tracker.Scan(ctx))

	jobs, err := wfStore.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestTrackerNudgeSendsAndTransitionsToFollowed(t *testing.T) {
	wfStore := openTestWorkflowStore(t)
	sender := &fakeSender{}
	pipeline, _ := newTestPipeline(t, sender, relaxedPolicy())
	ctx := context.Background()

	require.NoError(t, wfStore.EnsureSession(ctx, "sess-4"))
	require.NoError(t, wfStore.TransitionState(ctx, "sess-4", workflow.StateReplied, false))

	tracker := NewTracker(Config{NudgeText: "在吗"}, wfStore, pipeline, nil, "acct-1", nil)
	require.NoError(t, tracker.Nudge(ctx, "sess-4"))

	sender.mu.Lock()
	sent := sender.sent
	sender.mu.Unlock()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "在吗")

	task, err := wfStore.GetSession(ctx, "sess-4")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateFollowed, task.State)
}

func TestTrackerNudgeReturnsErrorWhenBlockedByCooldown(t *testing.T) {
	wfStore := openTestWorkflowStore(t)
	sender := &fakeSender{}
	tightPolicy := message.CooldownPolicy{MinIntervalSeconds: 3600, MaxPerHour: 1000, MaxPerDay: 1000, HistoryCap: 50}
	pipeline, cooldowns := newTestPipeline(t, sender, tightPolicy)
	ctx := context.Background()

	require.NoError(t, wfStore.EnsureSession(ctx, "sess-5"))
	require.NoError(t, wfStore.TransitionState(ctx, "sess-5", workflow.StateReplied, false))
	require.NoError(t, cooldowns.SaveCooldown(ctx, "sess-5", message.CooldownState{SentAt: []time.Time{time.Now()}}))

	tracker := NewTracker(Config{NudgeText: "在吗"}, wfStore, pipeline, nil, "acct-1", nil)
	err := tracker.Nudge(ctx, "sess-5")
	assert.Error(t, err)

	task, err2 := wfStore.GetSession(ctx, "sess-5")
	require.NoError(t, err2)
	assert.Equal(t, workflow.StateReplied, task.State, "state must not advance when the nudge is blocked")
}
