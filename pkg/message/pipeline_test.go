package message

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G3niusYukki/xianyu-chatops/pkg/compliance"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (f *fakeSender) SendText(ctx context.Context, sessionID, text string) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sessionID+":"+text)
	return nil
}

type memCooldownStore struct {
	mu     sync.Mutex
	states map[string]CooldownState
}

func newMemCooldownStore() *memCooldownStore {
	return &memCooldownStore{states: make(map[string]CooldownState)}
}

func (m *memCooldownStore) LoadCooldown(ctx context.Context, sessionID string) (CooldownState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[sessionID], nil
}

func (m *memCooldownStore) SaveCooldown(ctx context.Context, sessionID string, state CooldownState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[sessionID] = state
	return nil
}

func newTestCenter(t *testing.T) *compliance.Center {
	t.Helper()
	store, err := compliance.OpenStore(filepath.Join(t.TempDir(), "compliance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return compliance.NewCenter(store, filepath.Join(t.TempDir(), "missing-policy.yaml"), time.Minute, nil)
}

func TestPipelineSendsWhenAllowed(t *testing.T) {
	center := newTestCenter(t)
	sender := &fakeSender{}
	cooldowns := newMemCooldownStore()
	policy := CooldownPolicy{MinIntervalSeconds: 1, MaxPerHour: 10, MaxPerDay: 10, HistoryCap: 10}

	pipeline := NewPipeline(center, cooldowns, sender, policy, nil)
	decision, err := pipeline.Send(context.Background(), SendParams{AccountID: "acct-1", SessionID: "sess-1", Actor: "worker", ReplyText: "您好，在的"})
	require.NoError(t, err)
	assert.True(t, decision.Sent)
	assert.False(t, decision.Blocked)
	assert.True(t, decision.FirstReplySent)
	assert.Len(t, sender.sent, 1)
}

func TestPipelineBlocksOnCompliance(t *testing.T) {
	center := newTestCenter(t)
	sender := &fakeSender{}
	cooldowns := newMemCooldownStore()
	policy := CooldownPolicy{MinIntervalSeconds: 1, MaxPerHour: 10, MaxPerDay: 10, HistoryCap: 10}

	pipeline := NewPipeline(center, cooldowns, sender, policy, nil)
	decision, err := pipeline.Send(context.Background(), SendParams{AccountID: "acct-1", SessionID: "sess-2", Actor: "worker", ReplyText: "加我微信细聊", IsQuote: true})
	require.NoError(t, err)
	assert.True(t, decision.Blocked)
	assert.Equal(t, "compliance", decision.BlockedBy)
	assert.True(t, decision.BlockedByPolicy)
	assert.False(t, decision.QuoteSuccess, "a quote blocked by policy must never count as a quote success")
	assert.Empty(t, sender.sent)
}

func TestPipelineBlocksOnCooldown(t *testing.T) {
	center := newTestCenter(t)
	sender := &fakeSender{}
	cooldowns := newMemCooldownStore()
	policy := CooldownPolicy{MinIntervalSeconds: 3600, MaxPerHour: 10, MaxPerDay: 10, HistoryCap: 10}

	pipeline := NewPipeline(center, cooldowns, sender, policy, nil)
	ctx := context.Background()

	_, err := pipeline.Send(ctx, SendParams{AccountID: "acct-1", SessionID: "sess-3", Actor: "worker", ReplyText: "您好"})
	require.NoError(t, err)

	decision, err := pipeline.Send(ctx, SendParams{AccountID: "acct-1", SessionID: "sess-3", Actor: "worker", ReplyText: "还在吗"})
	require.NoError(t, err)
	assert.True(t, decision.Blocked)
	assert.Equal(t, "cooldown", decision.BlockedBy)
	assert.Len(t, sender.sent, 1, "only the first send should have gone through")
}
