package compliance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compliance.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCenterBlocksStopWord(t *testing.T) {
	store := openTestStore(t)
	center := NewCenter(store, filepath.Join(t.TempDir(), "missing-policy.yaml"), time.Minute, nil)

	decision, err := center.EvaluateBeforeSend(context.Background(), "加我微信细聊", "worker", "acct-1", "sess-1", "message_send")
	require.NoError(t, err)
	assert.True(t, decision.Blocked)
	assert.Equal(t, "high_risk_stop_word", decision.Reason)
}

func TestCenterAllowsOrdinaryReply(t *testing.T) {
	store := openTestStore(t)
	center := NewCenter(store, filepath.Join(t.TempDir(), "missing-policy.yaml"), time.Minute, nil)

	decision, err := center.EvaluateBeforeSend(context.Background(), "您好，宝贝还在的", "worker", "acct-1", "sess-1", "message_send")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.False(t, decision.Blocked)
}

func TestCenterEnforcesSessionRateLimit(t *testing.T) {
	store := openTestStore(t)
	center := NewCenter(store, filepath.Join(t.TempDir(), "missing-policy.yaml"), time.Minute, nil)
	center.policy.doc.Global.RateLimit.Session = RateLimitRule{WindowSeconds: 3600, MaxMessages: 2}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		decision, err := center.EvaluateBeforeSend(ctx, "您好", "worker", "acct-1", "sess-rl", "message_send")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := center.EvaluateBeforeSend(ctx, "您好", "worker", "acct-1", "sess-rl", "message_send")
	require.NoError(t, err)
	assert.True(t, decision.Blocked)
	assert.Contains(t, decision.Reason, "session_rate_limit")
}

func TestCenterEveryEvaluationIsAudited(t *testing.T) {
	store := openTestStore(t)
	center := NewCenter(store, filepath.Join(t.TempDir(), "missing-policy.yaml"), time.Minute, nil)

	ctx := context.Background()
	_, err := center.EvaluateBeforeSend(ctx, "您好", "worker", "acct-2", "sess-2", "message_send")
	require.NoError(t, err)
	_, err = center.EvaluateBeforeSend(ctx, "加我微信", "worker", "acct-2", "sess-2", "message_send")
	require.NoError(t, err)

	rows, err := center.Replay(ctx, ReplayFilter{SessionID: "sess-2"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestCenterAccountPolicyOverridesGlobal(t *testing.T) {
	store := openTestStore(t)
	center := NewCenter(store, filepath.Join(t.TempDir(), "missing-policy.yaml"), time.Minute, nil)
	center.policy.doc.Accounts = map[string]Policy{
		"acct-3": {Blacklist: []string{"刀"}},
	}

	decision, err := center.EvaluateBeforeSend(context.Background(), "能小刀一点吗", "buyer", "acct-3", "sess-3", "message_send")
	require.NoError(t, err)
	assert.True(t, decision.Blocked)
	assert.Equal(t, "blacklist_hit", decision.Reason)
	assert.Equal(t, "account:acct-3", decision.PolicyScope)
}
