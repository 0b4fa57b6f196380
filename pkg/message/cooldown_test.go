package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCooldownAllowsFirstSend(t *testing.T) {
	allowed, reason := evaluateCooldown(defaultCooldownPolicy(), CooldownState{}, time.Now())
	assert.True(t, allowed)
	assert.Empty(t, reason)
}

func TestEvaluateCooldownBlocksWithinMinInterval(t *testing.T) {
	now := time.Now()
	state := CooldownState{SentAt: []time.Time{now.Add(-5 * time.Second)}}
	policy := CooldownPolicy{MinIntervalSeconds: 20, MaxPerHour: 100, MaxPerDay: 100}

	allowed, reason := evaluateCooldown(policy, state, now)
	assert.False(t, allowed)
	assert.Equal(t, "min_interval", reason)
}

func TestEvaluateCooldownBlocksAtHourCap(t *testing.T) {
	now := time.Now()
	var sentAt []time.Time
	for i := 0; i < 3; i++ {
		sentAt = append(sentAt, now.Add(-time.Duration(i+1)*time.Minute))
	}
	policy := CooldownPolicy{MinIntervalSeconds: 0, MaxPerHour: 3, MaxPerDay: 100}

	allowed, reason := evaluateCooldown(policy, CooldownState{SentAt: sentAt}, now)
	assert.False(t, allowed)
	assert.Equal(t, "hour_cap", reason)
}

func TestEvaluateCooldownBlocksAtDayCap(t *testing.T) {
	now := time.Now()
	var sentAt []time.Time
	for i := 0; i < 3; i++ {
		sentAt = append(sentAt, now.Add(-time.Duration(i+1)*time.Hour))
	}
	policy := CooldownPolicy{MinIntervalSeconds: 0, MaxPerHour: 100, MaxPerDay: 3}

	allowed, reason := evaluateCooldown(policy, CooldownState{SentAt: sentAt}, now)
	assert.False(t, allowed)
	assert.Equal(t, "day_cap", reason)
}

func TestRecordSendTrimsHistory(t *testing.T) {
	policy := CooldownPolicy{HistoryCap: 2}
	state := CooldownState{SentAt: []time.Time{time.Now().Add(-time.Hour)}}

	state = recordSend(policy, state, time.Now())
	assert.Len(t, state.SentAt, 2)

	state = recordSend(policy, state, time.Now())
	assert.Len(t, state.SentAt, 2, "history must never exceed HistoryCap")
}
