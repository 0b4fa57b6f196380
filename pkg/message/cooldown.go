package message

import "time"

// defaultCooldownPolicy mirrors the reference outbound pacing guard: no
// more than one reply every 20 seconds, 20 per hour, 80 per day.
func defaultCooldownPolicy() CooldownPolicy {
	return CooldownPolicy{
		MinIntervalSeconds: 20,
		MaxPerHour:         20,
		MaxPerDay:          80,
		HistoryCap:         200,
	}
}

// evaluateCooldown reports whether a send is allowed given the session's
// recent send history, distinct from and evaluated after the compliance
// center's keyword/rate-limit decision. It checks, in order: minimum
// interval since the last send, hourly cap, daily cap.
func evaluateCooldown(policy CooldownPolicy, state CooldownState, now time.Time) (bool, string) {
	if len(state.SentAt) > 0 {
		last := state.SentAt[len(state.SentAt)-1]
		if now.Sub(last) < time.Duration(policy.MinIntervalSeconds)*time.Second {
			return false, "min_interval"
		}
	}

	hourCount := countSince(state.SentAt, now, time.Hour)
	if hourCount >= policy.MaxPerHour {
		return false, "hour_cap"
	}

	dayCount := countSince(state.SentAt, now, 24*time.Hour)
	if dayCount >= policy.MaxPerDay {
		return false, "day_cap"
	}

	return true, ""
}

func countSince(sentAt []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	count := 0
	for _, t := range sentAt {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// recordSend appends a send timestamp, trimming the history to HistoryCap
// entries so a long-lived session's bookkeeping never grows unbounded.
func recordSend(policy CooldownPolicy, state CooldownState, now time.Time) CooldownState {
	state.SentAt = append(state.SentAt, now)
	if len(state.SentAt) > policy.HistoryCap {
		state.SentAt = state.SentAt[len(state.SentAt)-policy.HistoryCap:]
	}
	return state
}
