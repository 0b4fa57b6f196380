package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "workflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnsureSessionIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureSession(ctx, "sess-1"))
	require.NoError(t, store.EnsureSession(ctx, "sess-1"))

	task, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, StateNew, task.State)
	assert.False(t, task.ManualTakeover)
}

func TestTransitionStateAppliesLegalMove(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSession(ctx, "sess-2"))

	require.NoError(t, store.TransitionState(ctx, "sess-2", StateReplied, false))

	task, err := store.GetSession(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, StateReplied, task.State)

	transitions, err := store.GetTransitions(ctx, "sess-2", 0)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "applied", transitions[0].Status)
}

func TestTransitionStateRejectsIllegalMoveWithoutMutating(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSession(ctx, "sess-3"))

	require.NoError(t, store.TransitionState(ctx, "sess-3", StateOrdered, false))
	task, err := store.GetSession(ctx, "sess-3")
	require.NoError(t, err)
	assert.Equal(t, StateNew, task.State, "illegal transition must not mutate state")

	// new -> ordered is not in allowedTransitions.
	assert.False(t, IsAllowed(StateNew, StateOrdered))

	transitions, err := store.GetTransitions(ctx, "sess-3", 0)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "rejected", transitions[0].Status)
}

func TestTransitionStateForceOverridesIllegalMove(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSession(ctx, "sess-4"))

	require.NoError(t, store.TransitionState(ctx, "sess-4", StateOrdered, true))
	task, err := store.GetSession(ctx, "sess-4")
	require.NoError(t, err)
	assert.Equal(t, StateOrdered, task.State)
}

func TestEnqueueJobDeduplicatesByContentHash(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSession(ctx, "sess-5"))

	require.NoError(t, store.EnqueueJob(ctx, "sess-5", "reply", "abc123", `{"text":"hi"}`))
	require.NoError(t, store.EnqueueJob(ctx, "sess-5", "reply", "abc123", `{"text":"hi"}`))

	jobs, err := store.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1, "duplicate enqueue with the same dedupe key must not create a second job")
}

func TestClaimJobsExcludesAlreadyClaimed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSession(ctx, "sess-6"))
	require.NoError(t, store.EnqueueJob(ctx, "sess-6", "reply", "hash-1", "{}"))

	first, err := store.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := store.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second, "a job already leased must not be claimable again")
}

func TestRecoverExpiredJobsReturnsLeaseToPending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSession(ctx, "sess-7"))
	require.NoError(t, store.EnqueueJob(ctx, "sess-7", "reply", "hash-1", "{}"))

	claimed, err := store.ClaimJobs(ctx, 10, -time.Second) // lease already expired
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err := store.RecoverExpiredJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	reclaimed, err := store.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, reclaimed, 1)
}

func TestFailJobReschedulesThenDeadLetters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSession(ctx, "sess-8"))
	require.NoError(t, store.EnqueueJob(ctx, "sess-8", "reply", "hash-1", "{}"))

	jobs, err := store.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	id := jobs[0].ID

	require.NoError(t, store.FailJob(ctx, id, errors.New("boom"), 2, time.Millisecond))

	// Not yet at max_attempts (1 < 2): rescheduled to pending, not dead.
	var job Job
	require.NoError(t, store.db.GetContext(ctx, &job, `SELECT * FROM workflow_jobs WHERE id = ?`, id))
	assert.Equal(t, JobPending, job.Status)
	assert.Equal(t, 1, job.Attempts)

	time.Sleep(5 * time.Millisecond)
	reclaimed, err := store.ClaimJobs(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)

	require.NoError(t, store.FailJob(ctx, id, errors.New("boom again"), 2, time.Millisecond))
	require.NoError(t, store.db.GetContext(ctx, &job, `SELECT * FROM workflow_jobs WHERE id = ?`, id))
	assert.Equal(t, JobDead, job.Status)
	assert.Equal(t, 2, job.Attempts)
}

func TestStateBlobRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSession(ctx, "sess-9"))

	require.NoError(t, store.SetStateBlob(ctx, "sess-9", `{"cooldown":{"sent_at":[]}}`))
	blob, err := store.GetStateBlob(ctx, "sess-9")
	require.NoError(t, err)
	assert.Equal(t, `{"cooldown":{"sent_at":[]}}`, blob)
}

func TestStalledSessionsFindsQuietSessionsOnly(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSession(ctx, "sess-10"))
	require.NoError(t, store.TransitionState(ctx, "sess-10", StateReplied, false))

	fresh, err := store.StalledSessions(ctx, []State{StateReplied}, time.Hour)
	require.NoError(t, err)
	assert.NotContains(t, fresh, "sess-10", "a just-updated session is not yet stalled")

	stalled, err := store.StalledSessions(ctx, []State{StateReplied}, -time.Hour)
	require.NoError(t, err)
	assert.Contains(t, stalled, "sess-10")
}

func TestDedupeKeyTruncatesContentHash(t *testing.T) {
	key := DedupeKey("sess-1", "0123456789abcdef0123456789abcdef", "reply")
	assert.Equal(t, "sess-1:0123456789abcdef:reply", key)
}
