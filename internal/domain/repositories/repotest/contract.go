// Package repotest holds the behavioural tests every ProcessingContextRepository
// implementation must pass.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnquangdev/meeting-minutes/internal/domain/entities"
	"github.com/johnquangdev/meeting-minutes/internal/domain/repositories"
)

// Run executes the contract against repositories built by newRepo
func Run(t *testing.T, newRepo func(t *testing.T) repositories.ProcessingContextRepository) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newRepo(t)) })
	t.Run("ExclusiveRun", func(t *testing.T) { testExclusiveRun(t, newRepo(t)) })
	t.Run("LeaseExpiry", func(t *testing.T) { testLeaseExpiry(t, newRepo(t)) })
	t.Run("Listing", func(t *testing.T) { testListing(t, newRepo(t)) })
}

func newContext(created time.Time) *entities.ProcessingContext {
	pc := entities.NewProcessingContext("uploads/"+uuid.NewString()+".mp3", "meeting.mp3", entities.ContextDocuments{
		Chair:       "Alice",
		MeetingDate: "2024-01-15",
	})
	pc.CreatedAt = created.UTC().Truncate(time.Millisecond)
	return pc
}

func testCreateAndGet(t *testing.T, repo repositories.ProcessingContextRepository) {
	ctx := context.Background()
	pc := newContext(time.Now())
	require.NoError(t, repo.Create(ctx, pc))

	got, err := repo.Get(ctx, pc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pc.ID, got.ID)
	assert.Equal(t, entities.StageUploaded, got.Stage)
	assert.Equal(t, "Alice", got.Inputs.Chair)
	assert.Equal(t, entities.StageStatusCompleted, got.StageRecords[entities.StageUploaded].Status)
	assert.Empty(t, got.ActiveRunID)

	require.ErrorIs(t, repo.Create(ctx, pc), repositories.ErrContextExists)

	missing, err := repo.Get(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testExclusiveRun(t *testing.T, repo repositories.ProcessingContextRepository) {
	ctx := context.Background()
	pc := newContext(time.Now())
	require.NoError(t, repo.Create(ctx, pc))

	ok, err := repo.ClaimRun(ctx, pc.ID, "run-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ClaimRun(ctx, pc.ID, "run-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must be rejected while the lease is live")

	got, err := repo.Get(ctx, pc.ID)
	require.NoError(t, err)
	assert.Equal(t, "run-a", got.ActiveRunID)

	got.DiarizationJobID = "remote-1"
	require.NoError(t, got.Advance(time.Now().UTC()))
	require.ErrorIs(t, repo.Commit(ctx, got, "run-b"), repositories.ErrLeaseLost)
	require.NoError(t, repo.Commit(ctx, got, "run-a"))
	require.NoError(t, repo.RenewRun(ctx, pc.ID, "run-a", time.Minute))

	got, err = repo.Get(ctx, pc.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StageNormalizing, got.Stage)
	assert.Equal(t, "remote-1", got.DiarizationJobID)

	require.ErrorIs(t, repo.ReleaseRun(ctx, pc.ID, "run-b"), repositories.ErrLeaseLost)
	require.NoError(t, repo.ReleaseRun(ctx, pc.ID, "run-a"))

	got, err = repo.Get(ctx, pc.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ActiveRunID)
	require.ErrorIs(t, repo.Commit(ctx, got, "run-a"), repositories.ErrLeaseLost)

	ok, err = repo.ClaimRun(ctx, pc.ID, "run-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testLeaseExpiry(t *testing.T, repo repositories.ProcessingContextRepository) {
	ctx := context.Background()
	pc := newContext(time.Now())
	require.NoError(t, repo.Create(ctx, pc))

	ok, err := repo.ClaimRun(ctx, pc.ID, "run-a", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(150 * time.Millisecond)

	ok, err = repo.ClaimRun(ctx, pc.ID, "run-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "an expired lease can be taken over")

	require.ErrorIs(t, repo.RenewRun(ctx, pc.ID, "run-a", time.Minute), repositories.ErrLeaseLost)
	require.ErrorIs(t, repo.Commit(ctx, pc, "run-a"), repositories.ErrLeaseLost)
}

func testListing(t *testing.T, repo repositories.ProcessingContextRepository) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	older := newContext(base)
	newer := newContext(base.Add(time.Minute))
	done := newContext(base.Add(2 * time.Minute))
	done.Stage = entities.StageDone
	held := newContext(base.Add(3 * time.Minute))

	for _, pc := range []*entities.ProcessingContext{older, newer, done, held} {
		require.NoError(t, repo.Create(ctx, pc))
	}
	ok, err := repo.ClaimRun(ctx, held.ID, "run-held", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	order := positions(all)
	for _, id := range []uuid.UUID{older.ID, newer.ID, done.ID, held.ID} {
		require.Contains(t, order, id)
	}
	assert.Less(t, order[held.ID], order[done.ID])
	assert.Less(t, order[done.ID], order[newer.ID])
	assert.Less(t, order[newer.ID], order[older.ID])

	resumable, err := repo.ListResumable(ctx, 0)
	require.NoError(t, err)
	ids := positions(resumable)
	assert.Contains(t, ids, older.ID)
	assert.Contains(t, ids, newer.ID)
	assert.NotContains(t, ids, done.ID, "terminal contexts are never resumed")
	assert.NotContains(t, ids, held.ID, "contexts with a live lease are not resumable")
}

func positions(list []entities.ProcessingContext) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(list))
	for i, pc := range list {
		out[pc.ID] = i
	}
	return out
}
