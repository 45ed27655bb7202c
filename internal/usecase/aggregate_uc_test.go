package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/storefrontlab/review-engine/internal/domain"
)

func TestRecompute_EmptyApprovedSetWritesZeros(t *testing.T) {
	env := newTestEnv(t)

	agg, err := env.maintainer.Recompute(context.Background(), "prod-empty")
	require.NoError(t, err)
	assert.Equal(t, domain.ProductAggregate{ProductID: "prod-empty"}, agg)
	assert.Equal(t, 1, env.products.writeCount())
}

func TestRecompute_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-1", AuthorID: "user-1", Rating: 4, Body: "Counted once.", InitialStatus: domain.ReviewStatusApproved})
	require.NoError(t, err)

	first, err := env.maintainer.Recompute(ctx, "prod-1")
	require.NoError(t, err)
	second, err := env.maintainer.Recompute(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 4.0, second.AverageRating)
	assert.Equal(t, int32(1), second.ReviewCount)
}

func TestRecompute_RoundsHalfAwayFromZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Three 1s and one 2 give a mean of 1.25, which rounds up to 1.3.
	ratings := []int32{1, 1, 1, 2}
	for i, r := range ratings {
		_, err := env.ledger.Submit(ctx, SubmitInput{
			ProductID:     "prod-1",
			AuthorID:      string(rune('a' + i)),
			Rating:        r,
			Body:          "Rating sample.",
			InitialStatus: domain.ReviewStatusApproved,
		})
		require.NoError(t, err)
	}

	agg, err := env.maintainer.Recompute(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 1.3, agg.AverageRating)
	assert.Equal(t, int32(4), agg.ReviewCount)
}

func TestRecomputeUntilDone_RetriesTransientFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-1", AuthorID: "user-1", Rating: 3, Body: "Survives a hiccup.", InitialStatus: domain.ReviewStatusApproved})
	require.NoError(t, err)

	env.products.failWrites = 2
	agg, err := env.maintainer.RecomputeUntilDone(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, agg.AverageRating)
	assert.Equal(t, int32(1), agg.ReviewCount)
}

func TestRecomputeUntilDone_GivesUpAtDeadline(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	env.products.failWrites = 1000
	_, err := env.maintainer.RecomputeUntilDone(ctx, "prod-1")
	assert.ErrorIs(t, err, domain.ErrRepository)
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-1", AuthorID: "user-1", Rating: 4, Body: "Approved.", InitialStatus: domain.ReviewStatusApproved})
	require.NoError(t, err)
	_, err = env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-2", AuthorID: "user-1", Rating: 2, Body: "Approved elsewhere.", InitialStatus: domain.ReviewStatusApproved})
	require.NoError(t, err)
	_, err = env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-1", AuthorID: "user-2", Rating: 1, Body: "Pending."})
	require.NoError(t, err)
	rejected, err := env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-3", AuthorID: "user-3", Rating: 1, Body: "Bad faith."})
	require.NoError(t, err)
	_, err = env.moderation.Moderate(ctx, rejected.ID, "mod-1", domain.ReviewStatusRejected, "spam")
	require.NoError(t, err)

	stats, err := env.maintainer.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(2), stats.Approved)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, int64(4), stats.Total)

	// prod-1 averages 4.0 and prod-2 averages 2.0; products with no
	// approved reviews are left out of the platform mean.
	assert.Equal(t, 3.0, stats.PlatformAverageRating)
}

func TestGetStats_EmptyLedger(t *testing.T) {
	env := newTestEnv(t)

	stats, err := env.maintainer.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
	assert.Equal(t, 0.0, stats.PlatformAverageRating)
}
