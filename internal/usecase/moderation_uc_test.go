package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/storefrontlab/review-engine/internal/domain"
)

func TestModerate_ApproveRecomputesAggregate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	review, err := env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-1", AuthorID: "user-1", Rating: 5, Body: "Pending arrival."})
	require.NoError(t, err)
	writesBefore := env.products.writeCount()

	moderated, err := env.moderation.Moderate(ctx, review.ID, "mod-1", domain.ReviewStatusApproved, "looks genuine")
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewStatusApproved, moderated.Status)
	assert.Equal(t, "looks genuine", moderated.ModerationNote)

	assert.Equal(t, writesBefore+1, env.products.writeCount())
	agg := env.products.aggregateFor("prod-1")
	assert.Equal(t, 5.0, agg.AverageRating)
	assert.Equal(t, int32(1), agg.ReviewCount)
}

func TestModerate_RejectPendingSkipsRecompute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	review, err := env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-1", AuthorID: "user-1", Rating: 1, Body: "Spammy thing."})
	require.NoError(t, err)

	_, err = env.moderation.Moderate(ctx, review.ID, "mod-1", domain.ReviewStatusRejected, "spam")
	require.NoError(t, err)

	// pending→rejected never crosses the approved boundary.
	assert.Equal(t, 0, env.products.writeCount())
}

func TestModerate_ApprovedToRejectedCrossesBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	review, err := env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-1", AuthorID: "user-1", Rating: 5, Body: "Was approved.", InitialStatus: domain.ReviewStatusApproved})
	require.NoError(t, err)

	_, err = env.moderation.Moderate(ctx, review.ID, "mod-1", domain.ReviewStatusRejected, "retracted")
	require.NoError(t, err)

	agg := env.products.aggregateFor("prod-1")
	assert.Equal(t, 0.0, agg.AverageRating)
	assert.Equal(t, int32(0), agg.ReviewCount)

	// And forward again: rejected→approved restores the contribution.
	_, err = env.moderation.Moderate(ctx, review.ID, "mod-2", domain.ReviewStatusApproved, "appeal upheld")
	require.NoError(t, err)
	agg = env.products.aggregateFor("prod-1")
	assert.Equal(t, 5.0, agg.AverageRating)
	assert.Equal(t, int32(1), agg.ReviewCount)
}

func TestModerate_PendingIsNotATarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	review, err := env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-1", AuthorID: "user-1", Rating: 3, Body: "Leave me be."})
	require.NoError(t, err)

	_, err = env.moderation.Moderate(ctx, review.ID, "mod-1", domain.ReviewStatusPending, "")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = env.moderation.Moderate(ctx, review.ID, "mod-1", domain.ReviewStatus("archived"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestModerate_NoOpSkipsWriteAndEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	review, err := env.ledger.Submit(ctx, SubmitInput{ProductID: "prod-1", AuthorID: "user-1", Rating: 5, Body: "Already there.", InitialStatus: domain.ReviewStatusApproved})
	require.NoError(t, err)
	eventsBefore := len(env.pub.subjects())
	versionBefore := review.Version

	moderated, err := env.moderation.Moderate(ctx, review.ID, "mod-1", domain.ReviewStatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, versionBefore, moderated.Version)
	assert.Len(t, env.pub.subjects(), eventsBefore)
}

func TestModerate_MissingReview(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.moderation.Moderate(context.Background(), newObjectID(t), "mod-1", domain.ReviewStatusApproved, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
