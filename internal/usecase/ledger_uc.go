package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlab/review-engine/internal/domain"
	"github.com/storefrontlab/review-engine/internal/platform/logger"
	"github.com/storefrontlab/review-engine/internal/platform/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// LedgerUsecase implements the review ledger operations: submission,
// deletion, helpfulness voting, and listings.
type LedgerUsecase struct {
	repo       domain.ReviewRepository
	maintainer *RatingMaintainer
	pub        EventPublisher
	metrics    *metrics.Manager
	logger     *logger.Logger
}

// NewLedgerUsecase creates a new LedgerUsecase.
func NewLedgerUsecase(repo domain.ReviewRepository, maintainer *RatingMaintainer, pub EventPublisher, m *metrics.Manager, log *logger.Logger) *LedgerUsecase {
	return &LedgerUsecase{
		repo:       repo,
		maintainer: maintainer,
		pub:        pub,
		metrics:    m,
		logger:     log.Named("LedgerUsecase"),
	}
}

// SubmitInput holds the input parameters for submitting a review.
type SubmitInput struct {
	ProductID         string
	AuthorID          string
	AuthorDisplayName string
	Rating            int32
	Title             string
	Body              string
	InitialStatus     domain.ReviewStatus // defaults to pending when empty
}

// Submit validates and stores a new review. At most one review may exist per
// (product, author) pair. When the review is created directly in approved
// status (verified-purchase fast path) the product aggregate is recomputed
// synchronously before Submit returns.
func (uc *LedgerUsecase) Submit(ctx context.Context, in SubmitInput) (*domain.Review, error) {
	uc.logger.Info("Submitting review",
		zap.String("author_id", in.AuthorID),
		zap.String("product_id", in.ProductID),
		zap.Int32("rating", in.Rating),
		zap.String("initial_status", string(in.InitialStatus)))

	if in.InitialStatus == "" {
		in.InitialStatus = domain.ReviewStatusPending
	}

	review, err := domain.NewReview(in.ProductID, in.AuthorID, in.AuthorDisplayName, in.Rating, in.Title, in.Body, in.InitialStatus)
	if err != nil {
		uc.logger.Warn("Review submission rejected by validation", zap.Error(err))
		return nil, err
	}

	if err := uc.repo.Create(ctx, review); err != nil {
		if errors.Is(err, domain.ErrDuplicateReview) {
			uc.logger.Warn("Duplicate review submission",
				zap.String("author_id", in.AuthorID), zap.String("product_id", in.ProductID))
			return nil, err
		}
		uc.logger.Error("Failed to persist review", zap.Error(err))
		return nil, fmt.Errorf("%w: creating review: %v", domain.ErrRepository, err)
	}

	if review.Status == domain.ReviewStatusApproved {
		if _, err := uc.maintainer.RecomputeUntilDone(ctx, review.ProductID); err != nil {
			return nil, err
		}
	}

	uc.metrics.ReviewsSubmitted.Inc()
	if err := uc.pub.Publish(ctx, "review.submitted", map[string]interface{}{
		"event_id":   uuid.NewString(),
		"review_id":  review.ID.Hex(),
		"author_id":  review.AuthorID,
		"product_id": review.ProductID,
		"rating":     review.Rating,
		"status":     review.Status,
		"created_at": review.CreatedAt.Format(time.RFC3339Nano),
	}); err != nil {
		uc.logger.Warn("Failed to publish review.submitted event", zap.Error(err), zap.String("review_id", review.ID.Hex()))
	}

	uc.logger.Info("Review submitted", zap.String("review_id", review.ID.Hex()), zap.String("status", string(review.Status)))
	return review, nil
}

// GetReview retrieves a review by its ID.
func (uc *LedgerUsecase) GetReview(ctx context.Context, reviewID primitive.ObjectID) (*domain.Review, error) {
	review, err := uc.repo.GetByID(ctx, reviewID)
	if err != nil {
		uc.logger.Error("Failed to get review", zap.Error(err), zap.String("review_id", reviewID.Hex()))
		return nil, err
	}
	return review, nil
}

// Delete removes a review. Only the author or an administrator may delete.
// Deleting an approved review recomputes the product aggregate before the
// delete is considered complete.
func (uc *LedgerUsecase) Delete(ctx context.Context, reviewID primitive.ObjectID, requestingUserID string, isAdmin bool) error {
	uc.logger.Info("Deleting review",
		zap.String("review_id", reviewID.Hex()),
		zap.String("requesting_user_id", requestingUserID),
		zap.Bool("is_admin", isAdmin))

	review, err := uc.repo.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}

	if !review.CanBeDeletedBy(requestingUserID, isAdmin) {
		uc.logger.Warn("User forbidden to delete review",
			zap.String("review_id", reviewID.Hex()),
			zap.String("review_author", review.AuthorID),
			zap.String("requesting_user", requestingUserID))
		return domain.ErrForbidden
	}

	wasApproved := review.Status == domain.ReviewStatusApproved
	if err := uc.repo.Delete(ctx, reviewID); err != nil {
		return err
	}

	if wasApproved {
		if _, err := uc.maintainer.RecomputeUntilDone(ctx, review.ProductID); err != nil {
			return err
		}
	}

	uc.metrics.ReviewsDeleted.Inc()
	if err := uc.pub.Publish(ctx, "review.deleted", map[string]interface{}{
		"event_id":   uuid.NewString(),
		"review_id":  reviewID.Hex(),
		"deleted_by": requestingUserID,
		"product_id": review.ProductID,
		"deleted_at": time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		uc.logger.Warn("Failed to publish review.deleted event", zap.Error(err), zap.String("review_id", reviewID.Hex()))
	}

	uc.logger.Info("Review deleted", zap.String("review_id", reviewID.Hex()))
	return nil
}

// CastVote records one voter's helpful/not-helpful ballot on a review under
// the toggle rule and returns the updated counts. The ballot set is updated
// through a compare-and-retry loop over the review's version so that
// concurrent votes from different voters are never lost. The product
// aggregate is untouched: votes affect only the review's own counts.
func (uc *LedgerUsecase) CastVote(ctx context.Context, reviewID primitive.ObjectID, voterID string, helpful bool) (helpfulCount, notHelpfulCount int32, err error) {
	if voterID == "" {
		return 0, 0, domain.ErrUnauthenticated
	}

	uc.logger.Info("Casting vote",
		zap.String("review_id", reviewID.Hex()),
		zap.String("voter_id", voterID),
		zap.Bool("helpful", helpful))

	for {
		review, err := uc.repo.GetByID(ctx, reviewID)
		if err != nil {
			return 0, 0, err
		}

		expectedVersion := review.Version
		hasBallot := review.CastBallot(voterID, helpful)

		err = uc.repo.UpdateBallots(ctx, review, expectedVersion)
		if err == nil {
			uc.metrics.VotesCast.Inc()
			if pubErr := uc.pub.Publish(ctx, "review.vote_cast", map[string]interface{}{
				"event_id":          uuid.NewString(),
				"review_id":         reviewID.Hex(),
				"voter_id":          voterID,
				"helpful":           helpful,
				"ballot_remains":    hasBallot,
				"helpful_count":     review.HelpfulCount,
				"not_helpful_count": review.NotHelpfulCount,
			}); pubErr != nil {
				uc.logger.Warn("Failed to publish review.vote_cast event", zap.Error(pubErr), zap.String("review_id", reviewID.Hex()))
			}
			return review.HelpfulCount, review.NotHelpfulCount, nil
		}
		if !errors.Is(err, domain.ErrOptimisticLock) {
			return 0, 0, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, 0, ctxErr
		}
		uc.logger.Debug("Vote hit concurrent ballot update, retrying", zap.String("review_id", reviewID.Hex()))
	}
}

// ListForProduct lists a product's approved reviews for public display,
// newest first.
func (uc *LedgerUsecase) ListForProduct(ctx context.Context, productID string, page, limit int32) ([]*domain.Review, int64, error) {
	approved := domain.ReviewStatusApproved
	filter := domain.ReviewFilter{Page: page, Limit: limit, Status: &approved}
	filter.Clamp()
	return uc.repo.FindByProductID(ctx, productID, filter)
}

// ListForAuthor lists one author's own reviews regardless of status.
func (uc *LedgerUsecase) ListForAuthor(ctx context.Context, authorID string, page, limit int32) ([]*domain.Review, int64, error) {
	filter := domain.ReviewFilter{Page: page, Limit: limit}
	filter.Clamp()
	return uc.repo.FindByAuthorID(ctx, authorID, filter)
}

// ListForAdmin lists reviews across all products and statuses with the
// requested sort order.
func (uc *LedgerUsecase) ListForAdmin(ctx context.Context, page, limit int32, sort domain.AdminSort) ([]*domain.Review, int64, error) {
	if sort == "" {
		sort = domain.AdminSortNewest
	}
	if !sort.IsValid() {
		return nil, 0, fmt.Errorf("%w: %q", domain.ErrInvalidSort, sort)
	}
	filter := domain.ReviewFilter{Page: page, Limit: limit, Sort: sort}
	filter.Clamp()
	return uc.repo.FindAll(ctx, filter)
}
