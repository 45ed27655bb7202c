package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlab/review-engine/internal/domain"
	"github.com/storefrontlab/review-engine/internal/platform/logger"
	"github.com/storefrontlab/review-engine/internal/platform/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ModerationUsecase drives the review status state machine. A review moves
// pending→approved, pending→rejected, approved→rejected or rejected→approved;
// there is no way back to pending once left, and neither approved nor
// rejected is terminal.
type ModerationUsecase struct {
	repo       domain.ReviewRepository
	maintainer *RatingMaintainer
	pub        EventPublisher
	metrics    *metrics.Manager
	logger     *logger.Logger
}

// NewModerationUsecase creates a new ModerationUsecase.
func NewModerationUsecase(repo domain.ReviewRepository, maintainer *RatingMaintainer, pub EventPublisher, m *metrics.Manager, log *logger.Logger) *ModerationUsecase {
	return &ModerationUsecase{
		repo:       repo,
		maintainer: maintainer,
		pub:        pub,
		metrics:    m,
		logger:     log.Named("ModerationUsecase"),
	}
}

// Moderate transitions a review to newStatus. Admin authorization is enforced
// by the transport layer; the moderatorID is recorded for auditing only.
// When the transition crosses the approved boundary the product aggregate is
// recomputed after the status write and before Moderate returns, so callers
// never observe a stale-aggregate window.
func (uc *ModerationUsecase) Moderate(ctx context.Context, reviewID primitive.ObjectID, moderatorID string, newStatus domain.ReviewStatus, note string) (*domain.Review, error) {
	uc.logger.Info("Moderating review",
		zap.String("review_id", reviewID.Hex()),
		zap.String("moderator_id", moderatorID),
		zap.String("new_status", string(newStatus)))

	if !newStatus.IsModerationTarget() {
		return nil, fmt.Errorf("%w: moderation target must be approved or rejected, got %q", domain.ErrInvalidStatus, newStatus)
	}

	review, err := uc.repo.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	oldStatus := review.Status
	if oldStatus == newStatus && review.ModerationNote == note {
		uc.logger.Info("Moderation is a no-op", zap.String("review_id", reviewID.Hex()), zap.String("status", string(oldStatus)))
		return review, nil
	}

	if err := uc.repo.UpdateStatus(ctx, reviewID, newStatus, note); err != nil {
		return nil, err
	}
	review.Status = newStatus
	review.ModerationNote = note
	review.UpdatedAt = time.Now().UTC()

	// The status write is durable at this point; a crossed boundary must be
	// reflected in the aggregate before returning.
	if domain.CrossesApprovedBoundary(oldStatus, newStatus) {
		if _, err := uc.maintainer.RecomputeUntilDone(ctx, review.ProductID); err != nil {
			return nil, err
		}
	}

	uc.metrics.ModerationActions.WithLabelValues(string(newStatus)).Inc()
	if err := uc.pub.Publish(ctx, "review.moderated", map[string]interface{}{
		"event_id":     uuid.NewString(),
		"review_id":    review.ID.Hex(),
		"moderator_id": moderatorID,
		"product_id":   review.ProductID,
		"old_status":   oldStatus,
		"new_status":   newStatus,
		"note":         note,
		"moderated_at": review.UpdatedAt.Format(time.RFC3339Nano),
	}); err != nil {
		uc.logger.Warn("Failed to publish review.moderated event", zap.Error(err), zap.String("review_id", review.ID.Hex()))
	}

	uc.logger.Info("Review moderated",
		zap.String("review_id", review.ID.Hex()),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(newStatus)))
	return review, nil
}
