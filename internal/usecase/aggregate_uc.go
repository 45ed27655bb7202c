package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlab/review-engine/internal/domain"
	"github.com/storefrontlab/review-engine/internal/platform/logger"
	"github.com/storefrontlab/review-engine/internal/platform/metrics"
	"go.uber.org/zap"
)

// EventPublisher publishes domain events to the message broker. Failures are
// logged by callers and never fail the triggering operation.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// recomputeRetryInterval is the pause between recompute attempts after a
// durable write has already landed and only the cached aggregate is stale.
const recomputeRetryInterval = 100 * time.Millisecond

// RatingMaintainer keeps each product's cached {averageRating, reviewCount}
// consistent with its currently-approved review set. Every recompute is a
// full fresh read of the approved set followed by one aggregate write, so the
// operation is idempotent and self-healing: it never trusts a prior cached
// value, and concurrent recomputes for the same product converge.
type RatingMaintainer struct {
	reviews  domain.ReviewRepository
	products domain.ProductRepository
	pub      EventPublisher
	metrics  *metrics.Manager
	logger   *logger.Logger
}

// NewRatingMaintainer creates a new RatingMaintainer.
func NewRatingMaintainer(reviews domain.ReviewRepository, products domain.ProductRepository, pub EventPublisher, m *metrics.Manager, log *logger.Logger) *RatingMaintainer {
	return &RatingMaintainer{
		reviews:  reviews,
		products: products,
		pub:      pub,
		metrics:  m,
		logger:   log.Named("RatingMaintainer"),
	}
}

// Recompute reads every approved review for the product, derives the
// aggregate, and writes it to the product record. An empty approved set
// writes {0, 0}.
func (m *RatingMaintainer) Recompute(ctx context.Context, productID string) (domain.ProductAggregate, error) {
	start := time.Now()

	ratings, err := m.reviews.ApprovedRatings(ctx, productID)
	if err != nil {
		m.logger.Error("Failed to read approved ratings for recompute", zap.String("product_id", productID), zap.Error(err))
		return domain.ProductAggregate{}, fmt.Errorf("%w: reading approved set: %v", domain.ErrRepository, err)
	}

	agg := domain.AggregateOf(productID, ratings)
	if err := m.products.WriteAggregate(ctx, agg); err != nil {
		m.logger.Error("Failed to write product aggregate", zap.String("product_id", productID), zap.Error(err))
		return domain.ProductAggregate{}, fmt.Errorf("%w: writing aggregate: %v", domain.ErrRepository, err)
	}

	m.metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	m.logger.Info("Product aggregate recomputed",
		zap.String("product_id", productID),
		zap.Float64("average_rating", agg.AverageRating),
		zap.Int32("review_count", agg.ReviewCount))

	if err := m.pub.Publish(ctx, "product.rating_recomputed", map[string]interface{}{
		"event_id":       uuid.NewString(),
		"product_id":     productID,
		"average_rating": agg.AverageRating,
		"review_count":   agg.ReviewCount,
		"recomputed_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		m.logger.Warn("Failed to publish product.rating_recomputed event", zap.Error(err), zap.String("product_id", productID))
	}

	return agg, nil
}

// RecomputeUntilDone retries Recompute until it succeeds or the caller's
// deadline expires. It is used after a durable ledger write: the status
// change has already landed, so re-running the idempotent recompute is always
// safe and the only alternative is leaving the cache stale.
func (m *RatingMaintainer) RecomputeUntilDone(ctx context.Context, productID string) (domain.ProductAggregate, error) {
	for {
		agg, err := m.Recompute(ctx, productID)
		if err == nil {
			return agg, nil
		}
		select {
		case <-ctx.Done():
			m.logger.Error("Aggregate recompute abandoned at caller deadline, cache left stale",
				zap.String("product_id", productID), zap.Error(err))
			return domain.ProductAggregate{}, err
		case <-time.After(recomputeRetryInterval):
		}
	}
}

// GetStats returns review counts by status across the whole ledger and the
// platform-wide mean of per-product average ratings. Products with no
// approved reviews are excluded from that mean. Read-only.
func (m *RatingMaintainer) GetStats(ctx context.Context) (*domain.LedgerStats, error) {
	counts, err := m.reviews.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: counting reviews by status: %v", domain.ErrRepository, err)
	}

	platformAvg, _, err := m.products.PlatformAverageRating(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: computing platform average: %v", domain.ErrRepository, err)
	}

	stats := &domain.LedgerStats{
		Pending:               counts[domain.ReviewStatusPending],
		Approved:              counts[domain.ReviewStatusApproved],
		Rejected:              counts[domain.ReviewStatusRejected],
		PlatformAverageRating: domain.Round1(platformAvg),
	}
	stats.Total = stats.Pending + stats.Approved + stats.Rejected
	return stats, nil
}
