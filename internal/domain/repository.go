package domain

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReviewRepository defines the interface for review ledger persistence.
// Methods operate on the clean domain.Review entity, without any direct
// knowledge of database-specific tags or structures.
type ReviewRepository interface {
	Create(ctx context.Context, review *Review) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*Review, error)
	Delete(ctx context.Context, id primitive.ObjectID) error

	// UpdateStatus persists a moderation transition.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status ReviewStatus, note string) error

	// UpdateBallots persists a review's full ballot set and derived counts,
	// guarded by the expected version. Returns ErrOptimisticLock when the
	// stored version no longer matches, so callers can re-read and retry.
	UpdateBallots(ctx context.Context, review *Review, expectedVersion int64) error

	// FindByProductID retrieves reviews for a product with pagination and an
	// optional status filter. Returns reviews and the total matching count.
	FindByProductID(ctx context.Context, productID string, filter ReviewFilter) ([]*Review, int64, error)

	// FindByAuthorID retrieves reviews written by one author, newest first.
	FindByAuthorID(ctx context.Context, authorID string, filter ReviewFilter) ([]*Review, int64, error)

	// FindAll retrieves reviews across all products and statuses for the
	// admin listing, honoring filter.Sort.
	FindAll(ctx context.Context, filter ReviewFilter) ([]*Review, int64, error)

	// ApprovedRatings returns the rating values of every approved review for
	// a product. This is the full fresh read the aggregate maintainer
	// recomputes from.
	ApprovedRatings(ctx context.Context, productID string) ([]int32, error)

	// CountByStatus returns the number of reviews per status across the ledger.
	CountByStatus(ctx context.Context) (map[ReviewStatus]int64, error)
}

// ProductRepository is the engine's view of the externally-owned product
// store. The engine only ever writes the cached aggregate fields and reads
// them back in bulk for platform-wide reporting.
type ProductRepository interface {
	// WriteAggregate persists averageRating and reviewCount on the product
	// record. The write must be atomic at the document level.
	WriteAggregate(ctx context.Context, agg ProductAggregate) error

	// PlatformAverageRating returns the mean averageRating across products
	// with reviewCount > 0, and how many such products exist.
	PlatformAverageRating(ctx context.Context) (float64, int64, error)
}
