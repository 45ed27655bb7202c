package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storefrontlab/review-engine/internal/domain"
	"github.com/storefrontlab/review-engine/internal/platform/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const reviewCollectionName = "reviews"

// ReviewRepository implements domain.ReviewRepository using MongoDB.
type ReviewRepository struct {
	collection *mongo.Collection
	logger     *logger.Logger
}

// NewReviewRepository creates a new MongoDB review repository and ensures the
// ledger's indexes, including the uniqueness constraint on
// (product_id, author_id).
func NewReviewRepository(db *mongo.Database, log *logger.Logger) (*ReviewRepository, error) {
	collection := db.Collection(reviewCollectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "author_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "author_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Error("Failed to create indexes for reviews collection", zap.Error(err))
		// Indexes may already exist; startup continues.
	} else {
		log.Info("Ensured indexes for reviews collection")
	}

	return &ReviewRepository{
		collection: collection,
		logger:     log.Named("ReviewRepository"),
	}, nil
}

// Create inserts a new review. A second review by the same author for the
// same product fails the unique index and surfaces as ErrDuplicateReview.
func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	r.logger.Info("Creating review in DB", zap.String("product_id", review.ProductID), zap.String("author_id", review.AuthorID))

	doc := fromDomainReview(review)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	review.ID = doc.ID

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	review.CreatedAt = now
	review.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Warn("Duplicate key on review creation",
				zap.String("product_id", review.ProductID), zap.String("author_id", review.AuthorID))
			return domain.ErrDuplicateReview
		}
		r.logger.Error("Failed to insert review into DB", zap.Error(err))
		return fmt.Errorf("db insert failed: %w", err)
	}
	r.logger.Info("Review created in DB", zap.String("review_id", doc.ID.Hex()))
	return nil
}

// GetByID retrieves a review by its ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Review, error) {
	r.logger.Debug("Getting review by ID from DB", zap.String("review_id", id.Hex()))
	var doc reviewDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("Failed to get review by ID from DB", zap.Error(err), zap.String("review_id", id.Hex()))
		return nil, fmt.Errorf("db findone failed: %w", err)
	}
	return doc.toDomainReview(), nil
}

// Delete removes a review from the ledger.
func (r *ReviewRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.logger.Info("Deleting review from DB", zap.String("review_id", id.Hex()))
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.Error("Failed to delete review from DB", zap.Error(err), zap.String("review_id", id.Hex()))
		return fmt.Errorf("db delete failed: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus persists a moderation transition.
func (r *ReviewRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status domain.ReviewStatus, note string) error {
	r.logger.Info("Updating review status in DB", zap.String("review_id", id.Hex()), zap.String("status", string(status)))

	update := bson.M{
		"$set": bson.M{
			"status":          string(status),
			"moderation_note": note,
			"updated_at":      time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		r.logger.Error("Failed to update review status in DB", zap.Error(err), zap.String("review_id", id.Hex()))
		return fmt.Errorf("db update failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateBallots persists the full ballot set and derived counts, guarded by
// the expected document version. A concurrent ballot write bumps the version
// and makes this write miss, which surfaces as ErrOptimisticLock so the
// caller can re-read and retry. This is what keeps two simultaneous votes
// from different voters from dropping one another's ballot.
func (r *ReviewRepository) UpdateBallots(ctx context.Context, review *domain.Review, expectedVersion int64) error {
	r.logger.Debug("Updating review ballots in DB",
		zap.String("review_id", review.ID.Hex()), zap.Int64("expected_version", expectedVersion))

	update := bson.M{
		"$set": bson.M{
			"ballots":           review.Ballots,
			"helpful_count":     review.HelpfulCount,
			"not_helpful_count": review.NotHelpfulCount,
			"updated_at":        time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": review.ID, "version": expectedVersion}, update)
	if err != nil {
		r.logger.Error("Failed to update review ballots in DB", zap.Error(err), zap.String("review_id", review.ID.Hex()))
		return fmt.Errorf("db update failed: %w", err)
	}
	if result.MatchedCount == 0 {
		exists, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": review.ID})
		if countErr != nil {
			return fmt.Errorf("db count failed: %w", countErr)
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrOptimisticLock
	}
	review.Version = expectedVersion + 1
	return nil
}

// FindByProductID retrieves reviews for a product with pagination and an
// optional status filter, newest first.
func (r *ReviewRepository) FindByProductID(ctx context.Context, productID string, filter domain.ReviewFilter) ([]*domain.Review, int64, error) {
	query := bson.M{"product_id": productID}
	if filter.Status != nil {
		query["status"] = string(*filter.Status)
	}
	return r.findPage(ctx, query, filter, bson.D{{Key: "created_at", Value: -1}})
}

// FindByAuthorID retrieves reviews written by one author, newest first.
func (r *ReviewRepository) FindByAuthorID(ctx context.Context, authorID string, filter domain.ReviewFilter) ([]*domain.Review, int64, error) {
	query := bson.M{"author_id": authorID}
	if filter.Status != nil {
		query["status"] = string(*filter.Status)
	}
	return r.findPage(ctx, query, filter, bson.D{{Key: "created_at", Value: -1}})
}

// FindAll retrieves reviews across all products and statuses for the admin
// listing.
func (r *ReviewRepository) FindAll(ctx context.Context, filter domain.ReviewFilter) ([]*domain.Review, int64, error) {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = string(*filter.Status)
	}
	return r.findPage(ctx, query, filter, adminSortSpec(filter.Sort))
}

func adminSortSpec(sort domain.AdminSort) bson.D {
	switch sort {
	case domain.AdminSortOldest:
		return bson.D{{Key: "created_at", Value: 1}}
	case domain.AdminSortHighest:
		return bson.D{{Key: "rating", Value: -1}, {Key: "created_at", Value: -1}}
	case domain.AdminSortLowest:
		return bson.D{{Key: "rating", Value: 1}, {Key: "created_at", Value: -1}}
	case domain.AdminSortHelpful:
		return bson.D{{Key: "helpful_count", Value: -1}, {Key: "created_at", Value: -1}}
	default:
		return bson.D{{Key: "created_at", Value: -1}}
	}
}

func (r *ReviewRepository) findPage(ctx context.Context, query bson.M, filter domain.ReviewFilter, sort bson.D) ([]*domain.Review, int64, error) {
	findOptions := options.Find().SetSort(sort)
	if filter.Limit > 0 {
		findOptions.SetLimit(int64(filter.Limit))
		if filter.Page > 0 {
			findOptions.SetSkip(int64(filter.Page-1) * int64(filter.Limit))
		}
	}

	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		r.logger.Error("Failed to find reviews in DB", zap.Error(err), zap.Any("query", query))
		return nil, 0, fmt.Errorf("db find failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*reviewDocument
	if err = cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode reviews from DB", zap.Error(err))
		return nil, 0, fmt.Errorf("db cursor all failed: %w", err)
	}

	reviews := make([]*domain.Review, len(docs))
	for i, doc := range docs {
		reviews[i] = doc.toDomainReview()
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		r.logger.Error("Failed to count reviews in DB", zap.Error(err))
		return nil, 0, fmt.Errorf("db count failed: %w", err)
	}

	return reviews, total, nil
}

// ApprovedRatings returns the rating of every approved review for a product.
// The aggregate maintainer recomputes from this full fresh read on every
// trigger rather than applying deltas.
func (r *ReviewRepository) ApprovedRatings(ctx context.Context, productID string) ([]int32, error) {
	r.logger.Debug("Reading approved ratings", zap.String("product_id", productID))

	query := bson.M{
		"product_id": productID,
		"status":     string(domain.ReviewStatusApproved),
	}
	cursor, err := r.collection.Find(ctx, query, options.Find().SetProjection(bson.M{"rating": 1}))
	if err != nil {
		r.logger.Error("Failed to read approved ratings from DB", zap.Error(err), zap.String("product_id", productID))
		return nil, fmt.Errorf("db find failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Rating int32 `bson:"rating"`
	}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("db cursor all failed: %w", err)
	}

	ratings := make([]int32, len(docs))
	for i, doc := range docs {
		ratings[i] = doc.Rating
	}
	return ratings, nil
}

// CountByStatus returns the number of reviews per status across the ledger.
func (r *ReviewRepository) CountByStatus(ctx context.Context) (map[domain.ReviewStatus]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		r.logger.Error("Failed to aggregate review counts by status", zap.Error(err))
		return nil, fmt.Errorf("db aggregate failed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("db cursor all for aggregate failed: %w", err)
	}

	counts := make(map[domain.ReviewStatus]int64, len(results))
	for _, res := range results {
		counts[domain.ReviewStatus(res.Status)] = res.Count
	}
	return counts, nil
}
