package mongodb

import (
	"context"
	"fmt"

	"github.com/storefrontlab/review-engine/internal/domain"
	"github.com/storefrontlab/review-engine/internal/platform/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const productCollectionName = "products"

// ProductRepository implements domain.ProductRepository against the product
// collection. The engine owns only the cached aggregate fields on each
// product document; everything else on the record belongs to the catalog.
type ProductRepository struct {
	collection *mongo.Collection
	logger     *logger.Logger
}

// NewProductRepository creates a new MongoDB product repository.
func NewProductRepository(db *mongo.Database, log *logger.Logger) *ProductRepository {
	return &ProductRepository{
		collection: db.Collection(productCollectionName),
		logger:     log.Named("ProductRepository"),
	}
}

// WriteAggregate persists averageRating and reviewCount on the product
// record. A single UpdateOne keeps the write atomic at the document level,
// which is the only atomicity the recompute path requires.
func (r *ProductRepository) WriteAggregate(ctx context.Context, agg domain.ProductAggregate) error {
	r.logger.Debug("Writing product aggregate",
		zap.String("product_id", agg.ProductID),
		zap.Float64("average_rating", agg.AverageRating),
		zap.Int32("review_count", agg.ReviewCount))

	update := bson.M{
		"$set": bson.M{
			"average_rating": agg.AverageRating,
			"review_count":   agg.ReviewCount,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": agg.ProductID}, update, options.Update().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to write product aggregate", zap.Error(err), zap.String("product_id", agg.ProductID))
		return fmt.Errorf("db update failed: %w", err)
	}
	return nil
}

// PlatformAverageRating returns the mean of average_rating across products
// with at least one approved review, and how many such products exist.
// Products with review_count zero never enter this mean, unlike the
// per-product average which defaults to 0.
func (r *ProductRepository) PlatformAverageRating(ctx context.Context) (float64, int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "review_count", Value: bson.D{{Key: "$gt", Value: 0}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "platform_average", Value: bson.D{{Key: "$avg", Value: "$average_rating"}}},
			{Key: "rated_products", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		r.logger.Error("Failed to aggregate platform average rating", zap.Error(err))
		return 0, 0, fmt.Errorf("db aggregate failed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		PlatformAverage float64 `bson:"platform_average"`
		RatedProducts   int64   `bson:"rated_products"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return 0, 0, fmt.Errorf("db cursor all for aggregate failed: %w", err)
	}

	if len(results) == 0 {
		return 0, 0, nil
	}
	return results[0].PlatformAverage, results[0].RatedProducts, nil
}
