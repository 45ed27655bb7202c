package domain

import "math"

// ProductAggregate is the cached rating summary stored on a product record.
// It is a materialized view of the product's currently-approved reviews: the
// approved set is the source of truth and these fields are recomputed from it
// in full on every change, never adjusted by deltas.
type ProductAggregate struct {
	ProductID     string
	AverageRating float64
	ReviewCount   int32
}

// Round1 rounds to one decimal place, half away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// AggregateOf computes the aggregate for a set of approved ratings. An empty
// set yields a zero average, distinct from the platform mean which excludes
// unrated products entirely.
func AggregateOf(productID string, ratings []int32) ProductAggregate {
	agg := ProductAggregate{ProductID: productID}
	if len(ratings) == 0 {
		return agg
	}
	var sum int64
	for _, r := range ratings {
		sum += int64(r)
	}
	agg.ReviewCount = int32(len(ratings))
	agg.AverageRating = Round1(float64(sum) / float64(len(ratings)))
	return agg
}

// LedgerStats is the cross-product reporting snapshot: review counts by
// moderation status and the platform-wide mean of per-product average ratings
// over products that have at least one approved review.
type LedgerStats struct {
	Pending               int64
	Approved              int64
	Rejected              int64
	Total                 int64
	PlatformAverageRating float64
}
