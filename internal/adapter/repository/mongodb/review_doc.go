package mongodb

import (
	"time"

	"github.com/storefrontlab/review-engine/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// reviewDocument is the MongoDB representation of a domain.Review. All bson
// mapping lives here so the domain entity stays free of storage tags.
type reviewDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	ProductID         string             `bson:"product_id"`
	AuthorID          string             `bson:"author_id"`
	AuthorDisplayName string             `bson:"author_display_name"`
	Rating            int32              `bson:"rating"`
	Title             string             `bson:"title,omitempty"`
	Body              string             `bson:"body"`
	Status            string             `bson:"status"`
	ModerationNote    string             `bson:"moderation_note,omitempty"`
	Ballots           map[string]bool    `bson:"ballots"`
	HelpfulCount      int32              `bson:"helpful_count"`
	NotHelpfulCount   int32              `bson:"not_helpful_count"`
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
	Version           int64              `bson:"version"`
}

func fromDomainReview(review *domain.Review) *reviewDocument {
	ballots := review.Ballots
	if ballots == nil {
		ballots = make(map[string]bool)
	}
	return &reviewDocument{
		ID:                review.ID,
		ProductID:         review.ProductID,
		AuthorID:          review.AuthorID,
		AuthorDisplayName: review.AuthorDisplayName,
		Rating:            review.Rating,
		Title:             review.Title,
		Body:              review.Body,
		Status:            string(review.Status),
		ModerationNote:    review.ModerationNote,
		Ballots:           ballots,
		HelpfulCount:      review.HelpfulCount,
		NotHelpfulCount:   review.NotHelpfulCount,
		CreatedAt:         review.CreatedAt,
		UpdatedAt:         review.UpdatedAt,
		Version:           review.Version,
	}
}

func (d *reviewDocument) toDomainReview() *domain.Review {
	ballots := d.Ballots
	if ballots == nil {
		ballots = make(map[string]bool)
	}
	return &domain.Review{
		ID:                d.ID,
		ProductID:         d.ProductID,
		AuthorID:          d.AuthorID,
		AuthorDisplayName: d.AuthorDisplayName,
		Rating:            d.Rating,
		Title:             d.Title,
		Body:              d.Body,
		Status:            domain.ReviewStatus(d.Status),
		ModerationNote:    d.ModerationNote,
		Ballots:           ballots,
		HelpfulCount:      d.HelpfulCount,
		NotHelpfulCount:   d.NotHelpfulCount,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		Version:           d.Version,
	}
}
