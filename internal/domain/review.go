package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Domain Specific Errors ---

var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("entity not found")
	// ErrForbidden indicates that the user is not authorized to perform the action.
	ErrForbidden = errors.New("action forbidden")
	// ErrUnauthenticated indicates that no authenticated user was supplied.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidRating indicates a rating outside the 1-5 range.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrEmptyBody indicates a review submission without body text.
	ErrEmptyBody = errors.New("review body cannot be empty")
	// ErrInvalidStatus indicates a status value not accepted by the operation.
	ErrInvalidStatus = errors.New("invalid review status")
	// ErrInvalidSort indicates an unknown sort order in a listing request.
	ErrInvalidSort = errors.New("invalid sort order")
	// ErrDuplicateReview indicates the author already reviewed this product.
	ErrDuplicateReview = errors.New("review already exists for this author and product")
	// ErrOptimisticLock indicates a conflict due to concurrent modification.
	ErrOptimisticLock = errors.New("optimistic lock conflict: review was modified by another process")
	// ErrRepository indicates a generic data persistence error.
	ErrRepository = errors.New("repository error")
)

// --- Review Status ---

// ReviewStatus represents the moderation status of a review.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// IsValid checks if the ReviewStatus is one of the defined constants.
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected:
		return true
	}
	return false
}

// IsModerationTarget reports whether a moderation action may move a review
// into this status. There is no transition back to pending once left.
func (s ReviewStatus) IsModerationTarget() bool {
	return s == ReviewStatusApproved || s == ReviewStatusRejected
}

// CrossesApprovedBoundary reports whether a transition from oldStatus to
// newStatus changes the set of reviews counting toward a product's aggregate.
// The boundary is crossed iff exactly one of the two statuses is approved.
func CrossesApprovedBoundary(oldStatus, newStatus ReviewStatus) bool {
	return (oldStatus == ReviewStatusApproved) != (newStatus == ReviewStatusApproved)
}

// --- Review Entity ---

// Review is a customer review for a product, together with its moderation
// status and per-voter helpfulness ballots. Ballots map a voter's ID to their
// judgment (true = helpful); a voter holds at most one ballot per review.
// HelpfulCount and NotHelpfulCount are derived from Ballots after every ballot
// mutation, never incremented independently.
type Review struct {
	ID                primitive.ObjectID
	ProductID         string
	AuthorID          string
	AuthorDisplayName string // snapshot at submission time, not re-synced on rename
	Rating            int32
	Title             string
	Body              string
	Status            ReviewStatus
	ModerationNote    string
	Ballots           map[string]bool
	HelpfulCount      int32
	NotHelpfulCount   int32
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64 // for optimistic locking on ballot updates
}

// NewReview validates submission input and builds a new Review. The initial
// status must be pending or approved; a review is never born rejected.
func NewReview(productID, authorID, authorDisplayName string, rating int32, title, body string, initialStatus ReviewStatus) (*Review, error) {
	if authorID == "" {
		return nil, fmt.Errorf("%w: authorID cannot be empty", ErrUnauthenticated)
	}
	if productID == "" {
		return nil, errors.New("productID cannot be empty")
	}
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	if initialStatus != ReviewStatusPending && initialStatus != ReviewStatusApproved {
		return nil, fmt.Errorf("%w: initial status must be pending or approved, got %q", ErrInvalidStatus, initialStatus)
	}

	now := time.Now().UTC()
	return &Review{
		ID:                primitive.NewObjectID(),
		ProductID:         productID,
		AuthorID:          authorID,
		AuthorDisplayName: authorDisplayName,
		Rating:            rating,
		Title:             title,
		Body:              body,
		Status:            initialStatus,
		Ballots:           make(map[string]bool),
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}, nil
}

// CastBallot applies one voter's helpful/not-helpful judgment and returns
// whether a ballot remains for that voter afterwards. Re-casting the identical
// value removes the ballot (toggle-off); casting the opposite value replaces
// it. Counts are recomputed from the ballot set after the mutation.
func (r *Review) CastBallot(voterID string, helpful bool) bool {
	if r.Ballots == nil {
		r.Ballots = make(map[string]bool)
	}
	prior, exists := r.Ballots[voterID]
	if exists && prior == helpful {
		delete(r.Ballots, voterID)
	} else {
		r.Ballots[voterID] = helpful
	}
	r.recountBallots()
	_, remains := r.Ballots[voterID]
	return remains
}

func (r *Review) recountBallots() {
	var helpful, notHelpful int32
	for _, h := range r.Ballots {
		if h {
			helpful++
		} else {
			notHelpful++
		}
	}
	r.HelpfulCount = helpful
	r.NotHelpfulCount = notHelpful
}

// CanBeDeletedBy reports whether the requesting user may delete this review.
// Authors may delete their own reviews; admins may delete any.
func (r *Review) CanBeDeletedBy(requestingUserID string, isAdmin bool) bool {
	return isAdmin || r.AuthorID == requestingUserID
}

// --- Query Types ---

// AdminSort enumerates the sort orders available to the admin listing.
type AdminSort string

const (
	AdminSortNewest  AdminSort = "newest"
	AdminSortOldest  AdminSort = "oldest"
	AdminSortHighest AdminSort = "highest"
	AdminSortLowest  AdminSort = "lowest"
	AdminSortHelpful AdminSort = "helpful"
)

// IsValid checks if the AdminSort is one of the defined constants.
func (s AdminSort) IsValid() bool {
	switch s {
	case AdminSortNewest, AdminSortOldest, AdminSortHighest, AdminSortLowest, AdminSortHelpful:
		return true
	}
	return false
}

const (
	// DefaultPageSize is applied when a listing request omits the limit.
	DefaultPageSize int32 = 10
	// MaxPageSize caps the page size of any listing request.
	MaxPageSize int32 = 100
)

// ReviewFilter holds pagination and filtering parameters for review listings.
type ReviewFilter struct {
	Page   int32
	Limit  int32
	Status *ReviewStatus
	Sort   AdminSort
}

// Clamp normalizes page and limit to positive values within the allowed range.
func (f *ReviewFilter) Clamp() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	} else if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
}
