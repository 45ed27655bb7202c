package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/storefrontlab/review-engine/internal/domain"
	"github.com/storefrontlab/review-engine/internal/platform/logger"
	"github.com/storefrontlab/review-engine/internal/platform/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeReviewRepo is an in-memory domain.ReviewRepository. It stores deep
// copies so callers mutating a returned Review cannot bypass UpdateBallots,
// and enforces the same version guard as the Mongo implementation.
type fakeReviewRepo struct {
	mu      sync.Mutex
	reviews map[primitive.ObjectID]*domain.Review

	// ballotConflicts makes the next N UpdateBallots calls fail with
	// ErrOptimisticLock while still applying the concurrent bump, to
	// exercise the vote retry loop.
	ballotConflicts int
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{reviews: make(map[primitive.ObjectID]*domain.Review)}
}

func cloneReview(r *domain.Review) *domain.Review {
	clone := *r
	clone.Ballots = make(map[string]bool, len(r.Ballots))
	for k, v := range r.Ballots {
		clone.Ballots[k] = v
	}
	return &clone
}

func (f *fakeReviewRepo) Create(_ context.Context, review *domain.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.reviews {
		if existing.ProductID == review.ProductID && existing.AuthorID == review.AuthorID {
			return domain.ErrDuplicateReview
		}
	}
	f.reviews[review.ID] = cloneReview(review)
	return nil
}

func (f *fakeReviewRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	review, ok := f.reviews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneReview(review), nil
}

func (f *fakeReviewRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reviews[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.reviews, id)
	return nil
}

func (f *fakeReviewRepo) UpdateStatus(_ context.Context, id primitive.ObjectID, status domain.ReviewStatus, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	review, ok := f.reviews[id]
	if !ok {
		return domain.ErrNotFound
	}
	review.Status = status
	review.ModerationNote = note
	review.Version++
	return nil
}

func (f *fakeReviewRepo) UpdateBallots(_ context.Context, review *domain.Review, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.reviews[review.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if f.ballotConflicts > 0 {
		f.ballotConflicts--
		stored.Version++ // simulate the concurrent writer that won
		return domain.ErrOptimisticLock
	}
	if stored.Version != expectedVersion {
		return domain.ErrOptimisticLock
	}
	stored.Ballots = make(map[string]bool, len(review.Ballots))
	for k, v := range review.Ballots {
		stored.Ballots[k] = v
	}
	stored.HelpfulCount = review.HelpfulCount
	stored.NotHelpfulCount = review.NotHelpfulCount
	stored.Version = expectedVersion + 1
	review.Version = stored.Version
	return nil
}

func (f *fakeReviewRepo) FindByProductID(_ context.Context, productID string, filter domain.ReviewFilter) ([]*domain.Review, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*domain.Review
	for _, r := range f.reviews {
		if r.ProductID != productID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		matched = append(matched, cloneReview(r))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return paginate(matched, filter), int64(len(matched)), nil
}

func (f *fakeReviewRepo) FindByAuthorID(_ context.Context, authorID string, filter domain.ReviewFilter) ([]*domain.Review, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*domain.Review
	for _, r := range f.reviews {
		if r.AuthorID == authorID {
			matched = append(matched, cloneReview(r))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return paginate(matched, filter), int64(len(matched)), nil
}

func (f *fakeReviewRepo) FindAll(_ context.Context, filter domain.ReviewFilter) ([]*domain.Review, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*domain.Review
	for _, r := range f.reviews {
		matched = append(matched, cloneReview(r))
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch filter.Sort {
		case domain.AdminSortOldest:
			return a.CreatedAt.Before(b.CreatedAt)
		case domain.AdminSortHighest:
			return a.Rating > b.Rating
		case domain.AdminSortLowest:
			return a.Rating < b.Rating
		case domain.AdminSortHelpful:
			return a.HelpfulCount > b.HelpfulCount
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return paginate(matched, filter), int64(len(matched)), nil
}

func (f *fakeReviewRepo) ApprovedRatings(_ context.Context, productID string) ([]int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ratings []int32
	for _, r := range f.reviews {
		if r.ProductID == productID && r.Status == domain.ReviewStatusApproved {
			ratings = append(ratings, r.Rating)
		}
	}
	return ratings, nil
}

func (f *fakeReviewRepo) CountByStatus(_ context.Context) (map[domain.ReviewStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[domain.ReviewStatus]int64)
	for _, r := range f.reviews {
		counts[r.Status]++
	}
	return counts, nil
}

func paginate(reviews []*domain.Review, filter domain.ReviewFilter) []*domain.Review {
	if filter.Limit <= 0 {
		return reviews
	}
	start := int(filter.Page-1) * int(filter.Limit)
	if start >= len(reviews) {
		return nil
	}
	end := start + int(filter.Limit)
	if end > len(reviews) {
		end = len(reviews)
	}
	return reviews[start:end]
}

// fakeProductRepo is an in-memory domain.ProductRepository.
type fakeProductRepo struct {
	mu         sync.Mutex
	aggregates map[string]domain.ProductAggregate
	writes     int

	// failWrites makes the next N WriteAggregate calls fail, to exercise
	// the recompute retry path.
	failWrites int
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{aggregates: make(map[string]domain.ProductAggregate)}
}

func (f *fakeProductRepo) WriteAggregate(_ context.Context, agg domain.ProductAggregate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites > 0 {
		f.failWrites--
		return errors.New("simulated storage failure")
	}
	f.aggregates[agg.ProductID] = agg
	f.writes++
	return nil
}

func (f *fakeProductRepo) PlatformAverageRating(_ context.Context) (float64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum float64
	var count int64
	for _, agg := range f.aggregates {
		if agg.ReviewCount > 0 {
			sum += agg.AverageRating
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return sum / float64(count), count, nil
}

func (f *fakeProductRepo) aggregateFor(productID string) domain.ProductAggregate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aggregates[productID]
}

func (f *fakeProductRepo) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Subject string
	Data    interface{}
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Subject: subject, Data: data})
	return nil
}

func (f *fakePublisher) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Subject
	}
	return out
}

func newObjectID(t *testing.T) primitive.ObjectID {
	t.Helper()
	return primitive.NewObjectID()
}

type testEnv struct {
	repo       *fakeReviewRepo
	products   *fakeProductRepo
	pub        *fakePublisher
	maintainer *RatingMaintainer
	ledger     *LedgerUsecase
	moderation *ModerationUsecase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewLogger()
	m := metrics.NewManager("test")
	repo := newFakeReviewRepo()
	products := newFakeProductRepo()
	pub := &fakePublisher{}
	maintainer := NewRatingMaintainer(repo, products, pub, m, log)
	return &testEnv{
		repo:       repo,
		products:   products,
		pub:        pub,
		maintainer: maintainer,
		ledger:     NewLedgerUsecase(repo, maintainer, pub, m, log),
		moderation: NewModerationUsecase(repo, maintainer, pub, m, log),
	}
}
