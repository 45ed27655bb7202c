package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefrontlab/review-engine/internal/domain"
	"github.com/storefrontlab/review-engine/internal/platform/logger"
	"github.com/storefrontlab/review-engine/internal/usecase"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ReviewHandler exposes the review engine's operations over HTTP.
type ReviewHandler struct {
	ledger     *usecase.LedgerUsecase
	moderation *usecase.ModerationUsecase
	maintainer *usecase.RatingMaintainer
	logger     *logger.Logger
}

// NewReviewHandler creates a new HTTP handler for the review engine.
func NewReviewHandler(ledger *usecase.LedgerUsecase, moderation *usecase.ModerationUsecase, maintainer *usecase.RatingMaintainer, log *logger.Logger) *ReviewHandler {
	return &ReviewHandler{
		ledger:     ledger,
		moderation: moderation,
		maintainer: maintainer,
		logger:     log.Named("ReviewHTTPHandler"),
	}
}

// --- Wire Types ---

type reviewResponse struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"productId"`
	AuthorID          string    `json:"authorId"`
	AuthorDisplayName string    `json:"authorDisplayName"`
	Rating            int32     `json:"rating"`
	Title             string    `json:"title,omitempty"`
	Body              string    `json:"body"`
	Status            string    `json:"status"`
	ModerationNote    string    `json:"moderationNote,omitempty"`
	HelpfulCount      int32     `json:"helpfulCount"`
	NotHelpfulCount   int32     `json:"notHelpfulCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toReviewResponse(review *domain.Review) reviewResponse {
	return reviewResponse{
		ID:                review.ID.Hex(),
		ProductID:         review.ProductID,
		AuthorID:          review.AuthorID,
		AuthorDisplayName: review.AuthorDisplayName,
		Rating:            review.Rating,
		Title:             review.Title,
		Body:              review.Body,
		Status:            string(review.Status),
		ModerationNote:    review.ModerationNote,
		HelpfulCount:      review.HelpfulCount,
		NotHelpfulCount:   review.NotHelpfulCount,
		CreatedAt:         review.CreatedAt,
		UpdatedAt:         review.UpdatedAt,
	}
}

type listResponse struct {
	Reviews []reviewResponse `json:"reviews"`
	Total   int64            `json:"total"`
	Page    int32            `json:"page"`
	Limit   int32            `json:"limit"`
}

func toListResponse(reviews []*domain.Review, total int64, page, limit int32) listResponse {
	out := make([]reviewResponse, len(reviews))
	for i, r := range reviews {
		out[i] = toReviewResponse(r)
	}
	return listResponse{Reviews: out, Total: total, Page: page, Limit: limit}
}

// respondError maps domain errors onto HTTP status codes. Authorization
// failures are kept distinct from NotFound so callers cannot probe for the
// existence of other users' reviews.
func (h *ReviewHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrEmptyBody),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidSort):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
	case errors.Is(err, domain.ErrDuplicateReview):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRepository):
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage temporarily unavailable"})
	default:
		h.logger.Error("Unmapped handler error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseReviewID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("reviewId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review ID format"})
		return primitive.NilObjectID, false
	}
	return id, true
}

func pageParams(c *gin.Context) (page, limit int32) {
	if v, err := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 32); err == nil {
		page = int32(v)
	}
	if v, err := strconv.ParseInt(c.DefaultQuery("limit", "10"), 10, 32); err == nil {
		limit = int32(v)
	}
	return page, limit
}

// --- Handlers ---

type submitReviewRequest struct {
	Rating int32  `json:"rating"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Status string `json:"status"`
}

// SubmitReview handles POST /products/:productId/reviews.
func (h *ReviewHandler) SubmitReview(c *gin.Context) {
	var req submitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	initialStatus := domain.ReviewStatusPending
	if req.Status != "" {
		initialStatus = domain.ReviewStatus(req.Status)
	}

	review, err := h.ledger.Submit(c.Request.Context(), usecase.SubmitInput{
		ProductID:         c.Param("productId"),
		AuthorID:          c.GetString(ctxUserIDKey),
		AuthorDisplayName: c.GetString(ctxDisplayNameKey),
		Rating:            req.Rating,
		Title:             req.Title,
		Body:              req.Body,
		InitialStatus:     initialStatus,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toReviewResponse(review))
}

// GetReview handles GET /reviews/:reviewId.
func (h *ReviewHandler) GetReview(c *gin.Context) {
	reviewID, ok := parseReviewID(c)
	if !ok {
		return
	}
	review, err := h.ledger.GetReview(c.Request.Context(), reviewID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReviewResponse(review))
}

// ListProductReviews handles GET /products/:productId/reviews. Public:
// approved reviews only.
func (h *ReviewHandler) ListProductReviews(c *gin.Context) {
	page, limit := pageParams(c)
	reviews, total, err := h.ledger.ListForProduct(c.Request.Context(), c.Param("productId"), page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toListResponse(reviews, total, page, limit))
}

// ListMyReviews handles GET /reviews/mine.
func (h *ReviewHandler) ListMyReviews(c *gin.Context) {
	page, limit := pageParams(c)
	reviews, total, err := h.ledger.ListForAuthor(c.Request.Context(), c.GetString(ctxUserIDKey), page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toListResponse(reviews, total, page, limit))
}

// DeleteReview handles DELETE /reviews/:reviewId.
func (h *ReviewHandler) DeleteReview(c *gin.Context) {
	reviewID, ok := parseReviewID(c)
	if !ok {
		return
	}
	isAdmin := c.GetString(ctxUserRoleKey) == adminRole
	if err := h.ledger.Delete(c.Request.Context(), reviewID, c.GetString(ctxUserIDKey), isAdmin); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type castVoteRequest struct {
	Helpful *bool `json:"helpful"`
}

// CastVote handles POST /reviews/:reviewId/vote.
func (h *ReviewHandler) CastVote(c *gin.Context) {
	reviewID, ok := parseReviewID(c)
	if !ok {
		return
	}
	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Helpful == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "helpful (boolean) is required"})
		return
	}

	helpfulCount, notHelpfulCount, err := h.ledger.CastVote(c.Request.Context(), reviewID, c.GetString(ctxUserIDKey), *req.Helpful)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"helpfulCount":    helpfulCount,
		"notHelpfulCount": notHelpfulCount,
	})
}

type moderateReviewRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// ModerateReview handles PATCH /admin/reviews/:reviewId/status.
func (h *ReviewHandler) ModerateReview(c *gin.Context) {
	reviewID, ok := parseReviewID(c)
	if !ok {
		return
	}
	var req moderateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	review, err := h.moderation.Moderate(c.Request.Context(), reviewID, c.GetString(ctxUserIDKey), domain.ReviewStatus(req.Status), req.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReviewResponse(review))
}

// ListAdminReviews handles GET /admin/reviews. All statuses, sortable.
func (h *ReviewHandler) ListAdminReviews(c *gin.Context) {
	page, limit := pageParams(c)
	sort := domain.AdminSort(c.DefaultQuery("sort", string(domain.AdminSortNewest)))

	reviews, total, err := h.ledger.ListForAdmin(c.Request.Context(), page, limit, sort)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toListResponse(reviews, total, page, limit))
}

// GetStats handles GET /admin/reviews/stats.
func (h *ReviewHandler) GetStats(c *gin.Context) {
	stats, err := h.maintainer.GetStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending":               stats.Pending,
		"approved":              stats.Approved,
		"rejected":              stats.Rejected,
		"total":                 stats.Total,
		"platformAverageRating": stats.PlatformAverageRating,
	})
}
