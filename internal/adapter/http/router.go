package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/storefrontlab/review-engine/internal/platform/logger"
	"github.com/storefrontlab/review-engine/internal/platform/metrics"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter wires the engine's routes onto a gin engine with tracing,
// logging, CORS and JWT authentication middleware.
func NewRouter(serviceName, jwtSecret string, handler *ReviewHandler, log *logger.Logger, m *metrics.Manager) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(RequestLogger(log, m))
	router.Use(cors.Default())
	router.Use(Authenticate(jwtSecret, log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products/:productId/reviews", handler.ListProductReviews)
		v1.GET("/reviews/:reviewId", handler.GetReview)

		authed := v1.Group("", RequireAuth())
		{
			authed.POST("/products/:productId/reviews", handler.SubmitReview)
			authed.GET("/reviews/mine", handler.ListMyReviews)
			authed.POST("/reviews/:reviewId/vote", handler.CastVote)
			authed.DELETE("/reviews/:reviewId", handler.DeleteReview)
		}

		admin := v1.Group("/admin", RequireAdmin())
		{
			admin.PATCH("/reviews/:reviewId/status", handler.ModerateReview)
			admin.GET("/reviews", handler.ListAdminReviews)
			admin.GET("/reviews/stats", handler.GetStats)
		}
	}

	return router
}
