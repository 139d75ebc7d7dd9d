package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/handler"
	"ridedispatch/internal/middleware"
	"ridedispatch/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
// IdempotencyStore and NewRelicApp are optional.
type RouterDeps struct {
	RideHandler      *handler.RideHandler
	OfferHandler     *handler.OfferHandler
	DriverHandler    *handler.DriverHandler
	RiderHandler     *handler.RiderHandler
	RealtimeHandler  *handler.RealtimeHandler
	IdempotencyStore redis.IdempotencyStoreInterface
	NewRelicApp      *newrelic.Application
	Logger           *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rider := middleware.RequireRole(domain.RoleRider)
	driver := middleware.RequireRole(domain.RoleDriver)
	admin := middleware.RequireRole(domain.RoleAdmin)

	// API v1 routes. Idempotency keys are scoped to the caller, so the
	// principal must be resolved first.
	v1 := router.Group("/v1")
	v1.Use(middleware.Principal())
	v1.Use(middleware.IdempotencyMiddleware(deps.IdempotencyStore, deps.Logger))
	{
		v1.GET("/ws", deps.RealtimeHandler.Connect)

		// Ride request routes.
		requests := v1.Group("/ride-requests")
		{
			requests.POST("", rider, deps.RideHandler.Create)
			requests.GET("/:id", deps.RideHandler.Get)
			requests.POST("/:id/respond", driver, deps.RideHandler.Respond)
			requests.POST("/:id/counter-offers/:driverId/accept", rider, deps.RideHandler.AcceptCounterOffer)
			requests.POST("/:id/cancel", rider, deps.RideHandler.Cancel)
			requests.POST("/:id/offers", driver, deps.OfferHandler.Submit)
			requests.GET("/:id/offers", rider, deps.OfferHandler.List)
		}

		// Fare offer routes.
		v1.POST("/offers/:id/respond", rider, deps.OfferHandler.Respond)

		// Driver routes.
		drivers := v1.Group("/drivers/me", driver)
		{
			drivers.GET("", deps.DriverHandler.GetMe)
			drivers.POST("/online", deps.DriverHandler.SetOnline)
			drivers.POST("/location", deps.DriverHandler.UpdateLocation)
			drivers.GET("/ride-requests", deps.RideHandler.ListForDriver)
		}

		// Rider routes.
		riders := v1.Group("/riders/me", rider)
		{
			riders.GET("", deps.RiderHandler.GetMe)
			riders.PUT("", deps.RiderHandler.UpdateMe)
		}

		// Admin routes.
		v1.POST("/admin/drivers/:id/approval", admin, deps.DriverHandler.SetApproval)
	}

	return router
}
