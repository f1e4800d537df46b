// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusride/internal/http/handlers"
	"campusride/internal/http/middleware"
	"campusride/internal/idempotency"
	"campusride/internal/infra"
	"campusride/internal/maps"
	"campusride/internal/metrics"
	"campusride/internal/modules/booking"
	"campusride/internal/modules/chat"
	"campusride/internal/modules/earnings"
	"campusride/internal/modules/matching"
	"campusride/internal/modules/offer"
	"campusride/internal/modules/pricing"
	"campusride/internal/modules/profile"
	"campusride/internal/modules/rating"
	"campusride/internal/modules/settlement"
)

type RouterDeps struct {
	Verifier    infra.TokenVerifier
	Idempotency idempotency.Reserver
	Bookings    *booking.Service
	Offers      *offer.Service
	Chat        *chat.Service
	Settlement  *settlement.Service
	Ratings     *rating.Service
	Earnings    *earnings.Service
	Matching    *matching.Service
	Profiles    *profile.Directory
	Pricing     *pricing.Service
	Routes      *maps.RouteService
	// Places may be nil when no maps key is configured.
	Places   handlers.PlaceSearcher
	Location *time.Location
	Currency string
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging(), metrics.Middleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", idempotency.HeaderKey},
		ExposeHeaders:    []string{"Content-Length", idempotency.HeaderReplay},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(d.Verifier))
	if d.Idempotency != nil {
		api.Use(idempotency.Middleware(d.Idempotency, middleware.CallerUID))
	}
	driverOnly := middleware.RequireRole(middleware.RoleDriver)

	bookingHandler := handlers.NewBookingHandler(d.Bookings, d.Settlement)
	api.POST("/bookings", bookingHandler.Create)
	api.GET("/bookings", bookingHandler.Mine)
	api.GET("/bookings/active", bookingHandler.Active)
	api.GET("/bookings/open", driverOnly, bookingHandler.Open)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.POST("/bookings/:id/status", bookingHandler.UpdateStatus)
	api.POST("/bookings/:id/cancel", bookingHandler.Cancel)
	api.POST("/bookings/:id/arrived", driverOnly, bookingHandler.Arrived)
	api.POST("/bookings/:id/payment", bookingHandler.ConfirmPayment)
	api.POST("/bookings/:id/complete", driverOnly, bookingHandler.Complete)
	api.GET("/bookings/:id/journey", bookingHandler.Journey)

	offerHandler := handlers.NewOfferHandler(d.Offers, d.Profiles, d.Currency)
	api.POST("/bookings/:id/offers", driverOnly, offerHandler.Submit)
	api.GET("/bookings/:id/offers", offerHandler.List)
	api.POST("/bookings/:id/offers/:offerId/accept", offerHandler.Accept)

	ratingHandler := handlers.NewRatingHandler(d.Ratings)
	api.POST("/bookings/:id/rating", ratingHandler.Submit)
	api.GET("/drivers/:id/stats", ratingHandler.DriverStats)
	api.GET("/drivers/:id/ratings", ratingHandler.DriverRatings)

	earningsHandler := handlers.NewEarningsHandler(d.Earnings, d.Location)
	api.GET("/drivers/:id/earnings", driverOnly, earningsHandler.Get)

	driverHandler := handlers.NewDriverHandler(d.Matching, d.Settlement)
	api.PUT("/drivers/me/location", driverOnly, driverHandler.UpdateLocation)
	api.DELETE("/drivers/me/location", driverOnly, driverHandler.GoOffline)
	api.GET("/drivers/me/journeys", driverOnly, driverHandler.Journeys)

	chatHandler := handlers.NewChatHandler(d.Chat)
	api.GET("/chats/:id", chatHandler.Room)
	api.GET("/chats/:id/messages", chatHandler.Messages)
	api.POST("/chats/:id/messages", chatHandler.Send)
	api.POST("/chats/:id/read", chatHandler.MarkRead)

	profileHandler := handlers.NewProfileHandler(d.Profiles)
	api.GET("/me/profile", profileHandler.Get)
	api.PUT("/me/profile", profileHandler.Save)

	locationHandler := handlers.NewLocationHandler(d.Places, d.Routes, d.Pricing)
	api.GET("/places", locationHandler.SearchPlaces)
	api.GET("/fares/quote", locationHandler.Quote)

	watchHandler := handlers.NewWatchHandler(d.Bookings, d.Offers, d.Chat)
	ws := r.Group("/ws", middleware.Auth(d.Verifier))
	ws.GET("/bookings/open", driverOnly, watchHandler.OpenBookings)
	ws.GET("/bookings/:id", watchHandler.Booking)
	ws.GET("/bookings/:id/offers", watchHandler.Offers)
	ws.GET("/chats/:id", watchHandler.Chat)

	return r
}
