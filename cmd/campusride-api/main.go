// README: Entry point; loads config, wires stores, services and observers, serves HTTP until signalled.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/config"
	"campusride/internal/docstore"
	httptransport "campusride/internal/http"
	"campusride/internal/http/handlers"
	"campusride/internal/idempotency"
	"campusride/internal/infra"
	"campusride/internal/maps"
	"campusride/internal/modules/activity"
	"campusride/internal/modules/booking"
	"campusride/internal/modules/chat"
	"campusride/internal/modules/earnings"
	"campusride/internal/modules/matching"
	"campusride/internal/modules/notify"
	"campusride/internal/modules/offer"
	"campusride/internal/modules/pricing"
	"campusride/internal/modules/profile"
	"campusride/internal/modules/rating"
	"campusride/internal/modules/settlement"
)

const shutdownGrace = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	gin.SetMode(cfg.HTTP.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("CAMPUSRIDE_FIREBASE_PROJECT_ID is required")
	}
	fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatalf("firebase init: %v", err)
	}
	defer fb.Close()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	var routes *maps.RouteService
	var places handlers.PlaceSearcher
	if cfg.Maps.APIKey != "" {
		if routes, err = maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region); err != nil {
			log.Fatalf("maps init: %v", err)
		}
		placesSvc, err := maps.NewPlacesService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			log.Fatalf("places init: %v", err)
		}
		places = placesSvc
	} else {
		log.Println("CAMPUSRIDE_MAPS_API_KEY not set; routes fall back to straight lines")
	}

	docs := docstore.NewFirestore(fb.Firestore)

	pricingSvc := pricing.NewService(
		pricing.Bounds{Min: cfg.Fare.Min, Max: cfg.Fare.Max, Currency: cfg.Fare.Currency},
		pricing.Rate{BaseFare: cfg.Fare.Base, PerKm: cfg.Fare.PerKm},
	)

	bookingStore := booking.NewStore(docs)
	bookingSvc := booking.NewService(bookingStore, pricingSvc, routes)

	profiles := profile.NewDirectory(docs, redisClient, cfg.Profile.CacheTTL)
	activityStore := activity.NewStore(dbPool, cfg.Campus.Location)
	dispatcher := notify.NewDispatcher(fb.Messaging, profiles)
	defer dispatcher.Wait()

	chatSvc := chat.NewService(docs)
	chatSvc.Observe(dispatcher)
	chatSvc.ProvisionFrom(bookingStore, profiles)

	offerSvc := offer.NewService(docs, bookingSvc, pricingSvc)
	settlementSvc := settlement.NewService(docs, bookingSvc, activityStore)
	ratingSvc := rating.NewService(docs, bookingStore, activityStore, cfg.Campus.Location)
	earningsSvc := earnings.NewService(bookingSvc, cfg.Campus.Location, cfg.Fare.Currency)
	matchingSvc := matching.NewService(matching.NewStore(redisClient), dispatcher, cfg.Matching)

	bookingSvc.Hook(settlementSvc)
	bookingSvc.Observe(booking.LogObserver)
	bookingSvc.Observe(booking.NewEventLog(dbPool))
	bookingSvc.Observe(settlementSvc)
	bookingSvc.Observe(chat.NewBookingObserver(chatSvc, profiles))
	bookingSvc.Observe(matchingSvc)
	bookingSvc.Observe(dispatcher)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Verifier:    fb.Verifier(),
		Idempotency: idempotency.NewStore(redisClient, cfg.Idempotency.TTL),
		Bookings:    bookingSvc,
		Offers:      offerSvc,
		Chat:        chatSvc,
		Settlement:  settlementSvc,
		Ratings:     ratingSvc,
		Earnings:    earningsSvc,
		Matching:    matchingSvc,
		Profiles:    profiles,
		Pricing:     pricingSvc,
		Routes:      routes,
		Places:      places,
		Location:    cfg.Campus.Location,
		Currency:    cfg.Fare.Currency,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, router)
	if err := server.Run(ctx, shutdownGrace); err != nil {
		log.Printf("http server: %v", err)
	}
}
