package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ridedispatch/internal/app"
	"ridedispatch/internal/config"
	"ridedispatch/internal/events"
	"ridedispatch/internal/handler"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/realtime"
	internalRedis "ridedispatch/internal/redis"
	"ridedispatch/internal/repository/postgres"
	"ridedispatch/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := cfg.Validate(); err != nil {
		zlog.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			zlog.Warn("failed to initialize New Relic", zap.Error(err))
			nrApp = nil
		} else {
			zlog.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Optional brokers.
	var statusPublisher service.RideEventPublisher
	if cfg.Events.AMQPURL != "" {
		rabbit, err := events.DialRabbit(ctx, cfg.Events.AMQPURL, cfg.Events.AMQPExchange, zlog)
		if err != nil {
			zlog.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer rabbit.Close()
		statusPublisher = rabbit
	}

	var locationPublisher service.LocationPublisher
	if len(cfg.Events.KafkaBrokers) > 0 {
		stream := events.NewLocationStream(cfg.Events.KafkaBrokers, cfg.Events.KafkaLocationTopic)
		defer stream.Close()
		locationPublisher = stream
		zlog.Info("driver location stream enabled", zap.Strings("brokers", cfg.Events.KafkaBrokers))
	}

	server, sweeper := wireServer(db, redisClient, nrApp, statusPublisher, locationPublisher, cfg, zlog)

	runCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go sweeper.Run(runCtx)

	// Start server in goroutine.
	go func() {
		zlog.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down server")
	stopBackground()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}
	if nrApp != nil {
		nrApp.Shutdown(cfg.Server.ShutdownTimeout)
	}

	zlog.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server and the
// background expiry sweeper.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	statusPublisher service.RideEventPublisher,
	locationPublisher service.LocationPublisher,
	cfg *config.Config,
	zlog *zap.Logger,
) (*http.Server, *service.ExpirySweeper) {
	clock := service.SystemClock()

	// Initialize Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)
	idempotencyStore := internalRedis.NewIdempotencyStore(redisClient)

	// Initialize repositories.
	driverRepo := postgres.NewDriverRepository(db)
	riderRepo := postgres.NewRiderRepository(db)
	rideRepo := postgres.NewRideRequestRepository(db)
	fareOfferRepo := postgres.NewFareOfferRepository(db)

	// Realtime delivery.
	hub := realtime.NewHub(zlog.Named("realtime"))
	notifications := service.NewNotificationService(hub, zlog.Named("notifications"))

	// Initialize services.
	registry := service.NewDriverRegistry(service.DriverRegistryDeps{
		Repo:               driverRepo,
		Locations:          locationStore,
		Cache:              cacheStore,
		LocationPublisher:  locationPublisher,
		Clock:              clock,
		LocationStaleAfter: cfg.Dispatch.LocationStaleAfter,
		Logger:             zlog.Named("registry"),
	})
	geoIndex := service.NewGeoIndex(locationStore, registry, clock, cfg.Dispatch.LocationStaleAfter)
	surgeService := service.NewSurgeService(geoIndex, rideRepo, clock, zlog.Named("surge"))

	dispatchEngine := service.NewDispatchEngine(service.DispatchEngineDeps{
		Rides:         rideRepo,
		Riders:        riderRepo,
		GeoIndex:      geoIndex,
		Lock:          lockStore,
		Notifications: notifications,
		Surge:         surgeService,
		Fare: service.FarePolicy{
			BaseFare:    cfg.Fare.BaseFare,
			PerKm:       cfg.Fare.PerKm,
			PerMinute:   cfg.Fare.PerMinute,
			MinimumFare: cfg.Fare.MinimumFare,
		},
		Clock:         clock,
		MaxCandidates: cfg.Dispatch.MaxCandidates,
		LockTTL:       cfg.Dispatch.DispatchLockTTL,
		Logger:        zlog.Named("dispatch"),
	})
	resolution := service.NewOfferResolutionEngine(service.OfferResolutionEngineDeps{
		Rides:         rideRepo,
		FareOffers:    fareOfferRepo,
		Drivers:       registry,
		Notifications: notifications,
		Publisher:     statusPublisher,
		Clock:         clock,
		Logger:        zlog.Named("resolution"),
	})
	rideService := service.NewRideService(service.RideServiceDeps{
		Rides:           rideRepo,
		Dispatcher:      dispatchEngine,
		Notifications:   notifications,
		Publisher:       statusPublisher,
		Clock:           clock,
		RequestTTL:      cfg.Dispatch.RequestTTL,
		DefaultRadiusKm: cfg.Dispatch.DefaultRadiusKm,
		MaxRadiusKm:     cfg.Dispatch.MaxRadiusKm,
		Logger:          zlog.Named("rides"),
	})
	sweeper := service.NewExpirySweeper(rideRepo, notifications, statusPublisher, clock,
		cfg.Dispatch.ExpirySweepInterval, zlog.Named("expiry"))

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		RideHandler:      handler.NewRideHandler(rideService, resolution),
		OfferHandler:     handler.NewOfferHandler(resolution),
		DriverHandler:    handler.NewDriverHandler(registry),
		RiderHandler:     handler.NewRiderHandler(riderRepo),
		RealtimeHandler:  handler.NewRealtimeHandler(hub, zlog.Named("realtime")),
		IdempotencyStore: idempotencyStore,
		NewRelicApp:      nrApp,
		Logger:           zlog.Named("http"),
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, sweeper
}
