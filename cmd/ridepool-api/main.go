// README: Entry point; loads config, wires services, starts HTTP server and background workers.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ridepool/internal/config"
	httptransport "ridepool/internal/http"
	"ridepool/internal/infra"
	"ridepool/internal/maps"
	"ridepool/internal/modules/fare"
	"ridepool/internal/modules/location"
	"ridepool/internal/modules/notify"
	"ridepool/internal/modules/ride"
	"ridepool/internal/modules/search"
	"ridepool/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("ridepool-api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	tz, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return err
	}

	router, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Timeout)
	if err != nil {
		return err
	}

	var (
		store    ride.Store
		notifier notify.Notifier
		inbox    notify.Inbox
	)
	if cfg.DB.DSN != "" {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
		if err != nil {
			return err
		}
		defer dbPool.Close()
		store = ride.NewPostgresStore(dbPool)
		pgInbox := notify.NewPostgresInbox(dbPool)
		notifier, inbox = pgInbox, pgInbox
	} else {
		logger.Warn("no database configured; rides are kept in memory")
		memStore := ride.NewMemoryStore()
		memInbox := notify.NewMemoryInbox()
		store, notifier, inbox = memStore, memInbox, memInbox
	}

	var (
		rideIndex   ride.Index
		searchIndex search.Index
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		idx := location.NewRedisIndex(redisClient)
		rideIndex, searchIndex = idx, idx
	}

	var verifier infra.TokenVerifier
	pushers := []notify.Pusher{}
	if cfg.Firebase.ProjectID != "" {
		app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
		if verifier, err = infra.NewFirebaseVerifier(ctx, app); err != nil {
			return err
		}
		messagingClient, err := infra.NewFirebaseMessaging(ctx, app)
		if err != nil {
			return err
		}
		pushers = append(pushers, notify.NewFCMPusher(messagingClient))
	}

	hub := notify.NewHub(logger)
	pushers = append(pushers, hub)

	var bus notify.Bus
	if cfg.RabbitMQ.URL != "" {
		publisher, err := notify.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			return err
		}
		defer func() { _ = publisher.Close() }()
		bus = publisher
	}

	if !cfg.Log.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	dispatcher := notify.NewDispatcher(cfg.Notify, logger, notifier, bus, pushers...)

	rate := fare.DefaultRate
	if cfg.Currency != "" {
		rate.Currency = cfg.Currency
	}
	rideSvc := ride.NewService(store, router, dispatcher, rideIndex, logger, ride.Config{
		CancelWindow:   cfg.Booking.CancelWindow,
		RoutingTimeout: cfg.Maps.Timeout,
		ServiceArea: ride.Area{
			Center:  types.Point{Lat: cfg.ServiceArea.Lat, Lng: cfg.ServiceArea.Lng},
			RadiusM: cfg.ServiceArea.RadiusM,
		},
		Rate: rate,
	})
	searchSvc := search.NewService(store, searchIndex, tz, logger)

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.NewRouter(httptransport.RouterDeps{
		Rides:    rideSvc,
		Search:   searchSvc,
		Inbox:    inbox,
		Hub:      hub,
		Verifier: verifier,
		TimeZone: tz,
		Log:      logger,
	}), logger)

	return serve(ctx, dispatcher.Run,
		server.Run,
		func(ctx context.Context) error {
			rideSvc.RunPendingSweeper(ctx, cfg.Booking.SweepEvery)
			return nil
		},
	)
}

// serve runs the event producers until ctx ends or one of them fails. The
// dispatcher is stopped only after every producer has returned, so events
// published by in-flight requests are still drained.
func serve(ctx context.Context, dispatch func(context.Context) error, producers ...func(context.Context) error) error {
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()
	dispatched := make(chan error, 1)
	go func() { dispatched <- dispatch(dispatchCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	for _, produce := range producers {
		g.Go(func() error { return produce(gctx) })
	}
	err := g.Wait()

	stopDispatch()
	return errors.Join(err, <-dispatched)
}
