package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shipment-tracker/internal/advisor"
	"shipment-tracker/internal/auth"
	"shipment-tracker/internal/config"
	"shipment-tracker/internal/eta"
	"shipment-tracker/internal/events"
	"shipment-tracker/internal/hub"
	"shipment-tracker/internal/ingest"
	"shipment-tracker/internal/logger"
	"shipment-tracker/internal/routeanalysis"
	"shipment-tracker/internal/store"
	transport "shipment-tracker/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found — using system environment variables")
	}

	cfg := config.Load()
	log := logger.New(cfg)
	log.Info("starting shipment tracker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory store, nothing will survive a restart")
		st = store.NewMemory()
	default:
		pg, err := store.NewPostgres(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to postgres")
		}
		defer pg.Close()
		st = pg
	}

	redisStore, err := store.NewRedis(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, live state and bridge disabled")
		redisStore = nil
	} else {
		defer redisStore.Close()
	}

	authenticator := auth.NewAuthenticator(cfg, redisStore)
	broadcastHub := hub.New(auth.ShipmentAuthorizer{Store: st}, cfg.HubSendBuffer, log)

	if cfg.BridgeEnabled && redisStore != nil {
		go broadcastHub.RunBridge(ctx, redisStore.SubscribeEvents(ctx))
	}

	var bus *events.Producer
	if cfg.KafkaEnabled {
		bus, err = events.NewProducer(cfg, log)
		if err != nil {
			log.WithError(err).Fatal("failed to create kafka producer")
		}
		defer bus.Close()
		go bus.Run(ctx)
	}

	predictor := eta.NewPredictor(st, &cfg.Analytics, log)
	engine := advisor.NewEngine(&cfg.Analytics, st, dedupOrNil(redisStore), predictor, log)
	analyzer := routeanalysis.NewAnalyzer(&cfg.Analytics)

	gateway := ingest.NewGateway(st, redisStore, broadcastHub, predictor, engine, analyzer, bus, cfg, log)

	handler := transport.NewHandler(gateway, st, log)
	wsHandler := transport.NewWSHandler(broadcastHub, log)
	authmw := transport.NewAuthMiddleware(authenticator)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      transport.NewRouter(handler, wsHandler, authmw),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
	log.Info("server exited")
}

// dedupOrNil avoids handing the engine a typed nil behind the
// interface.
func dedupOrNil(r *store.Redis) advisor.Deduper {
	if r == nil {
		return nil
	}
	return r
}
