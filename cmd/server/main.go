package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradepost/config"
	"tradepost/internal/api"
	"tradepost/internal/broker"
	"tradepost/internal/economy"
	"tradepost/internal/ledger"
	"tradepost/internal/prototype"
	"tradepost/internal/redisclient"
	"tradepost/internal/service"
	"tradepost/internal/transport/ws"
	"tradepost/internal/util"
	"tradepost/internal/worker"
	"tradepost/internal/world"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting tradepost")

	tp, err := util.InitTracer("tradepost", cfg.Observ.JaegerEndpoint, cfg.Observ.TraceRatio)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	doc, err := prototype.LoadFile(cfg.Economy.PresetsPath)
	if err != nil {
		log.Fatalf("Failed to load presets: %v", err)
	}
	registry, err := prototype.NewRegistryFromDocument(doc, logger.Named("prototype"))
	if err != nil {
		log.Fatalf("Failed to build prototype registry: %v", err)
	}

	entities := world.NewMemoryStore(registry, logger.Named("world"))
	engine := economy.New(registry, entities, economy.Options{
		CooldownCap: cfg.Economy.CooldownCap,
		Seed:        cfg.Economy.RandomSeed,
	}, logger.Named("economy"))

	db, err := ledger.New(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Ledger connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPush, logger.Named("kafka"))
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)
	hub := ws.NewHub(logger.Named("ws"))

	economyService := service.NewEconomyService(
		engine,
		redisClient,
		redisClient,
		db,
		eventPublisher,
		service.Options{
			LockTTL:        cfg.Economy.StoreLockTTL,
			IdempotencyTTL: cfg.Economy.IdempotencyTTL,
		},
		eventPublisher,
		hub,
	)

	ctx := context.Background()
	for _, spec := range cfg.Economy.Stores {
		if err := economyService.LoadStore(ctx, spec.ID, spec.Preset, world.Coordinates{X: spec.X, Y: spec.Y}); err != nil {
			util.StoreLogger(logger, spec.ID).Warn("Store not loaded", zap.String("preset", spec.Preset), zap.Error(err))
		}
	}

	hub.OnJoin(func(sub ws.Subscription) {
		if err := economyService.Join(context.Background(), sub.Session, sub.StoreID, sub.Holder); err != nil {
			logger.Info("Session joined unknown store", zap.String("session", sub.Session), zap.String("store", sub.StoreID))
		}
	})
	hub.OnLeave(economyService.Leave)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	tickWorker := worker.NewTickWorker(economyService, cfg.Economy.TickInterval, logger.Named("tick"))
	go func() {
		if err := tickWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Tick worker error: %v", err)
		}
	}()

	requestConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRequests, cfg.Kafka.ConsumerGroup, logger.Named("kafka"))
	requestWorker := worker.NewRequestWorker(requestConsumer, economyService, logger.Named("requests"))
	go func() {
		if err := requestWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Request worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(economyService, hub.Handler(), cfg.Economy.PresetsPath, cfg.Server.Env != "production")
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	requestWorker.Stop()

	log.Println("Server exited")
}
