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

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/ledger"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service")

	tp, err := util.InitTracer("checkout-service", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Redis unavailable, running on database only: %v", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	stockLedger := ledger.NewSQLLedger(db, redisClient, cfg.Checkout.ReservationTTL)
	if redisClient != nil {
		seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
		variantIDs, err := db.StockedVariantIDs(seedCtx)
		if err != nil {
			log.Printf("Failed to list stocked variants: %v", err)
		} else if err := stockLedger.SyncStockToRedis(seedCtx, variantIDs); err != nil {
			log.Printf("Failed to sync stock to Redis: %v", err)
		}
		seedCancel()
	}
	cartReader := service.NewCartReader(db)
	gateway := service.NewMockGateway(db,
		cfg.Payment.DeclineRate, cfg.Payment.TimeoutRate,
		cfg.Payment.MinLatency, cfg.Payment.MaxLatency)
	compensator := service.NewCompensator(stockLedger, db, eventPublisher)
	checkoutService := service.NewCheckoutService(
		cartReader, stockLedger, gateway, db, compensator, eventPublisher,
		cfg.Payment.Timeout, cfg.Checkout.CommitTimeout)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	auditConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	auditWorker := worker.NewAuditWorker(auditConsumer, db)
	go func() {
		if err := auditWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Audit worker error: %v", err)
		}
	}()

	sweepWorker := worker.NewSweepWorker(stockLedger, cfg.Checkout.SweepInterval)
	go func() {
		if err := sweepWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Sweep worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(checkoutService)
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
	auditWorker.Stop()

	log.Println("Server exited")
}
