package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"session-escrow-backend/config"
	"session-escrow-backend/internal/api"
	"session-escrow-backend/internal/db"
	"session-escrow-backend/internal/escrow"
	"session-escrow-backend/internal/events"
	"session-escrow-backend/internal/logger"
	"session-escrow-backend/internal/mw"
	"session-escrow-backend/internal/notification"
	"session-escrow-backend/internal/oracle"
	"session-escrow-backend/internal/store"
	"session-escrow-backend/internal/token"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.Events.Source,
	})
	log.Info("configuration loaded", "path", configPath)

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to initialize database", "error", err)
	}
	log.Info("database initialized", "driver", cfg.Database.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	ledger := token.NewLedger(gormDB)

	responseCache := cache.New(time.Duration(cfg.Server.CacheTTLSeconds)*time.Second, 10*time.Minute)

	publisher := events.NewFanout(events.NewLogPublisher(log), mw.NewCacheInvalidator(responseCache))
	if len(cfg.Events.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Events, log)
		if err != nil {
			log.Fatal("failed to create kafka publisher", "error", err)
		}
		publisher.Add(kp)
		log.Info("publishing events to kafka", "topic", cfg.Events.Kafka.Topic)
	}
	if cfg.Events.AMQP.URL != "" {
		ap, err := events.NewAMQPPublisher(cfg.Events.AMQP.URL, cfg.Events.AMQP.Exchange, cfg.Events.Source)
		if err != nil {
			log.Fatal("failed to create amqp publisher", "error", err)
		}
		publisher.Add(ap)
		log.Info("publishing events to amqp", "exchange", cfg.Events.AMQP.Exchange)
	}

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
			HTTPClient:      &http.Client{Timeout: 10 * time.Second},
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, log)
		pool.Start(ctx)
		publisher.Add(pool)
		log.Info("push notifications enabled", "workers", cfg.WorkerPool.Size)
	} else {
		log.Warn("VAPID keys are not configured, push notifications are disabled")
	}

	vault := escrow.NewVault(appStore, ledger, publisher, escrow.SystemClock{}, log, escrow.Options{Custody: cfg.Vault.Custody})

	if b := cfg.Vault.Bootstrap; b.Enabled() {
		err := vault.Initialize(ctx, b.Admin, b.Token, b.Oracle)
		switch {
		case errors.Is(err, escrow.ErrAlreadyInitialized):
			log.Info("vault already initialized, bootstrap skipped")
		case err != nil:
			log.Fatal("failed to bootstrap vault", "error", err)
		}
	}

	idempotencyTTL := time.Duration(cfg.Server.IdempotencyTTL) * time.Second
	var idempotency mw.IdempotencyStore
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis is unreachable, idempotency keys will not be honoured until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		idempotency = mw.NewRedisIdempotencyStore(client, idempotencyTTL)
	} else {
		idempotency = mw.NewMemoryIdempotencyStore(idempotencyTTL)
	}

	relay := oracle.NewService(cfg.Oracle, vault, log)
	go relay.Run(ctx)

	handler := api.NewHandler(vault, appStore, webpushOptions, cfg.Server.AllowRemoteInit)
	router := api.NewRouter(handler, api.RouterOptions{
		JWTSecret:      cfg.Server.JWTSecret,
		RateLimit:      rate.Limit(cfg.Server.RateLimitPerSec),
		RateBurst:      cfg.Server.RateLimitBurst,
		CacheTTL:       time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		ResponseCache:  responseCache,
		IdempotencyTTL: idempotencyTTL,
		Idempotency:    idempotency,
		Log:            log,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	log.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}
	cancel()
	if err := publisher.Close(); err != nil {
		log.Warn("failed to close event publishers", "error", err)
	}

	log.Info("server gracefully stopped")
}
