/**
 * @description
 * This is the main entry point for the transfer-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the account-service client, message brokers, repositories, the
 * saga coordinator, the background consumers and sweeper, and the HTTP server.
 * It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for consumer idempotency keys.
 * - github.com/robfig/cron/v3: Scheduler for the stale-transfer sweeper.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/accountclient: Client for the account-service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/dlsbank/transfer-service/internal/api"
	"github.com/dlsbank/transfer-service/internal/app"
	"github.com/dlsbank/transfer-service/internal/config"
	"github.com/dlsbank/transfer-service/internal/store"
	"github.com/dlsbank/transfer-service/pkg/accountclient"
	rmrabbit "github.com/dlsbank/transfer-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if cfg.AccountServiceURL == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"account-service url must be configured\" env=ACCOUNT_SERVICE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting transfer-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Pool sizing aligned with the other banking services.
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// The producer publishes fraud check requests and balance updates. Without
	// it no transfer can move money, so its absence is fatal.
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq producer init failed\" err=%v", err)
	}
	defer rabbitProducer.Close()
	log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")

	// Redis backs consumer idempotency keys. Missing Redis degrades to
	// at-least-once processing without cross-process dedupe, not to an outage.
	var redisClient *redis.Client
	if cfg.RedisURL == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; consumer dedupe disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; consumer dedupe disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; consumer dedupe disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer and the saga collaborators.
	repository := store.NewPostgresRepository(dbpool)
	accountClient := accountclient.NewClient(cfg.AccountServiceURL, cfg.AccountServiceAPIKey)
	registry := app.NewVerdictRegistry(
		time.Duration(cfg.VerdictStashTTLSeconds)*time.Second,
		cfg.VerdictStashMaxEntries,
	)
	dispatcher := app.NewBalanceDispatcher(rabbitProducer, cfg.EventExchange)
	dedupe := app.NewDeduper(redisClient, "transfer_service")

	transferService := app.NewService(
		repository,
		accountClient,
		rabbitProducer,
		dispatcher,
		registry,
		cfg.EventExchange,
		time.Duration(cfg.FraudVerdictTimeoutSeconds)*time.Second,
		cfg.DefaultCurrency,
	)

	// Background consumers. Each queue gets its own connection so a slow
	// reconciliation cannot stall live verdict delivery.
	ctx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	fraudConsumer := app.NewFraudResultConsumer(registry, dedupe)
	resultConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL, cfg.EventExchange, cfg.FraudResultQueue, map[string]func([]byte) bool{
		app.RoutingKeyFraudResult: fraudConsumer.HandleMessage,
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"fraud result consumer init failed\" err=%v", err)
	}
	if err := resultConsumer.Start(ctx); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"fraud result consumer start failed\" err=%v", err)
	}

	reconcileConsumer := app.NewReconcileConsumer(repository, dispatcher, dedupe)
	eventsConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL, cfg.EventExchange, cfg.FraudEventsQueue, map[string]func([]byte) bool{
		app.RoutingKeyFraudEventCompleted: reconcileConsumer.HandleMessage,
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"fraud events consumer init failed\" err=%v", err)
	}
	if err := eventsConsumer.Start(ctx); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"fraud events consumer start failed\" err=%v", err)
	}

	completionConsumer := app.NewBalanceCompletionConsumer(repository)
	balanceConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL, cfg.EventExchange, cfg.BalanceCompletionQueue, map[string]func([]byte) bool{
		app.RoutingKeyBalanceUpdateCompleted: completionConsumer.HandleMessage,
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"balance completion consumer init failed\" err=%v", err)
	}
	if err := balanceConsumer.Start(ctx); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"balance completion consumer start failed\" err=%v", err)
	}

	// The sweeper re-drives transfers orphaned in pending and prunes the
	// verdict stash on a fixed schedule.
	sweeper := app.NewSweeper(
		repository,
		dispatcher,
		registry,
		time.Duration(cfg.StaleSweepAfterSeconds)*time.Second,
		cfg.StaleSweepBatchSize,
	)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.StaleSweepSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		sweeper.Run(sweepCtx)
	}); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"sweeper schedule invalid\" schedule=%q err=%v", cfg.StaleSweepSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Printf("level=info component=bootstrap msg=\"sweeper scheduled\" schedule=%q stale_after_seconds=%d", cfg.StaleSweepSchedule, cfg.StaleSweepAfterSeconds)

	// Initialize the API handlers and router.
	transferHandlers := api.NewTransferHandlers(transferService)
	router := api.TransferRoutes(transferHandlers, cfg.JWTSecret)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	stopConsumers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
