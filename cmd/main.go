/**
 * @description
 * This is the main entry point for the payout-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * processor adapters, message brokers, repositories, the core application service,
 * the background scheduler, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Rate limiting and webhook dedupe state.
 * - internal/api, internal/app, internal/config, internal/processor, internal/store: Internal packages.
 * - pkg/vendorclient: Client for the vendor-service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/marketvend/payout-service/internal/api"
	"github.com/marketvend/payout-service/internal/app"
	"github.com/marketvend/payout-service/internal/config"
	"github.com/marketvend/payout-service/internal/domain"
	"github.com/marketvend/payout-service/internal/processor"
	"github.com/marketvend/payout-service/internal/store"
	mvrabbit "github.com/marketvend/payout-service/pkg/rabbitmq"
	"github.com/marketvend/payout-service/pkg/vendorclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting payout-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

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

	// Initialize the RabbitMQ producer to publish lifecycle events. Producer
	// loss degrades to a no-op publisher rather than blocking payouts.
	var producer mvrabbit.Publisher
	rabbitProducer, err := mvrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &mvrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the vendor-service.
	if strings.TrimSpace(cfg.VendorServiceURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"vendor service url must be configured\" env=VENDOR_SERVICE_URL")
	}
	vendorClient := vendorclient.NewClient(cfg.VendorServiceURL, cfg.VendorServiceInternalAPIKey)

	// Register a processor adapter per supported account type. Bank transfers
	// settle through the manual queue; there is no automated bank rail yet.
	registry := processor.NewRegistry()
	manualAdapter := processor.NewManualAdapter()
	registry.Register(domain.AccountTypeManual, manualAdapter)
	registry.Register(domain.AccountTypeBank, manualAdapter)

	if strings.TrimSpace(cfg.StripeSecretKey) != "" {
		registry.Register(domain.AccountTypeStripe, processor.NewStripeAdapter(cfg.StripeSecretKey))
		log.Println("level=info component=bootstrap msg=\"stripe adapter registered\"")
	} else {
		log.Println("level=warn component=bootstrap msg=\"stripe not configured; stripe payouts disabled\" env=STRIPE_SECRET_KEY")
	}

	var paypalAdapter *processor.PayPalAdapter
	if strings.TrimSpace(cfg.PayPalClientID) != "" && strings.TrimSpace(cfg.PayPalClientSecret) != "" {
		paypalAdapter = processor.NewPayPalAdapter(cfg.PayPalAPIBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret)
		registry.Register(domain.AccountTypePayPal, paypalAdapter)
		log.Println("level=info component=bootstrap msg=\"paypal adapter registered\"")
	} else {
		log.Println("level=warn component=bootstrap msg=\"paypal not configured; paypal payouts disabled\"")
	}

	// Redis backs payout rate limiting and webhook dedupe. Both degrade
	// gracefully when Redis is unavailable.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting and webhook dedupe degraded\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	var limiter app.RateLimiter
	var deduper app.EventDeduper
	if redisClient != nil {
		limiter = app.NewRedisPayoutRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
		deduper = app.NewRedisEventDeduper(redisClient, "")
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	payoutService := app.NewService(repository, vendorClient, registry, producer)

	// The reconciler applies asynchronous processor status events, arriving
	// via webhooks and via the broker.
	reconciler := app.NewReconciler(payoutService)

	// Start the background scheduler: scheduled sweeps, stale reservation
	// cleanup, and pending payout reconciliation.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	jobs := app.NewJobs(payoutService, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	// Consume processor status events from the broker. Gateways that receive
	// processor callbacks on our behalf publish them here.
	rabbitConsumer, err := mvrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; broker reconciliation disabled\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		statusBindings := map[string]func([]byte) bool{
			"payout.status.*": reconciler.HandleMessage,
		}
		if err := rabbitConsumer.ConsumeWithBindings(mvrabbit.PayoutEventsExchange, cfg.PayoutStatusQueue, statusBindings); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"status consumer start failed\" err=%v", err)
		}
		log.Println("level=info component=bootstrap msg=\"payout status consumer started\"")
	}

	// Initialize the API handlers and router.
	payoutHandlers := api.NewPayoutHandlers(payoutService, limiter, jobs)
	webhookHandlers := api.NewWebhookHandlers(reconciler, deduper, cfg.StripeWebhookSecret, paypalAdapter, cfg.PayPalWebhookID)
	router := api.NewRouter(payoutHandlers, webhookHandlers, cfg.AuthJWKSURL, cfg.InternalAPIKey)

	// Start the HTTP server.
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
