package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/stayhq/reservations/internal/adapters/mongo"
	"github.com/stayhq/reservations/internal/adapters/postgres"
	"github.com/stayhq/reservations/internal/adapters/rabbit"
	redisadapter "github.com/stayhq/reservations/internal/adapters/redis"
	"github.com/stayhq/reservations/internal/booking"
	"github.com/stayhq/reservations/internal/config"
	"github.com/stayhq/reservations/internal/expiry"
	httphandler "github.com/stayhq/reservations/internal/http"
	"github.com/stayhq/reservations/internal/idempotency"
	"github.com/stayhq/reservations/internal/notify"
	"github.com/stayhq/reservations/internal/observability"
	"github.com/stayhq/reservations/internal/payments"
	"github.com/stayhq/reservations/internal/pricing"
	"github.com/stayhq/reservations/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	auditor := mongoadapter.NewAuditLogger(mongoClient.Database("stayhq"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	sweeper := expiry.NewSweeper(repo, logger)
	pricer := pricing.NewCalculator(repo)
	notifier := notify.NewRabbitNotifier(rabbitPub)
	gateway := payments.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayAPIKey)
	svc := booking.NewService(repo, pricer, sweeper, notifier, auditor, gateway, cfg.HoldTTL, logger)
	reconciler := payments.NewReconciler(repo, cfg.CallbackToken, logger)

	handlers := httphandler.NewHandlers(cfg, svc, repo, sweeper, reconciler, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
