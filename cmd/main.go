package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/loopmarket/payment-service/internal/api"
	"github.com/loopmarket/payment-service/internal/clients"
	"github.com/loopmarket/payment-service/internal/config"
	"github.com/loopmarket/payment-service/internal/gateway"
	"github.com/loopmarket/payment-service/internal/lock"
	"github.com/loopmarket/payment-service/internal/repository"
	"github.com/loopmarket/payment-service/internal/service"
	"github.com/loopmarket/payment-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := telemetry.Init("payment-service"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting payment service")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := repository.NewPaymentRepository(db)
	if err := repo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	locker := lock.NewRedisLocker(redisClient, 30*time.Second)

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    "payment.state.changed",
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	daraja := gateway.NewDarajaClient(gateway.Config{
		BaseURL:        cfg.DarajaBaseURL,
		ConsumerKey:    cfg.DarajaConsumerKey,
		ConsumerSecret: cfg.DarajaConsumerSecret,
		Shortcode:      cfg.DarajaShortcode,
		Passkey:        cfg.DarajaPasskey,
		CallbackURL:    cfg.DarajaCallbackURL,
	})

	orchestrator := service.NewOrchestrator(
		repo,
		daraja,
		clients.NewLoopCatalogClient(nc),
		clients.NewAccessGrantClient(nc),
		locker,
		kafkaWriter,
	)

	r := api.NewRouter(repo, orchestrator)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		telemetry.Logger.Info("Payment service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
