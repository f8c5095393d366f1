package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/layer-3/rangda/adapters/events"
	"github.com/layer-3/rangda/adapters/store"
	"github.com/layer-3/rangda/adapters/tokenizer"
	"github.com/layer-3/rangda/cache"
	"github.com/layer-3/rangda/internal/config"
	"github.com/layer-3/rangda/internal/telemetry"
	"github.com/layer-3/rangda/service"
	"github.com/layer-3/rangda/transport/http"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Generate a new ECDSA key pair (you would normally load this from
	// somewhere secure).
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		logger.Fatal("Failed to generate signing key", zap.Error(err))
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opts)

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to reach Redis", zap.Error(err))
	}

	wmLogger := watermill.NewStdLogger(false, false)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		wmLogger,
	)
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err))
	}

	// An empty consumer group makes every node see every invalidation.
	subscriber, err := redisstream.NewSubscriber(
		redisstream.SubscriberConfig{Client: redisClient, ConsumerGroup: ""},
		wmLogger,
	)
	if err != nil {
		logger.Fatal("Failed to create event subscriber", zap.Error(err))
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	authorityStore := store.NewRedisStore(redisClient)
	revocationCache := cache.New(authorityStore, cfg.Cache.TTL).WithMetrics(metrics)

	consumer := events.NewWatermillConsumer(subscriber, revocationCache, logger)
	if err := consumer.Run(ctx); err != nil {
		logger.Fatal("Failed to start invalidation consumer", zap.Error(err))
	}

	sessions := service.NewSessionService(
		tokenizer.NewJWTTokenizer(signKey),
		authorityStore,
		revocationCache,
		events.NewWatermillPublisher(publisher),
		service.Options{
			TokenTTL: cfg.Token.TTL,
			FailOpen: cfg.Validation.FailOpen,
		},
	).WithLogger(logger).WithMetrics(metrics)

	router := http.SetupRouter(sessions, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	logger.Info("Starting session service",
		zap.String("addr", cfg.App.Addr),
		zap.Bool("fail_open", cfg.Validation.FailOpen),
	)

	if err := router.Run(cfg.App.Addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
