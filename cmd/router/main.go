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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/routeworks/router/config"
	"github.com/routeworks/router/internal/events"
	"github.com/routeworks/router/internal/handler"
	"github.com/routeworks/router/internal/providers"
	"github.com/routeworks/router/internal/queue"
	"github.com/routeworks/router/internal/render"
	"github.com/routeworks/router/internal/routing"
	"github.com/routeworks/router/internal/storage"
	"github.com/routeworks/router/internal/tokens"
	"github.com/routeworks/router/internal/tracking"
	"github.com/routeworks/router/internal/worker"
	"github.com/routeworks/router/pkg/postgres"
)

const httpClientTimeout = 15 * time.Second

func main() {
	ctx, ctxStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer ctxStop()

	cfg, err := config.NewConfig(".env", "")
	if err != nil {
		log.Fatal(err)
	}

	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.Env); err != nil {
		log.Fatal(fmt.Errorf("error setting log level to '%s': %w", cfg.Env, err))
	}

	zlog.Logger.Info().Str("env", cfg.Env).Msg("starting router...")

	postgresRetryStrategy := cfg.PostgresRetry.MakeStrategy()
	rabbitmqRetryStrategy := cfg.RabbitMQRetry.MakeStrategy()
	redisRetryStrategy := cfg.RedisRetry.MakeStrategy()

	var postgresDB *dbpg.DB
	err = retry.DoContext(ctx, postgresRetryStrategy, func() error {
		var connErr error
		postgresDB, connErr = dbpg.New(cfg.Database.DSN(), nil, &dbpg.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConnections,
			MaxIdleConns:    cfg.Database.MaxIdleConnections,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnectionMaxLifetimeSeconds) * time.Second,
		})
		return connErr
	})
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	zlog.Logger.Info().Msg("successfully connected to PostgreSQL")

	if err := postgres.MigrateUp(cfg.Database.DSN(), "file://./db/migrations"); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("couldn't migrate postgres")
	}

	redisClient := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	blobs, err := storage.NewS3Store(ctx, cfg.Blob.Region, cfg.Blob.Bucket, cfg.Blob.Endpoint)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to init blob store")
	}

	conn, err := queue.Connect(ctx, cfg.RabbitMQ, rabbitmqRetryStrategy, cfg.Router.RetryDelayMS)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	defer conn.Close()

	tokenCache := tokens.NewCache(
		redisClient,
		redisRetryStrategy,
		time.Duration(cfg.Router.TokenTTLMinutes)*time.Minute,
	)

	providerRegistry := providers.NewRegistry()
	providerRegistry.Register("smtp", providers.NewSMTPProvider())
	providerRegistry.Register("webhook", providers.NewWebhookProvider(httpClientTimeout))
	providerRegistry.Register("push", providers.NewPushProvider(tokenCache, httpClientTimeout))
	providerRegistry.Register("console", providers.NewConsoleProvider())

	eventStore := events.NewStore(postgresDB, postgresRetryStrategy)
	trackingStore := tracking.NewStore(postgresDB, postgresRetryStrategy)

	executor := routing.NewExecutor(
		blobs,
		eventStore,
		trackingStore,
		providerRegistry,
		render.NewRegistry(),
		conn,
		cfg.Router.MaxRetries,
		cfg.Router.TrackingBaseURL,
	)

	deliveries, err := conn.Consume(cfg.RabbitMQ.Prefetch)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to start consuming")
	}

	pool := worker.New(executor, cfg.Router.Concurrency)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		pool.Run(ctx, deliveries)
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Router.MetricsAddr, mux); err != nil {
			zlog.Logger.Error().Err(err).Msg("metrics listener stopped")
		}
	}()

	router := handler.NewRouter(handler.NewEventsHandler(eventStore))
	go func() {
		if err := router.Run(cfg.Router.OpsAddr); err != nil {
			zlog.Logger.Error().Err(err).Msg("ops server stopped")
		}
	}()

	zlog.Logger.Info().
		Str("ops_addr", cfg.Router.OpsAddr).
		Str("metrics_addr", cfg.Router.MetricsAddr).
		Int("concurrency", cfg.Router.Concurrency).
		Msg("router running")

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received, draining workers...")
	<-workerDone
	zlog.Logger.Info().Msg("router stopped")
}
