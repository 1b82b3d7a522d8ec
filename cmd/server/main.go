package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/shopcart/internal/cache"
	"github.com/fjod/shopcart/internal/catalog"
	"github.com/fjod/shopcart/internal/config"
	"github.com/fjod/shopcart/internal/events"
	h "github.com/fjod/shopcart/internal/http"
	"github.com/fjod/shopcart/internal/logger"
	"github.com/fjod/shopcart/internal/metrics"
	"github.com/fjod/shopcart/internal/poller"
	"github.com/fjod/shopcart/internal/repository"
	"github.com/fjod/shopcart/internal/service"
	"github.com/fjod/shopcart/internal/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	l := logger.New(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(l)

	if err := run(cfg, l); err != nil {
		l.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, l *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// MongoDB: carts and catalog
	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	mongoDB, err := repository.ConnectMongoDB(startupCtx, cfg.Mongo.URI, cfg.Mongo.DBName)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
			l.Error("mongo disconnect failed", slog.Any("error", err))
		}
	}()
	l.Info("connected to MongoDB", slog.String("db", cfg.Mongo.DBName))

	carts := repository.NewMongoRepository(mongoDB)
	if err := carts.CreateIndexes(startupCtx); err != nil {
		return fmt.Errorf("create cart indexes: %w", err)
	}
	products := catalog.NewMongoCatalog(mongoDB)
	if err := products.CreateIndexes(startupCtx); err != nil {
		return fmt.Errorf("create catalog indexes: %w", err)
	}

	// Redis: cart cache and checkout sessions
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(startupCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	l.Info("redis ping succeeded", slog.String("addr", cfg.Redis.Addr))

	m := metrics.New()
	sessions := session.NewBreakerStore(session.NewRedisStore(redisClient), session.DefaultBreakerSettings(), l)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		defer func() {
			if err := kp.Close(); err != nil {
				l.Error("kafka writer close failed", slog.Any("error", err))
			}
		}()
		publisher = kp
	} else {
		l.Warn("KAFKA_BROKERS not set, checkout events disabled")
	}

	resolver := service.NewResolver(products)
	limits := service.CartLimits{
		MaxItems:           cfg.Cart.MaxItems,
		MaxQuantityPerItem: cfg.Cart.MaxQuantityPerItem,
		WriteAttempts:      service.DefaultCartLimits().WriteAttempts,
	}
	cartService := service.NewCartService(carts, cache.NewRedisCache(redisClient, cfg.Cart.CacheTTL), resolver, limits, l, m)
	reconciler := service.NewReconciler(cartService, l)
	checkoutService := service.NewCheckoutService(sessions, cartService, resolver, limits, publisher, cfg.Checkout.SessionTTL, l, m)

	var wg sync.WaitGroup
	if len(cfg.Kafka.Brokers) > 0 {
		p := poller.NewPoller(cartService, l, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Kafka.Brokers...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
			p.Close()
		}()
	}

	router := h.NewRouter(h.RouterConfig{
		Cart:     h.NewCartHandler(cartService, reconciler, cfg.RequestTimeout, l),
		Checkout: h.NewCheckoutHandler(checkoutService, cfg.RequestTimeout, l),
		Metrics:  m,
		HealthChecks: []h.HealthCheck{
			{Name: "mongo", Check: func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) }},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		RequestTimeout: cfg.RequestTimeout,
		Logger:         l,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "shopcart"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info("http server starting", slog.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	l.Info("shutting down server...")
	stop()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	wg.Wait()

	l.Info("server exited")
	return nil
}
