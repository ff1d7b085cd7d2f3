package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/encoder"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/indexer/consumer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/router"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/searcher/cache"
	searchhandler "github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting visual search service",
		"port", cfg.Server.Port,
		"index", cfg.Index.Kind,
		"visual_words", cfg.Index.VisualWords,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()
	breakerGauge := func(name string, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}

	opts := engine.Options{Metrics: m}
	if cfg.Encoder.URL != "" {
		enc := encoder.NewClient(cfg.Encoder, breakerGauge)
		opts.Encoder = enc
		checker.Register("encoder", health.PingCheck(enc, true))
		slog.Info("image encoder configured", "url", cfg.Encoder.URL)
	} else {
		slog.Warn("no encoder url configured, raw image endpoints disabled")
	}

	var histStore *store.Store
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		histStore = store.New(db)
		if err := histStore.Migrate(ctx); err != nil {
			slog.Error("failed to migrate histogram store", "error", err)
			os.Exit(1)
		}
		opts.Store = histStore
		checker.Register("postgres", health.PingCheck(db, false))
	}

	eng, err := engine.FromConfig(cfg, opts)
	if err != nil {
		slog.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	if histStore != nil {
		var entries []index.Entry
		err := resilience.WithTimeout(ctx, 2*time.Minute, "warm-start", func(ctx context.Context) error {
			var err error
			entries, err = histStore.LoadAll(ctx, cfg.Index.VisualWords)
			return err
		})
		if err != nil {
			slog.Error("failed to load stored histograms", "error", err)
			os.Exit(1)
		}
		loaded, skipped := eng.Restore(entries)
		stored, err := histStore.Count(ctx)
		if err != nil {
			slog.Warn("failed to count stored histograms", "error", err)
		}
		slog.Info("index warm-started", "loaded", loaded, "skipped", skipped, "stored", stored)
	}

	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d images", eng.Len())}
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			if err := queryCache.Purge(ctx); err != nil {
				slog.Warn("could not purge stale cache entries", "error", err)
			}
			checker.Register("redis", health.PingCheck(redisClient, true))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var pub ingesthandler.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ImageIngest)
		defer producer.Close()
		pub = publisher.New(producer)

		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ImageIngest, consumer.HandleMessage(eng, m))
		ic := consumer.New(kc, m)
		go func() {
			if err := ic.Start(ctx); err != nil {
				slog.Error("index consumer stopped", "error", err)
			}
		}()
		slog.Info("kafka ingestion enabled", "topic", cfg.Kafka.Topics.ImageIngest, "group", cfg.Kafka.ConsumerGroup)
	}

	var limiter *middleware.ClientLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	handler := router.New(router.Deps{
		Search:  searchhandler.New(eng, queryCache, m, cfg.Ranking.DefaultLimit, cfg.Ranking.MaxResults, cfg.Server.MaxBodyBytes),
		Ingest:  ingesthandler.New(eng, pub, cfg.Server.MaxBodyBytes),
		Health:  checker,
		Metrics: m,
		Limiter: limiter,
		Timeout: cfg.Server.WriteTimeout,
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("visual search service listening", "addr", server.Addr, "images", eng.Len())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("visual search service stopped")
}
