package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingest/consumer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/service"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/source"
	badgerstore "github.com/Adithya-Monish-Kumar-K/searchcore/internal/store/badger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	pkggrpc "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search process failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search process stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}
	checker := health.NewChecker()

	var queryCache *cache.QueryCache
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator()
	var events service.EventSink = aggregator
	var collector *analytics.Collector
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000, 100, time.Second)
		collector.Start(ctx)
		defer collector.Close()
		events = collector
	}

	opts := service.Options{
		Tokenizer:            cfg.Indexer.Tokenizer,
		Scorer:               cfg.Search.Scorer,
		Workers:              cfg.Indexer.Workers,
		Events:               events,
		Metrics:              m,
		Tracer:               tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate),
		SnapshotDir:          cfg.Indexer.SnapshotDir,
		KeepSnapshots:        cfg.Indexer.KeepSnapshots,
		MaxConcurrentQueries: cfg.Search.MaxConcurrentQueries,
		QueryTimeout:         cfg.Search.Timeout,
	}
	if queryCache != nil {
		opts.Cache = queryCache
	}
	if cfg.Store.Kind == "badger" {
		opts.Stores = badgerstore.PerGeneration(cfg.Store.Dir)
	}
	svc, err := service.New(opts)
	if err != nil {
		return err
	}
	defer svc.Close()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		info, ok := svc.Generation()
		if !ok {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no generation active"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("generation %d, %d documents", info.ID, info.Documents)}
	})

	if cfg.Indexer.RestoreOnBoot && cfg.Indexer.SnapshotDir != "" {
		if gen, ok, err := svc.Restore(ctx, ""); err != nil {
			slog.Warn("snapshot restore failed, starting empty", "error", err)
		} else if ok {
			slog.Info("restored snapshot", "generation", gen)
		}
	}

	var src *source.SQLSource
	if cfg.Source.Driver != "" {
		src, err = openSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer src.Close()
		checker.Register("source", health.PingCheck(src.DB().PingContext, health.StatusDegraded))
		if err := indexFromSource(ctx, svc, src); err != nil {
			slog.Warn("initial corpus not indexed", "error", err)
		}
		snapshots := snapshot.NewStore(src.DB())
		if err := snapshots.EnsureSchema(ctx); err != nil {
			return err
		}
		go snapshots.Run(ctx, aggregator, time.Minute)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Kafka.Enabled() {
		var marker consumer.Marker
		if src != nil {
			marker = src
		}
		ingest := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
			consumer.HandleMessage(svc, marker, m)))
		g.Go(func() error { return ingest.Start(gctx) })

		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, aggregator.HandleEvent())
		g.Go(func() error { return analyticsConsumer.Start(gctx) })
		slog.Info("kafka consumers started",
			"ingest_topic", cfg.Kafka.Topics.DocumentIngest,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	rpcServer := pkggrpc.NewServer()
	service.RegisterRPC(rpcServer, svc, cfg.RPC.CallTimeout)
	ln, err := net.Listen("tcp", cfg.RPC.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.RPC.Addr, err)
	}
	g.Go(func() error { return rpcServer.ServeListener(ln) })

	server := newHTTPServer(cfg, svc, queryCache, aggregator, checker, m)
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go limiter.Run(gctx, time.Minute)
		server.Handler = middleware.RateLimit(limiter, m)(server.Handler)
	}
	g.Go(func() error {
		slog.Info("http listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		rpcServer.Stop()
		if cfg.Indexer.SnapshotDir != "" {
			if _, err := svc.Snapshot(""); err != nil {
				slog.Warn("shutdown snapshot skipped", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}

func newHTTPServer(
	cfg *config.Config,
	svc *service.Service,
	queryCache *cache.QueryCache,
	aggregator *analytics.Aggregator,
	checker *health.Checker,
	m *metrics.Metrics,
) *http.Server {
	var admin handler.CacheAdmin
	if queryCache != nil {
		admin = queryCache
	}
	mux := http.NewServeMux()
	handler.New(svc, admin, cfg.Search.DefaultLimit, cfg.Search.MaxLimit).Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	return &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Metrics(m),
			middleware.Timeout(cfg.Server.WriteTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

func openSource(ctx context.Context, cfg *config.Config) (*source.SQLSource, error) {
	if cfg.Source.Driver == source.DriverPostgres && cfg.Source.DSN == "" {
		client, err := postgres.New(ctx, cfg.Postgres, "")
		if err != nil {
			return nil, err
		}
		return source.NewSQLSource(client.DB, source.DriverPostgres, cfg.Source.Table)
	}
	return source.OpenSQL(ctx, cfg.Source.Driver, cfg.Source.DSN, cfg.Source.Table)
}

func indexFromSource(ctx context.Context, svc *service.Service, src *source.SQLSource) error {
	if err := src.EnsureSchema(ctx); err != nil {
		return err
	}
	docs, err := src.Load(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		slog.Info("source table is empty, waiting for index requests")
		return nil
	}
	gen, err := svc.Index(ctx, docs)
	if err != nil {
		return err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return src.MarkIndexed(ctx, gen, ids)
}
