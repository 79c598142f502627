package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/api"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/cache"
	"github.com/platinummonkey/warden/pkg/check"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/events"
	"github.com/platinummonkey/warden/pkg/expiry"
	"github.com/platinummonkey/warden/pkg/invalidation"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/resolver"
	"github.com/platinummonkey/warden/pkg/store"
)

func main() {
	configFile := flag.String("config", "", "Path to optional YAML tunables file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, *configFile, logger); err != nil {
		logger.WithError(err).Error("warden exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, configFile string, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("connected to postgres")

	permStore := store.NewPostgres(db)

	permCache, err := cache.NewRedisCache(cache.RedisConfig{
		URL:        cfg.Redis.URL,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		MaxRetries: cfg.Redis.MaxRetries,
		PoolSize:   cfg.Redis.PoolSize,
		OpTimeout:  cfg.Cache.OpTimeout,
		TTL:        cache.TTLPolicy{Base: cfg.Cache.TTL, Degraded: cfg.Cache.DegradedTTL},
	}, metrics)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("connected to redis")

	permResolver := resolver.New(permStore, permCache, logger, metrics,
		resolver.WithTimeout(cfg.Check.ResolverTimeout))
	checks := check.NewService(permCache, permResolver, permStore, logger, metrics,
		check.WithBatchLimit(cfg.Check.BatchLimit))

	dbRecorder, err := audit.NewDBRecorder(db)
	if err != nil {
		return fmt.Errorf("failed to initialize audit recorder: %w", err)
	}
	recorder := audit.Multi{dbRecorder, audit.NewLogRecorder(logger)}

	engine := invalidation.New(permCache, permStore, recorder, logger, metrics)
	consumer := events.NewConsumer(permCache.Client(), cfg.Events.Channel, engine, nil, logger, metrics)

	publisher := events.NewRedisPublisher(permCache.Client(), cfg.Events.Channel)
	sweeper := expiry.New(permStore, publisher, logger, expiry.WithBatchSize(cfg.Expiry.BatchSize))

	scheduler := cron.New()
	if err := sweeper.Schedule(scheduler, cfg.Expiry.Schedule); err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}
	scheduler.Start()

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(checks, permStore, logger, metrics),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, permCache.Client()))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Infof("health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("event consumer failed: %w", err)
		}
		return nil
	})

	if configFile != "" {
		watcher, err := config.NewWatcher(configFile, logger, func(fresh *config.Config) {
			// Connection settings need a restart; the TTL policy applies live
			permCache.SetTTLPolicy(cache.TTLPolicy{Base: fresh.Cache.TTL, Degraded: fresh.Cache.DegradedTTL})
		})
		if err != nil {
			return fmt.Errorf("failed to watch config file: %w", err)
		}
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("config watcher failed: %w", err)
			}
			return nil
		})
	}

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(sctx context.Context) error {
		cancel()
		return nil
	})
	sm.RegisterShutdownFunc(healthServer.Shutdown)
	sm.RegisterShutdownFunc(func(sctx context.Context) error {
		stopped := scheduler.Stop()
		select {
		case <-stopped.Done():
			return nil
		case <-sctx.Done():
			return fmt.Errorf("expiry scheduler did not drain in time")
		}
	})
	sm.RegisterShutdownFunc(func(sctx context.Context) error {
		return permCache.Close()
	})
	sm.RegisterShutdownFunc(func(sctx context.Context) error {
		return db.Close()
	})
	sm.RegisterShutdownFunc(func(sctx context.Context) error {
		return otelProviders.Shutdown(sctx)
	})

	logger.Info("warden started")

	// A failing component turns into a shutdown signal so the manager can
	// drain everything else
	componentErr := make(chan error, 1)
	go func() {
		err := g.Wait()
		componentErr <- err
		if err != nil {
			logger.WithError(err).Error("component failed, shutting down")
			if p, ferr := os.FindProcess(os.Getpid()); ferr == nil {
				p.Signal(syscall.SIGTERM)
			}
		}
	}()

	shutdownErr := sm.WaitForShutdown()
	if err := <-componentErr; err != nil {
		return err
	}
	return shutdownErr
}
