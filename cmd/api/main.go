package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dejobratic/storefront/internal/config"
	"github.com/dejobratic/storefront/internal/database"
	idemmemory "github.com/dejobratic/storefront/internal/idempotency/memory"
	idempostgres "github.com/dejobratic/storefront/internal/idempotency/postgres"
	"github.com/dejobratic/storefront/internal/kafka"
	"github.com/dejobratic/storefront/internal/orders/adapters"
	httpadapter "github.com/dejobratic/storefront/internal/orders/adapters/http"
	ordersmemory "github.com/dejobratic/storefront/internal/orders/adapters/memory"
	orderspostgres "github.com/dejobratic/storefront/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/notify"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/orders/scheduler"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const meterName = "github.com/dejobratic/storefront"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(cfg.Telemetry.LogLevel),
		slog.String("service", cfg.Service.Name),
		slog.String("environment", cfg.Service.Environment),
	)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	meter := tel.Meter(meterName)
	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return err
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return err
	}
	orderMetrics, err := metrics.NewMetrics(meter)
	if err != nil {
		return err
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg, logger, meter, dbMetrics)
	if err != nil {
		return err
	}
	defer store.close()

	publisher := newPublisher(cfg, logger, kafkaMetrics)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close kafka producer", "error", err)
		}
	}()

	sink := adapters.NewObservableSink(adapters.NewPublishingSink(publisher), kafkaMetrics)
	dispatcher := notify.NewDispatcher(sink, notify.Config{
		QueueSize:   cfg.Notify.QueueSize,
		Workers:     cfg.Notify.Workers,
		SendTimeout: cfg.Notify.SendTimeout,
	}, logger, orderMetrics)

	service, err := ordersapp.NewService(ordersapp.ServiceDeps{
		Orders:              store.orders,
		UnitOfWork:          store.unitOfWork,
		Catalog:             store.catalog,
		Coupons:             store.coupons,
		Delivery:            store.delivery,
		Customers:           store.customers,
		Addresses:           store.addresses,
		Idempotency:         store.idempotency,
		Notifier:            dispatcher,
		Logger:              logger,
		Metrics:             orderMetrics,
		Pricing:             cfg.Pricing.PricingPolicy(),
		OrderNumberPrefix:   cfg.Orders.NumberPrefix,
		OrderNumberAttempts: cfg.Orders.NumberMaxAttempts,
		CurrencyPerPoint:    cfg.Orders.CurrencyPerPoint,
		RestockOnCancel:     cfg.Orders.RestockOnCancel,
	})
	if err != nil {
		return fmt.Errorf("build order service: %w", err)
	}

	var (
		sweeper httpadapter.Sweeper
		sched   *scheduler.Scheduler
	)
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(service, scheduler.Config{
			Interval: cfg.Scheduler.Interval,
			MinAge:   cfg.Scheduler.MinAge,
			Statuses: cfg.Scheduler.Statuses,
			Limit:    cfg.Scheduler.Limit,
		}, logger, orderMetrics)
		sweeper = sched
	}

	router := httpadapter.NewRouter(logger, httpMetrics)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.ready(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	httpadapter.NewHandler(service, sweeper, logger).Register(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		logger.Info("http server stopped")
		return nil
	})

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	if sched != nil {
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	if cfg.Orders.IdempotencyPurge > 0 {
		g.Go(func() error {
			purgeIdempotencyKeys(gctx, store.purger, cfg.Orders.IdempotencyPurge, logger)
			return nil
		})
	}

	return g.Wait()
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

type storage struct {
	orders      ports.OrderRepository
	unitOfWork  ports.UnitOfWork
	catalog     ports.CatalogGateway
	coupons     ports.CouponGateway
	delivery    ports.DeliveryOptionGateway
	customers   ports.CustomerGateway
	addresses   ports.AddressGateway
	idempotency ports.IdempotencyStore
	purger      purger
	ready       func(ctx context.Context) error
	close       func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger, meter metric.Meter, dbMetrics *database.Metrics) (*storage, error) {
	if cfg.Orders.UseInMemoryStorage {
		logger.Warn("using in-memory storage, data is lost on restart")
		store := ordersmemory.NewStore()
		idem := idemmemory.NewStore(cfg.Orders.IdempotencyTTL)
		return &storage{
			orders:      store,
			unitOfWork:  store,
			catalog:     store,
			coupons:     store,
			delivery:    store,
			customers:   store,
			addresses:   store,
			idempotency: idem,
			purger:      idem,
			ready:       func(context.Context) error { return nil },
			close:       func() {},
		}, nil
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath, "embedded", cfg.Database.MigrationsPath == "")
		version, err := database.RunMigrations(cfg.Database.URL, database.MigrationSource(cfg.Database.MigrationsPath))
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations completed successfully", "schema_version", version)
	}

	poolStats, err := database.RegisterPoolStats(meter, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	catalog := orderspostgres.NewCatalog(pool)
	idem := idempostgres.NewStore(pool, cfg.Orders.IdempotencyTTL)

	return &storage{
		orders:      adapters.NewObservableRepository(orderspostgres.NewRepository(pool), dbMetrics),
		unitOfWork:  adapters.NewObservableUnitOfWork(orderspostgres.NewUnitOfWork(pool), dbMetrics),
		catalog:     catalog,
		coupons:     catalog,
		delivery:    catalog,
		customers:   catalog,
		addresses:   orderspostgres.NewAddressStore(pool),
		idempotency: idem,
		purger:      idem,
		ready:       database.ReadinessCheck(pool),
		close: func() {
			_ = poolStats.Unregister()
			pool.Close()
		},
	}, nil
}

type publisher interface {
	adapters.Publisher
	Close() error
}

func newPublisher(cfg *config.Config, logger *slog.Logger, kafkaMetrics *kafka.Metrics) publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Warn("no kafka brokers configured, notifications are logged only")
		return kafka.NewNoopProducer(logger)
	}
	logger.Info("publishing notifications to kafka", "brokers", cfg.Kafka.Brokers)
	return kafka.NewProducer(kafka.NewWriter(cfg.Kafka.Brokers), kafka.WithMetrics(kafkaMetrics))
}

func purgeIdempotencyKeys(ctx context.Context, store purger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.Purge(runCtx)
			cancel()
			if err != nil {
				logger.Error("idempotency purge failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("purged expired idempotency keys", "count", removed)
			}
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
