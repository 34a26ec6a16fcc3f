// Package app собирает компоненты сервиса и управляет их жизненным циклом.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/config"
	grpcapi "github.com/Dhoini/premium-billing-reconciler/internal/api/grpc"
	"github.com/Dhoini/premium-billing-reconciler/internal/api/rest"
	"github.com/Dhoini/premium-billing-reconciler/internal/api/rest/handlers"
	"github.com/Dhoini/premium-billing-reconciler/internal/db"
	"github.com/Dhoini/premium-billing-reconciler/internal/directory"
	"github.com/Dhoini/premium-billing-reconciler/internal/integration/stripe"
	"github.com/Dhoini/premium-billing-reconciler/internal/kafka"
	"github.com/Dhoini/premium-billing-reconciler/internal/metrics"
	"github.com/Dhoini/premium-billing-reconciler/internal/middleware"
	"github.com/Dhoini/premium-billing-reconciler/internal/repository"
	"github.com/Dhoini/premium-billing-reconciler/internal/repository/postgres"
	"github.com/Dhoini/premium-billing-reconciler/internal/service"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *rest.Server
	grpcServer *grpcapi.Server
	checks     map[string]handlers.HealthCheck
	closers    []func() error
}

// New создает и инициализирует приложение. При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		log:    log,
		checks: make(map[string]handlers.HealthCheck),
	}
	if err := a.init(ctx); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			log.Errorw("Failed to release resources after init error", "error", closeErr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	registry := metrics.NewRegistry()

	store, journal, err := a.initStore(ctx)
	if err != nil {
		return err
	}
	store = a.initCache(store)

	dir, err := a.initDirectory()
	if err != nil {
		return err
	}

	publisher, err := a.initPublisher(ctx)
	if err != nil {
		return err
	}

	policy := a.cfg.Reconcile.UsagePolicy()
	webhookService := service.NewWebhookService(service.WebhookServiceConfig{
		Normalizer: stripe.NewNormalizer(a.log),
		Resolver:   service.NewResolver(store, dir, policy, a.log),
		Reconciler: service.NewReconciler(store, policy, a.cfg.Reconcile.BillingCycle(), a.log),
		Journal:    journal,
		Publisher:  publisher,
		Metrics:    metrics.NewReconcileMetrics(registry),
		Timeout:    a.cfg.Reconcile.Timeout,
	}, a.log)

	var tokens middleware.TokenValidator
	if a.cfg.Auth.JWTSecret != "" {
		tokens = middleware.NewHMACTokenValidator(a.cfg.Auth.JWTSecret)
	}

	router := rest.SetupRouter(rest.RouterDeps{
		Verifier:     stripe.NewVerifier(a.cfg.Stripe.WebhookSecret, a.cfg.Stripe.Tolerance),
		Webhooks:     webhookService,
		Accounts:     service.NewAccountService(store),
		Tokens:       tokens,
		Registry:     registry,
		HealthChecks: a.checks,
	}, a.log)
	a.httpServer = rest.NewServer(router, a.cfg.Server, a.log)

	if a.cfg.GRPC.Enabled {
		a.grpcServer = grpcapi.NewServer(a.cfg.GRPC, a.log)
	}
	return nil
}

func (a *App) initStore(ctx context.Context) (repository.AccountStore, repository.WebhookEventRepository, error) {
	if a.cfg.Database.Driver == "memory" {
		a.log.Warnw("Using in-memory store, state is lost on restart")
		return repository.NewInMemoryAccountStore(a.log), repository.NewInMemoryWebhookEventRepository(), nil
	}

	dsn := a.cfg.Database.GetDSN()
	pool, err := postgres.NewConnection(ctx, dsn, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect account store: %w", err)
	}
	a.onClose(func() error {
		pool.Close()
		return nil
	})
	a.checks["postgres"] = pool.Ping

	dbClient, err := db.NewDBClient(ctx, dsn, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect journal: %w", err)
	}
	a.onClose(dbClient.Close)

	if a.cfg.Database.Migrate {
		if err := dbClient.Migrate(ctx); err != nil {
			return nil, nil, err
		}
	}

	return postgres.NewAccountStore(pool, a.log), postgres.NewWebhookEventRepository(dbClient.DB(), a.log), nil
}

// initCache оборачивает хранилище кешем Redis. Недоступный Redis не мешает запуску.
func (a *App) initCache(store repository.AccountStore) repository.AccountStore {
	if a.cfg.Redis.Addr == "" {
		return store
	}

	cache, err := repository.NewRedisCacheRepository(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB, a.cfg.Redis.TTL, a.log)
	if err != nil {
		a.log.Warnw("Redis is unavailable, running without correlation cache", "error", err)
		return store
	}
	a.onClose(cache.Close)
	a.checks["redis"] = cache.Ping

	return repository.NewCachedAccountStore(store, cache, a.log)
}

func (a *App) initDirectory() (directory.Directory, error) {
	if a.cfg.Discord.BotToken != "" {
		discord, err := directory.NewDiscordDirectory(a.cfg.Discord.BotToken, a.log)
		if err != nil {
			return nil, fmt.Errorf("init discord directory: %w", err)
		}
		return directory.NewCachedDirectory(discord, a.cfg.Discord.CacheTTL, a.log), nil
	}

	if len(a.cfg.Discord.StaticIDs) == 0 {
		a.log.Warnw("No user directory configured, every checkout will be unresolved")
	} else {
		a.log.Infow("Using static user directory", "ids", len(a.cfg.Discord.StaticIDs))
	}
	return directory.NewStaticDirectory(a.cfg.Discord.StaticIDs...), nil
}

func (a *App) initPublisher(ctx context.Context) (kafka.Publisher, error) {
	kc := a.cfg.Kafka
	if len(kc.Brokers) > 0 {
		if err := kafka.EnsureKafkaTopics(ctx, kc.Brokers, kc.Topic, a.log); err != nil {
			a.log.Warnw("Failed to ensure Kafka topic, relying on broker auto-creation", "error", err, "topic", kc.Topic)
		}
	}

	publisher, err := kafka.NewPublisher(kc.Driver, kc.Brokers, kc.Topic, a.log)
	if err != nil {
		return nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	a.onClose(publisher.Close)
	return publisher, nil
}

// Run запускает серверы и блокируется, пока ctx не будет отменен или один из серверов не упадет
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.httpServer.Start)
	if a.grpcServer != nil {
		g.Go(a.grpcServer.Start)
	}

	g.Go(func() error {
		<-gctx.Done()

		// Сначала перестаем отвечать SERVING, затем дожидаемся текущих запросов
		if a.grpcServer != nil {
			a.grpcServer.SetServing(false)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		err := a.httpServer.Shutdown(shutdownCtx)
		if a.grpcServer != nil {
			a.grpcServer.Stop()
		}
		return err
	})

	return g.Wait()
}

// Close освобождает ресурсы в порядке, обратном открытию
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}
