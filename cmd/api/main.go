package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/sunpeak-solar/api/internal/handlers"
	"github.com/sunpeak-solar/api/internal/payments"
	"github.com/sunpeak-solar/api/internal/platform/auth"
	"github.com/sunpeak-solar/api/internal/platform/config"
	"github.com/sunpeak-solar/api/internal/platform/idempotency"
	"github.com/sunpeak-solar/api/internal/platform/observability"
	"github.com/sunpeak-solar/api/internal/repositories"
	"github.com/sunpeak-solar/api/internal/repositories/memory"
	"github.com/sunpeak-solar/api/internal/repositories/postgres"
	"github.com/sunpeak-solar/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	registry, pgRegistry := openRegistry(ctx, logger, cfg)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("registry close error", zap.Error(err))
		}
	}()

	authenticator := auth.NewAuthenticator(staticTokens(cfg.Auth))

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: registry.Products(),
		Logger:   zapEventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	inventoryService, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: registry.Inventory(),
		Clock:     time.Now,
		Logger:    zapEventLogger(logger.Named("inventory")),
	})
	if err != nil {
		logger.Fatal("failed to initialise inventory service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      registry.Orders(),
		Contacts:    registry.Contacts(),
		Warehouses:  registry.Warehouses(),
		Catalog:     catalogService,
		Inventory:   inventoryService,
		Tx:          registry,
		Clock:       time.Now,
		IDGenerator: func() string { return ulid.Make().String() },
		Logger:      zapEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	paymentProvider := newPaymentProvider(logger, cfg.Stripe)
	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:     registry.Orders(),
		Provider:   paymentProvider,
		SuccessURL: cfg.Stripe.SuccessURL,
		Clock:      time.Now,
		Logger:     zapEventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	idempotencyStore := idempotency.NewMemoryStore()
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	productHandlers := handlers.NewProductHandlers(authenticator, catalogService, inventoryService)
	inventoryHandlers := handlers.NewInventoryHandlers(authenticator, inventoryService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService, paymentService,
		handlers.WithOrderCreateMiddleware(idempotencyMiddleware))

	healthOpts := []handlers.HealthOption{}
	if pgRegistry != nil {
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("database", pgRegistry.Ping))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithInventoryRoutes(inventoryHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithOrderMergeRoutes(func(api chi.Router) {
			orderHandlers.MergeRoutes(api, idempotencyMiddleware)
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("sunpeak api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openRegistry connects to Postgres when a URL is configured, falling back to
// the in-memory registry when allowed. The second return value is non-nil only
// for the Postgres path and feeds the readiness check.
func openRegistry(ctx context.Context, logger *zap.Logger, cfg config.Config) (repositories.Registry, *postgres.Registry) {
	dsn := strings.TrimSpace(cfg.Database.URL)
	if dsn != "" {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pg, err := postgres.Open(openCtx, dsn)
		if err == nil {
			logger.Info("connected to postgres")
			return pg, pg
		}
		if !cfg.Database.AllowMemoryFallback {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		logger.Warn("postgres unavailable; using in-memory registry", zap.Error(err))
		return memory.NewRegistry(), nil
	}

	if !cfg.Database.AllowMemoryFallback {
		logger.Fatal("database url is required")
	}
	logger.Warn("no database configured; using in-memory registry, data will not persist")
	return memory.NewRegistry(), nil
}

func staticTokens(cfg config.AuthConfig) []auth.StaticToken {
	tokens := make([]auth.StaticToken, 0, len(cfg.AdminTokens)+len(cfg.ViewerTokens))
	for i, token := range cfg.AdminTokens {
		tokens = append(tokens, auth.StaticToken{
			Token: token,
			UID:   fmt.Sprintf("admin-%d", i+1),
			Roles: []string{auth.RoleAdmin},
		})
	}
	for i, token := range cfg.ViewerTokens {
		tokens = append(tokens, auth.StaticToken{
			Token: token,
			UID:   fmt.Sprintf("viewer-%d", i+1),
			Roles: []string{auth.RoleViewer},
		})
	}
	return tokens
}

func newPaymentProvider(logger *zap.Logger, cfg config.StripeConfig) payments.Provider {
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("stripe api key not configured; payment links disabled")
		return payments.Disabled{}
	}

	stripeLogger := logger.Named("stripe")
	provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:   cfg.APIKey,
		Currency: cfg.Currency,
		Clock:    time.Now,
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			zFields := make([]zap.Field, 0, len(fields)+1)
			zFields = append(zFields, zap.String("event", event))
			for k, v := range fields {
				zFields = append(zFields, zap.Any(k, v))
			}
			stripeLogger.Debug("stripe log", zFields...)
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}
	return provider
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}
