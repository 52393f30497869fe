package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/Sushant736/propscholar-monorepo-sub000/internal/di"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/handlers"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/auth"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/config"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/events"
	pfirestore "github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/firestore"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/observability"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/secrets"
	platformstorage "github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/storage"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories"
	firestoreRepo "github.com/Sushant736/propscholar-monorepo-sub000/internal/repositories/firestore"
	"github.com/Sushant736/propscholar-monorepo-sub000/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	level, _ := config.Value("API_LOG_LEVEL")
	baseLogger, err := observability.NewLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets("PhonePe.ClientSecret", "PhonePe.CallbackPassword"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, firestoreOptions(cfg)...)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	eventLogger := observability.EventLogger(logger.Named("orders"))
	infra := di.Infrastructure{
		Metrics: metrics,
		Logger:  eventLogger,
	}

	var checks []repositories.DependencyCheck
	if bucket := strings.TrimSpace(cfg.Storage.CallbackArchiveBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx, googleClientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		archive, err := platformstorage.NewCallbackArchive(storageClient, bucket)
		if err != nil {
			logger.Fatal("failed to initialise callback archive", zap.Error(err))
		}
		infra.Archive = archive
		infra.Closers = append(infra.Closers, func(context.Context) error { return storageClient.Close() })
		checks = append(checks, repositories.DependencyCheck{
			Name:    "callbackArchive",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				_, err := storageClient.Bucket(bucket).Attrs(ctx)
				return err
			},
		})
	} else {
		logger.Warn("storage: callback archive bucket not configured; rejected callbacks will not be archived")
	}

	publisher, closePublisher, err := newEventPublisher(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	if publisher != nil {
		infra.Events = publisher
		infra.Closers = append(infra.Closers, closePublisher)
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, checks...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	oidcMiddleware := buildOIDCMiddleware(logger, cfg)

	orderHandlers := handlers.NewOrderHandlers(handlers.OrderHandlersDeps{
		Authenticator:  authenticator,
		Checkout:       container.Services.Checkout,
		Orders:         container.Services.Orders,
		Reconciliation: container.Services.Reconciliation,
	})
	internalHandlers := handlers.NewInternalOrderHandlers(container.Services.Reconciliation, container.Services.Orders)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthRepository(registry.Health()),
		handlers.WithHealthBuildInfo(buildInfo(cfg, startedAt)),
	)

	httpLogger := logger.Named("http")
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(metrics),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("orders api listening", zap.String("environment", cfg.Security.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		value, _ := config.Value(key)
		return value
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	var clientOpts []option.ClientOption
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credentialsFile))
	}

	return secrets.NewFetcher(ctx, secrets.Config{
		DefaultProjectID: defaultProject,
		FallbackFile:     fallbackPath,
		Logger:           logger.Named("secrets"),
		ClientOptions:    clientOpts,
	})
}

// newEventPublisher returns a nil publisher for the "none" driver.
func newEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (services.OrderEventPublisher, func(context.Context) error, error) {
	switch cfg.Events.Driver {
	case config.EventsDriverPubSub:
		client, err := pubsub.NewClient(ctx, traceProjectID(cfg), googleClientOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.Events.PubSubTopic))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("events: publishing order events to pubsub", zap.String("topic", cfg.Events.PubSubTopic))
		return publisher, func(context.Context) error {
			publisher.Stop()
			return client.Close()
		}, nil
	case config.EventsDriverKafka:
		publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
			Logger:  logger.Named("kafka"),
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("events: publishing order events to kafka",
			zap.Strings("brokers", cfg.Events.KafkaBrokers),
			zap.String("topic", cfg.Events.KafkaTopic),
		)
		return publisher, func(context.Context) error { return publisher.Close() }, nil
	default:
		logger.Info("events: order event publishing disabled")
		return nil, nil, nil
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	validator := auth.NewOIDCValidator(auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, nil, nil))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func firestoreOptions(cfg config.Config) []pfirestore.ProviderOption {
	if opts := googleClientOptions(cfg); len(opts) > 0 && cfg.Firestore.EmulatorHost == "" {
		return []pfirestore.ProviderOption{pfirestore.WithClientOptions(opts...)}
	}
	return nil
}

func googleClientOptions(cfg config.Config) []option.ClientOption {
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func buildInfo(cfg config.Config, started time.Time) handlers.BuildInfo {
	version, _ := config.Value("API_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit, _ := config.Value("API_BUILD_COMMIT_SHA")
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
