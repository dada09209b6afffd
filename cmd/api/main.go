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

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/clearcart/api/internal/di"
	"github.com/clearcart/api/internal/handlers"
	"github.com/clearcart/api/internal/platform/auth"
	"github.com/clearcart/api/internal/platform/config"
	pfirestore "github.com/clearcart/api/internal/platform/firestore"
	"github.com/clearcart/api/internal/platform/idempotency"
	"github.com/clearcart/api/internal/platform/jobs"
	"github.com/clearcart/api/internal/platform/observability"
	"github.com/clearcart/api/internal/platform/secrets"
	"github.com/clearcart/api/internal/repositories"
	fsrepo "github.com/clearcart/api/internal/repositories/firestore"
)

const (
	serviceName = "clearcart-api"

	idempotencyCleanupInterval = time.Hour
	idempotencyCleanupBatch    = 250
	pubsubProbeTimeout         = time.Second
)

func main() {
	logger, err := observability.NewLogger(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Warn("secret manager unavailable; secret references stay unresolved", zap.Error(err))
		fetcher = nil
	}

	var resolver config.SecretResolver
	if fetcher != nil {
		resolver = fetcher
	}
	cfg, err := config.Load(ctx, resolver)
	if err != nil {
		logger.Fatal("load configuration", zap.Error(err))
	}

	provider := pfirestore.NewProvider(cfg.Firestore)

	var (
		pubsubClient *pubsub.Client
		topic        *pubsub.Topic
		publisher    *jobs.PubSubOrderEventPublisher
	)
	if cfg.PubSub.OrderEventsTopic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("create pubsub client", zap.Error(err))
		}
		topic = pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
		publisher, err = jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("create order event publisher", zap.Error(err))
		}
	} else {
		logger.Warn("order events topic not configured; lifecycle events will not be published")
	}

	registryOpts := []fsrepo.RegistryOption{
		fsrepo.WithOrderRepositoryOptions(
			fsrepo.WithCommitTimeout(cfg.Checkout.CommitTimeout),
			fsrepo.WithCommitAttempts(cfg.Checkout.CommitAttempts),
		),
	}
	if topic != nil {
		registryOpts = append(registryOpts, fsrepo.WithHealthChecks(pubsubCheck(topic)))
	}
	registry, err := fsrepo.NewRegistry(provider, registryOpts...)
	if err != nil {
		logger.Fatal("build repository registry", zap.Error(err))
	}

	containerOpts := []di.Option{di.WithLogger(logger)}
	if publisher != nil {
		containerOpts = append(containerOpts, di.WithPublisher(publisher))
	}
	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("build container", zap.Error(err))
	}

	var authn *auth.Authenticator
	if cfg.Firebase.ProjectID != "" {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("create firebase verifier", zap.Error(err))
		}
		authn = auth.NewAuthenticator(verifier)
	} else {
		logger.Warn("firebase project not configured; authenticated routes will reject requests")
	}

	firestoreClient, err := provider.Client(ctx)
	if err != nil {
		logger.Fatal("connect to firestore", zap.Error(err))
	}
	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithTTL(cfg.Server.IdempotencyTTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	cleanupTicker := time.NewTicker(idempotencyCleanupInterval)
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-cleanupTicker.C:
				removed, err := idempotencyStore.CleanupExpired(cleanupCtx, time.Now(), idempotencyCleanupBatch)
				if err != nil {
					logger.Warn("idempotency cleanup failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					logger.Debug("idempotency records expired", zap.Int("removed", removed))
				}
			}
		}
	}()

	var webhookMiddleware func(http.Handler) http.Handler
	if cfg.Webhook.PaymentSecret != "" {
		hmacVerifier := auth.NewHMACVerifier(
			[]byte(cfg.Webhook.PaymentSecret),
			cfg.Webhook.PaymentSecretName,
			auth.NewInMemoryNonceStore(),
		)
		webhookMiddleware = hmacVerifier.Require()
	} else {
		logger.Warn("payment webhook secret not configured; webhook routes will reject requests")
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(container.Services.System),
	)
	catalogHandlers := handlers.NewCatalogHandlers(container.Services.Catalog)
	checkoutHandlers := handlers.NewCheckoutHandlers(authn, container.Services.Checkout, container.Services.Pricing)
	orderHandlers := handlers.NewOrderHandlers(authn, container.Services.Orders)
	adminHandlers := handlers.NewAdminHandlers(authn, container.Services.Orders, container.Services.Catalog)
	webhookHandlers := handlers.NewWebhookHandlers(container.Services.Orders)

	routerOpts := []handlers.Option{
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(traceProjectID(cfg)),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	}
	if webhookMiddleware != nil {
		routerOpts = append(routerOpts, handlers.WithWebhookMiddlewares(webhookMiddleware))
	}

	router := handlers.NewRouter(routerOpts...)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("clearcart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if topic != nil {
		topic.Stop()
	}
	if pubsubClient != nil {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("close container", zap.Error(err))
	}
}

// pubsubCheck reports whether the order events topic is reachable and exists.
func pubsubCheck(topic *pubsub.Topic) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "pubsub",
		Timeout: pubsubProbeTimeout,
		Check: func(ctx context.Context) error {
			exists, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("topic %s does not exist", topic.ID())
			}
			return nil
		},
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	project := strings.TrimSpace(os.Getenv("SECRET_PROJECT_ID"))
	if project == "" {
		project = strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT"))
	}

	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := strings.TrimSpace(os.Getenv("SECRET_FALLBACK_FILE")); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewFetcher(ctx, opts...)
}
