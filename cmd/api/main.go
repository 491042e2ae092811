package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/adunni-couture/api/internal/di"
	"github.com/adunni-couture/api/internal/documents"
	"github.com/adunni-couture/api/internal/handlers"
	"github.com/adunni-couture/api/internal/notifications"
	"github.com/adunni-couture/api/internal/payments"
	"github.com/adunni-couture/api/internal/platform/auth"
	"github.com/adunni-couture/api/internal/platform/config"
	pfirestore "github.com/adunni-couture/api/internal/platform/firestore"
	"github.com/adunni-couture/api/internal/platform/idempotency"
	"github.com/adunni-couture/api/internal/platform/jobs"
	"github.com/adunni-couture/api/internal/platform/observability"
	"github.com/adunni-couture/api/internal/platform/secrets"
	platformstorage "github.com/adunni-couture/api/internal/platform/storage"
	firestoreRepo "github.com/adunni-couture/api/internal/repositories/firestore"
	"github.com/adunni-couture/api/internal/services"

	"github.com/go-chi/chi/v5"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

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

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	requiredSecrets := requiredSecretNames(envValues)
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecrets...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	build := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()
	uploader, err := platformstorage.NewUploader(storageClient)
	if err != nil {
		logger.Fatal("failed to initialise storage uploader", zap.Error(err))
	}

	documentSigner := buildDocumentSigner(logger.Named("storage"), cfg)

	gatewayLogger := logger.Named("gateway")
	paystack, err := payments.NewPaystackProvider(payments.PaystackProviderConfig{
		SecretKey:  cfg.Gateway.SecretKey,
		BaseURL:    cfg.Gateway.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Gateway.Timeout},
		Logger:     eventLogger(gatewayLogger),
		Clock:      time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise paystack provider", zap.Error(err))
	}
	gateway, err := payments.NewManager(
		map[string]payments.Provider{"paystack": paystack},
		payments.WithDefaultProvider("paystack"),
	)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	var documentGenerator services.DocumentGenerator
	if strings.TrimSpace(cfg.Documents.RendererEndpoint) != "" {
		renderer, err := documents.NewHTTPRenderer(documents.HTTPRendererConfig{
			Endpoint:   cfg.Documents.RendererEndpoint,
			AuthToken:  cfg.Documents.AuthToken,
			HTTPClient: &http.Client{Timeout: cfg.Documents.Timeout},
		})
		if err != nil {
			logger.Fatal("failed to initialise document renderer", zap.Error(err))
		}
		documentGenerator, err = documents.NewGenerator(documents.GeneratorDeps{
			Renderer: renderer,
			Store:    uploader,
			Bucket:   cfg.Storage.DocumentsBucket,
			Timeout:  cfg.Documents.Timeout,
			Clock:    time.Now,
			Logger:   eventLogger(logger.Named("documents")),
		})
		if err != nil {
			logger.Fatal("failed to initialise document generator", zap.Error(err))
		}
	} else {
		logger.Warn("document renderer not configured; invoice and receipt PDFs disabled")
	}

	notifier := buildNotifier(logger.Named("notifications"), cfg, registry)

	var eventPublisher services.OrderEventPublisher
	if topicName := strings.TrimSpace(cfg.Events.OrderTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Firebase.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicName)
		defer topic.Stop()
		eventPublisher, err = jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	} else {
		logger.Warn("order event topic not configured; order events disabled")
	}

	container, err := di.NewContainer(ctx, cfg, di.Deps{
		Registry:  registry,
		Gateway:   gateway,
		Documents: documentGenerator,
		Notifier:  notifier,
		Events:    eventPublisher,
		Build: di.BuildInfo{
			Version:     build.Version,
			CommitSHA:   build.CommitSHA,
			Environment: build.Environment,
			StartedAt:   build.StartedAt,
		},
		Clock:  time.Now,
		Logger: eventLogger(logger.Named("services")),
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}
	svc := container.Services

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
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

	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)
	hmacMiddleware := buildHMACMiddleware(logger.Named("auth"), cfg)

	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog, svc.Shipping, svc.Promotions)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Carts)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout,
		handlers.WithCheckoutRateLimit(cfg.RateLimits.AuthenticatedPerMinute, time.Minute),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)
	customOrderHandlers := handlers.NewCustomOrderHandlers(authenticator, svc.CustomOrders)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments,
		handlers.WithVerifyRateLimit(cfg.RateLimits.AuthenticatedPerMinute, time.Minute),
	)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Users, svc.Notifications, svc.Payments,
		handlers.WithDocumentURLSigner(documentSigner),
	)
	adminCatalogHandlers := handlers.NewAdminCatalogHandlers(authenticator, svc.Catalog, svc.Promotions, svc.Shipping)
	webhookHandlers := handlers.NewWebhookHandlers(svc.Payments)
	internalHandlers := handlers.NewInternalHandlers(svc.Payments, svc.System)
	healthHandlers := handlers.NewHealthHandlers(svc.System)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		idempotencyMiddleware,
	}

	adminRoutes := func(r chi.Router) {
		r.Route("/orders", orderHandlers.AdminRoutes)
		if cfg.Features.EnableCustomOrders {
			r.Route("/custom-orders", customOrderHandlers.AdminRoutes)
		}
		adminCatalogHandlers.Routes(r)
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithAdminRoutes(adminRoutes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if cfg.Features.EnableCustomOrders {
		opts = append(opts, handlers.WithCustomOrderRoutes(customOrderHandlers.Routes))
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}
	if hmacMiddleware != nil {
		opts = append(opts, handlers.WithWebhookMiddlewares(hmacMiddleware))
	}

	router := handlers.NewRouter(opts...)
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
		serverLogger.Info("adunni couture api listening")
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

// eventLogger adapts a zap logger to the event/fields callback the service and
// infrastructure layers log through.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) di.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return di.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func buildNotifier(logger *zap.Logger, cfg config.Config, registry *firestoreRepo.Registry) services.Notifier {
	channels := make([]notifications.Channel, 0, 3)

	if registry != nil {
		inApp, err := notifications.NewInAppChannel(notifications.InAppChannelDeps{
			Notifications: registry.Notifications(),
			IDGenerator:   func() string { return "ntf_" + ulid.Make().String() },
			Clock:         time.Now,
		})
		if err != nil {
			logger.Warn("in-app channel init failed", zap.Error(err))
		} else {
			channels = append(channels, inApp)
		}
	}

	if strings.TrimSpace(cfg.Email.APIKey) != "" {
		email, err := notifications.NewEmailChannel(notifications.EmailChannelConfig{
			APIKey:      cfg.Email.APIKey,
			BaseURL:     cfg.Email.BaseURL,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			HTTPClient:  &http.Client{Timeout: cfg.Email.Timeout},
		})
		if err != nil {
			logger.Warn("email channel init failed", zap.Error(err))
		} else {
			channels = append(channels, email)
		}
	}

	if strings.TrimSpace(cfg.Messaging.WebhookURL) != "" {
		messaging, err := notifications.NewMessagingChannel(notifications.MessagingChannelConfig{
			WebhookURL: cfg.Messaging.WebhookURL,
			AuthToken:  cfg.Messaging.AuthToken,
			HTTPClient: &http.Client{Timeout: cfg.Messaging.Timeout},
		})
		if err != nil {
			logger.Warn("messaging channel init failed", zap.Error(err))
		} else {
			channels = append(channels, messaging)
		}
	}

	if len(channels) == 0 {
		logger.Warn("no notification channels configured; notices disabled")
		return nil
	}
	fanout, err := notifications.NewFanOut(notifications.FanOutDeps{
		Channels: channels,
		Logger:   eventLogger(logger),
	})
	if err != nil {
		logger.Warn("notification fan-out init failed", zap.Error(err))
		return nil
	}
	return di.NewFanOutNotifier(fanout)
}

func buildDocumentSigner(logger *zap.Logger, cfg config.Config) handlers.DocumentURLSigner {
	signerKey := strings.TrimSpace(cfg.Storage.SignedURLKey)
	if signerKey == "" {
		logger.Warn("storage signer key not configured; document urls returned as object paths")
		return nil
	}
	signer, err := platformstorage.NewKeyfileSigner([]byte(signerKey))
	if err != nil {
		logger.Warn("storage signer key invalid; document urls returned as object paths", zap.Error(err))
		return nil
	}
	urlSigner, err := platformstorage.NewURLSigner(signer)
	if err != nil {
		logger.Warn("signed url client init failed", zap.Error(err))
		return nil
	}

	bucket := cfg.Storage.DocumentsBucket
	return func(ctx context.Context, objectPath string, identity *auth.Identity) (string, bool) {
		result, err := urlSigner.DownloadURL(ctx, bucket, objectPath, platformstorage.DownloadOptions{
			Identity:    identity,
			Disposition: "attachment",
		})
		if err != nil {
			logger.Debug("document url signing failed", zap.String("object", objectPath), zap.Error(err))
			return "", false
		}
		return result.URL, true
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	keys := auth.NewRemoteKeySet(cfg.Security.OIDC.JWKSURL, auth.WithKeySetLogger(adapter))
	verifier := auth.NewOIDCVerifier(keys, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return verifier.Require(audience, issuers)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	secretValues := make(map[string]string)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		secretValues[strings.ToLower(key)] = value
	}
	if len(secretValues) == 0 {
		return nil
	}

	provider := staticSecretSource{secrets: secretValues}
	nonces := auth.NewMemoryNonceStore()
	adapter := observability.NewPrintfAdapter(logger)
	verifier := auth.NewWebhookVerifier(provider, nonces,
		auth.WithWebhookLogger(adapter),
		auth.WithWebhookHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithWebhookClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithWebhookNonceTTL(cfg.Security.HMAC.NonceTTL),
	)

	resolver := webhookSecretResolver(secretValues)
	return verifier.RequireResolved(resolver)
}

type staticSecretSource struct {
	secrets map[string]string
}

func (p staticSecretSource) LookupSecret(_ context.Context, name string) (string, error) {
	if len(p.secrets) == 0 {
		return "", errors.New("auth: hmac secrets not configured")
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", errors.New("auth: secret name required")
	}
	if secret, ok := p.secrets[key]; ok && secret != "" {
		return secret, nil
	}
	return "", errors.New("auth: secret not found")
}

// webhookSecretResolver picks the signing secret matching the webhook path, so
// /webhooks/gateway verifies with the "gateway" secret and unknown paths fall
// back to "default" when one is configured.
func webhookSecretResolver(secretValues map[string]string) func(*http.Request) (string, bool) {
	return func(r *http.Request) (string, bool) {
		path := r.URL.Path
		if idx := strings.Index(path, "/webhooks/"); idx >= 0 {
			path = path[idx+len("/webhooks/"):]
		}
		path = strings.Trim(path, "/")

		candidates := make([]string, 0, 2)
		if path != "" {
			segments := strings.Split(path, "/")
			candidates = append(candidates, strings.ToLower(segments[0]))
		}
		candidates = append(candidates, "default")

		for _, candidate := range candidates {
			if secret, ok := secretValues[candidate]; ok && secret != "" {
				return candidate, true
			}
		}
		return "", false
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"Gateway.SecretKey",
	}

	hmacRaw := ""
	if env != nil {
		hmacRaw = strings.TrimSpace(env["API_SECURITY_HMAC_SECRETS"])
	}
	for _, key := range parseHMACSecretKeys(hmacRaw) {
		required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
	}

	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func parseHMACSecretKeys(raw string) []string {
	values := parseKeyValueList(raw)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)
	return keys
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
