// Package config assembles runtime configuration from defaults, an
// optional .env file, the process environment, and Secret Manager
// references. Values containing secret:// (or the legacy sm://) scheme
// are resolved through a SecretResolver before the config is returned.
package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile               = ".env"
	defaultPort                  = "8080"
	defaultReadTimeout           = 15 * time.Second
	defaultWriteTimeout          = 30 * time.Second
	defaultIdleTimeout           = 120 * time.Second
	defaultCurrency              = "NGN"
	defaultGatewayBaseURL        = "https://api.paystack.co"
	defaultGatewayTimeout        = 20 * time.Second
	defaultEmailTimeout          = 15 * time.Second
	defaultMessagingTimeout      = 10 * time.Second
	defaultDocumentTimeout       = 30 * time.Second
	defaultRateLimitDefault      = 120
	defaultRateLimitAuth         = 240
	defaultRateLimitWebhookBurst = 60
	defaultSecurityEnvironment   = "local"
	defaultOIDCJWKSURL           = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer        = "https://accounts.google.com"
	defaultSecurityIAPIssuer     = "https://cloud.google.com/iap"
	defaultHMACSignatureHeader   = "X-Signature"
	defaultHMACTimestampHeader   = "X-Signature-Timestamp"
	defaultHMACNonceHeader       = "X-Signature-Nonce"
	defaultHMACClockSkew         = 5 * time.Minute
	defaultHMACNonceTTL          = 5 * time.Minute
	defaultIdempotencyHeader     = "Idempotency-Key"
	defaultIdempotencyTTL        = 24 * time.Hour
	defaultIdempotencyInterval   = time.Hour
	defaultIdempotencyBatchSize  = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	Gateway     GatewayConfig
	Email       EmailConfig
	Messaging   MessagingConfig
	Documents   DocumentsConfig
	Events      EventsConfig
	RateLimits  RateLimitConfig
	Features    FeatureFlags
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig lists bucket names used by the application.
type StorageConfig struct {
	DocumentsBucket string
	CatalogBucket   string
	SignedURLKey    string
	PublicBaseURL   string
}

// GatewayConfig collects credentials and endpoints for the card payment gateway.
// The secret key must never reach a client; verification always runs server-side.
type GatewayConfig struct {
	PublicKey string
	SecretKey string
	BaseURL   string
	Currency  string
	Timeout   time.Duration
}

// EmailConfig configures the transactional email sender.
type EmailConfig struct {
	APIKey      string
	BaseURL     string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

// MessagingConfig configures the external messaging webhook channel.
type MessagingConfig struct {
	WebhookURL string
	AuthToken  string
	Timeout    time.Duration
}

// DocumentsConfig defines the PDF renderer endpoint used for invoices/receipts.
type DocumentsConfig struct {
	RendererEndpoint string
	AuthToken        string
	Timeout          time.Duration
}

// EventsConfig names the Pub/Sub topics order events are published on.
type EventsConfig struct {
	OrderTopic string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute       int
	AuthenticatedPerMinute int
	WebhookBurst           int
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnablePromotions   bool
	EnableCustomOrders bool
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
	HMAC        HMACConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
}

// HMACConfig captures webhook signing expectations.
type HMACConfig struct {
	Secrets         map[string]string
	SignatureHeader string
	TimestampHeader string
	NonceHeader     string
	ClockSkew       time.Duration
	NonceTTL        time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves secret:// references to their values.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError reports required fields that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes a failure while resolving one secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError reports required secrets that resolved to nothing.
// Error output only ever shows redacted identifiers.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errNoResolver = errors.New("secret resolver not configured")

type loader struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	resolver        SecretResolver
	requiredSecrets []string
}

// Option customises Load behaviour.
type Option func(*loader)

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// WithEnvMap injects explicit values. They win over the process
// environment and the .env file.
func WithEnvMap(values map[string]string) Option {
	return func(l *loader) { l.envMap = values }
}

// WithoutSystemEnv ignores the process environment entirely.
func WithoutSystemEnv() Option {
	return func(l *loader) { l.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(l *loader) { l.resolver = resolver }
}

// WithRequiredSecrets marks config fields that must end up non-empty,
// named by loader path such as "Gateway.SecretKey" or
// "Security.HMAC.Secrets[gateway]".
func WithRequiredSecrets(names ...string) Option {
	return func(l *loader) { l.requiredSecrets = append(l.requiredSecrets, names...) }
}

func newLoader(opts []Option) loader {
	l := loader{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&l)
		}
	}
	return l
}

// environment is the merged key/value view Load reads from.
type environment map[string]string

// EnvironmentValues returns the merged environment Load would see, so
// callers can initialise dependencies (like the secret fetcher) before
// loading the full config. Precedence is .env < process env < WithEnvMap.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return newLoader(opts).environment()
}

func (l loader) environment() (environment, error) {
	merged := make(environment)

	fileValues, err := parseDotEnv(l.envFile)
	if err != nil {
		return nil, err
	}
	for key, value := range fileValues {
		merged[key] = value
	}

	if l.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			merged[strings.TrimSpace(key)] = value
		}
	}

	for key, value := range l.envMap {
		merged[key] = value
	}
	return merged, nil
}

func (e environment) str(key, fallback string) string {
	if value := e[key]; value != "" {
		return value
	}
	return fallback
}

func (e environment) duration(key string, fallback time.Duration) time.Duration {
	if value := e[key]; value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (e environment) num(key string, fallback int) int {
	if value := e[key]; value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func (e environment) flag(key string, fallback bool) bool {
	switch strings.ToLower(e[key]) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}

func (e environment) list(key string) []string {
	out := []string{}
	for _, part := range strings.Split(e[key], ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pairs parses "name=value,name=value" into a map with lowercase names.
func (e environment) pairs(key string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(e[key], ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name != "" && value != "" {
			out[name] = value
		}
	}
	return out
}

// Load assembles the application configuration.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := newLoader(opts)

	env, err := l.environment()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			DocumentsBucket: env.str("API_STORAGE_DOCUMENTS_BUCKET", ""),
			CatalogBucket:   env.str("API_STORAGE_CATALOG_BUCKET", ""),
			SignedURLKey:    env.str("API_STORAGE_SIGNED_URL_KEY", ""),
			PublicBaseURL:   env.str("API_STORAGE_PUBLIC_BASE_URL", ""),
		},
		Gateway: GatewayConfig{
			PublicKey: env.str("API_GATEWAY_PUBLIC_KEY", ""),
			SecretKey: env.str("API_GATEWAY_SECRET_KEY", ""),
			BaseURL:   env.str("API_GATEWAY_BASE_URL", defaultGatewayBaseURL),
			Currency:  env.str("API_GATEWAY_CURRENCY", defaultCurrency),
			Timeout:   env.duration("API_GATEWAY_TIMEOUT", defaultGatewayTimeout),
		},
		Email: EmailConfig{
			APIKey:      env.str("API_EMAIL_API_KEY", ""),
			BaseURL:     env.str("API_EMAIL_BASE_URL", ""),
			FromAddress: env.str("API_EMAIL_FROM_ADDRESS", ""),
			FromName:    env.str("API_EMAIL_FROM_NAME", "Adunni Couture"),
			Timeout:     env.duration("API_EMAIL_TIMEOUT", defaultEmailTimeout),
		},
		Messaging: MessagingConfig{
			WebhookURL: env.str("API_MESSAGING_WEBHOOK_URL", ""),
			AuthToken:  env.str("API_MESSAGING_AUTH_TOKEN", ""),
			Timeout:    env.duration("API_MESSAGING_TIMEOUT", defaultMessagingTimeout),
		},
		Documents: DocumentsConfig{
			RendererEndpoint: env.str("API_DOCUMENTS_RENDERER_ENDPOINT", ""),
			AuthToken:        env.str("API_DOCUMENTS_AUTH_TOKEN", ""),
			Timeout:          env.duration("API_DOCUMENTS_TIMEOUT", defaultDocumentTimeout),
		},
		Events: EventsConfig{
			OrderTopic: env.str("API_EVENTS_ORDER_TOPIC", ""),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute:       env.num("API_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitDefault),
			AuthenticatedPerMinute: env.num("API_RATELIMIT_AUTH_PER_MIN", defaultRateLimitAuth),
			WebhookBurst:           env.num("API_RATELIMIT_WEBHOOK_BURST", defaultRateLimitWebhookBurst),
		},
		Features: FeatureFlags{
			EnablePromotions:   env.flag("API_FEATURE_PROMOTIONS", true),
			EnableCustomOrders: env.flag("API_FEATURE_CUSTOM_ORDERS", true),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:   env.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:  env.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Audiences: env.pairs("API_SECURITY_OIDC_AUDIENCES"),
				Issuers:   env.list("API_SECURITY_OIDC_ISSUERS"),
			},
			HMAC: HMACConfig{
				Secrets:         env.pairs("API_SECURITY_HMAC_SECRETS"),
				SignatureHeader: env.str("API_SECURITY_HMAC_HEADER_SIGNATURE", defaultHMACSignatureHeader),
				TimestampHeader: env.str("API_SECURITY_HMAC_HEADER_TIMESTAMP", defaultHMACTimestampHeader),
				NonceHeader:     env.str("API_SECURITY_HMAC_HEADER_NONCE", defaultHMACNonceHeader),
				ClockSkew:       env.duration("API_SECURITY_HMAC_CLOCK_SKEW", defaultHMACClockSkew),
				NonceTTL:        env.duration("API_SECURITY_HMAC_NONCE_TTL", defaultHMACNonceTTL),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: env.num("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	// Firestore project defaults to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer, defaultSecurityIAPIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		cfg.Security.OIDC.Audience = cfg.Security.OIDC.Audiences[cfg.Security.Environment]
	}

	resolved := make(map[string]string)

	for name, value := range cfg.Security.HMAC.Secrets {
		field := fmt.Sprintf("Security.HMAC.Secrets[%s]", name)
		secret, err := l.resolveValue(ctx, value)
		if err != nil {
			return Config{}, err
		}
		cfg.Security.HMAC.Secrets[name] = secret
		resolved[field] = strings.TrimSpace(secret)
	}

	secretFields := map[string]*string{
		"Gateway.SecretKey":    &cfg.Gateway.SecretKey,
		"Email.APIKey":         &cfg.Email.APIKey,
		"Messaging.AuthToken":  &cfg.Messaging.AuthToken,
		"Documents.AuthToken":  &cfg.Documents.AuthToken,
		"Storage.SignedURLKey": &cfg.Storage.SignedURLKey,
	}
	for field, target := range secretFields {
		secret, err := l.resolveValue(ctx, *target)
		if err != nil {
			return Config{}, err
		}
		*target = secret
		resolved[field] = strings.TrimSpace(secret)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if err := l.checkRequiredSecrets(resolved); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveValue passes plain values through and sends secret references
// to the resolver.
func (l loader) resolveValue(ctx context.Context, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		trimmed = "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	if !strings.HasPrefix(trimmed, "secret://") {
		return value, nil
	}
	if l.resolver == nil {
		return "", &SecretError{Ref: trimmed, Err: errNoResolver}
	}
	secret, err := l.resolver.ResolveSecret(ctx, trimmed)
	if err != nil {
		return "", &SecretError{Ref: trimmed, Err: err}
	}
	return secret, nil
}

func (l loader) checkRequiredSecrets(resolved map[string]string) error {
	seen := make(map[string]struct{})
	var missing []string
	for _, name := range l.requiredSecrets {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func (cfg Config) validate() error {
	var missing []string
	require := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	require(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	require(cfg.Storage.DocumentsBucket != "", "Storage.DocumentsBucket")
	require(cfg.Gateway.BaseURL != "", "Gateway.BaseURL")
	require(cfg.Gateway.Currency != "", "Gateway.Currency")
	require(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	require(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	require(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	require(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// parseDotEnv reads KEY=VALUE lines, skipping comments and blanks. A
// missing file is not an error; .env is a local convenience.
func parseDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}
