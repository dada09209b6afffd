package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the corresponding environment variables are unset.
const (
	DefaultHTTPPort        = 8080
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 20 * time.Second
	DefaultCommitTimeout   = 10 * time.Second
	DefaultCommitAttempts  = 5
	DefaultIdempotencyTTL  = 24 * time.Hour
	DefaultPageSize        = 20
	DefaultMaxPageSize     = 100
)

// Config is the fully resolved service configuration.
type Config struct {
	Environment string

	Server    ServerConfig
	Firestore FirestoreConfig
	Firebase  FirebaseConfig
	PubSub    PubSubConfig
	Checkout  CheckoutConfig
	Webhook   WebhookConfig
}

// ServerConfig groups HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	IdempotencyTTL  time.Duration
}

// Addr renders the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FirestoreConfig groups Firestore connection settings.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// FirebaseConfig groups Firebase Auth settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// PubSubConfig groups event publishing settings. Empty topics disable the
// corresponding publisher.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// CheckoutConfig bounds the order commit transaction.
type CheckoutConfig struct {
	CommitTimeout  time.Duration
	CommitAttempts int
	DefaultPage    int
	MaxPage        int
}

// WebhookConfig carries the shared secret verifying payment callbacks. The
// value may be a literal or a secret:// reference resolved at load time.
type WebhookConfig struct {
	PaymentSecretName string
	PaymentSecret     string
}

// SecretResolver resolves secret:// references found in the environment.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// ValidationError reports every invalid or missing setting at once.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "config: invalid configuration"
	}
	return "config: invalid configuration: " + strings.Join(e.Fields, ", ")
}

// Load reads configuration from the environment. Secret references are
// resolved through the supplied resolver; a nil resolver leaves them verbatim
// so local development can inject literals directly.
func Load(ctx context.Context, resolver SecretResolver) (Config, error) {
	cfg := Config{
		Environment: stringFromEnv("API_ENVIRONMENT", "local"),
		Server: ServerConfig{
			Host:            stringFromEnv("HTTP_HOST", ""),
			Port:            intFromEnv("HTTP_PORT", DefaultHTTPPort),
			RequestTimeout:  durationFromEnv("HTTP_REQUEST_TIMEOUT", DefaultRequestTimeout),
			ShutdownTimeout: durationFromEnv("HTTP_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
			IdempotencyTTL:  durationFromEnv("IDEMPOTENCY_TTL", DefaultIdempotencyTTL),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringFromEnv("FIRESTORE_PROJECT_ID", os.Getenv("GOOGLE_CLOUD_PROJECT")),
			EmulatorHost: stringFromEnv("FIRESTORE_EMULATOR_HOST", ""),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringFromEnv("FIREBASE_PROJECT_ID", os.Getenv("GOOGLE_CLOUD_PROJECT")),
			CredentialsFile: stringFromEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        stringFromEnv("PUBSUB_PROJECT_ID", os.Getenv("GOOGLE_CLOUD_PROJECT")),
			OrderEventsTopic: stringFromEnv("PUBSUB_ORDER_EVENTS_TOPIC", ""),
		},
		Checkout: CheckoutConfig{
			CommitTimeout:  durationFromEnv("CHECKOUT_COMMIT_TIMEOUT", DefaultCommitTimeout),
			CommitAttempts: intFromEnv("CHECKOUT_COMMIT_ATTEMPTS", DefaultCommitAttempts),
			DefaultPage:    intFromEnv("PAGE_SIZE_DEFAULT", DefaultPageSize),
			MaxPage:        intFromEnv("PAGE_SIZE_MAX", DefaultMaxPageSize),
		},
		Webhook: WebhookConfig{
			PaymentSecretName: stringFromEnv("PAYMENT_WEBHOOK_SECRET_NAME", "payment-webhook"),
			PaymentSecret:     stringFromEnv("PAYMENT_WEBHOOK_SECRET", ""),
		},
	}

	if resolver != nil {
		if resolved, err := resolveSecret(ctx, resolver, cfg.Webhook.PaymentSecret); err != nil {
			return Config{}, err
		} else {
			cfg.Webhook.PaymentSecret = resolved
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var fields []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		fields = append(fields, "HTTP_PORT")
	}
	if c.Server.RequestTimeout <= 0 {
		fields = append(fields, "HTTP_REQUEST_TIMEOUT")
	}
	if c.Server.ShutdownTimeout <= 0 {
		fields = append(fields, "HTTP_SHUTDOWN_TIMEOUT")
	}
	if strings.TrimSpace(c.Firestore.ProjectID) == "" {
		fields = append(fields, "FIRESTORE_PROJECT_ID")
	}
	if c.Checkout.CommitTimeout <= 0 {
		fields = append(fields, "CHECKOUT_COMMIT_TIMEOUT")
	}
	if c.Checkout.CommitAttempts <= 0 {
		fields = append(fields, "CHECKOUT_COMMIT_ATTEMPTS")
	}
	if c.Checkout.DefaultPage <= 0 || c.Checkout.DefaultPage > c.Checkout.MaxPage {
		fields = append(fields, "PAGE_SIZE_DEFAULT")
	}

	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)
	return &ValidationError{Fields: fields}
}

func resolveSecret(ctx context.Context, resolver SecretResolver, value string) (string, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "secret://") {
		return value, nil
	}
	resolved, err := resolver.Resolve(ctx, value)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", value, err)
	}
	return resolved, nil
}

func stringFromEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func intFromEnv(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
