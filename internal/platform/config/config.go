package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/currency"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultPhonePeEnvironment  = "sandbox"
	defaultPhonePeVersion      = "1"
	defaultPhonePeTimeout      = 15 * time.Second
	defaultCurrency            = "INR"
	defaultSecretFallbackFile  = ".secrets.local"

	EventsDriverNone   = "none"
	EventsDriverPubSub = "pubsub"
	EventsDriverKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	PhonePe   PhonePeConfig
	Orders    OrdersConfig
	Events    EventsConfig
	Storage   StorageConfig
	Security  SecurityConfig
	Secrets   SecretsConfig
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

// PhonePeConfig holds gateway credentials and endpoint overrides.
type PhonePeConfig struct {
	ClientID         string
	ClientSecret     string
	ClientVersion    string
	Environment      string
	BaseURL          string
	AuthURL          string
	CallbackUsername string
	CallbackPassword string
	Timeout          time.Duration
}

// OrdersConfig holds order defaults.
type OrdersConfig struct {
	Currency string
}

// EventsConfig selects the order event transport.
type EventsConfig struct {
	Driver       string
	PubSubTopic  string
	KafkaBrokers []string
	KafkaTopic   string
}

// StorageConfig lists bucket names used by the application.
type StorageConfig struct {
	CallbackArchiveBucket string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// SecretsConfig controls Secret Manager lookups.
type SecretsConfig struct {
	DefaultProjectID string
	FallbackFile     string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
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

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the secret field names, sorted.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed identifiers that are safe to log.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values that take precedence over the environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks config fields (e.g. "PhonePe.ClientSecret") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

type lookupFunc func(key string) (string, bool)

func (o loaderOptions) lookup() (lookupFunc, error) {
	dotEnv, err := readDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := o.envMap[key]; ok {
			return value, true
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}, nil
}

// Value returns a single effective value using the same precedence as Load. It lets callers
// bootstrap dependencies such as the secret fetcher before the full load.
func Value(key string, opts ...Option) (string, error) {
	lookup, err := newLoaderOptions(opts).lookup()
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return strings.TrimSpace(value), nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringValue(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationValue(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationValue(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationValue(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringValue(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringValue(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringValue(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringValue(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PhonePe: PhonePeConfig{
			ClientID:         stringValue(lookup, "API_PHONEPE_CLIENT_ID", ""),
			ClientSecret:     stringValue(lookup, "API_PHONEPE_CLIENT_SECRET", ""),
			ClientVersion:    stringValue(lookup, "API_PHONEPE_CLIENT_VERSION", defaultPhonePeVersion),
			Environment:      strings.ToLower(stringValue(lookup, "API_PHONEPE_ENVIRONMENT", defaultPhonePeEnvironment)),
			BaseURL:          stringValue(lookup, "API_PHONEPE_BASE_URL", ""),
			AuthURL:          stringValue(lookup, "API_PHONEPE_AUTH_URL", ""),
			CallbackUsername: stringValue(lookup, "API_PHONEPE_CALLBACK_USERNAME", ""),
			CallbackPassword: stringValue(lookup, "API_PHONEPE_CALLBACK_PASSWORD", ""),
			Timeout:          durationValue(lookup, "API_PHONEPE_TIMEOUT", defaultPhonePeTimeout),
		},
		Orders: OrdersConfig{
			Currency: strings.ToUpper(stringValue(lookup, "API_ORDERS_CURRENCY", defaultCurrency)),
		},
		Events: EventsConfig{
			Driver:       strings.ToLower(stringValue(lookup, "API_EVENTS_DRIVER", EventsDriverNone)),
			PubSubTopic:  stringValue(lookup, "API_EVENTS_PUBSUB_TOPIC", ""),
			KafkaBrokers: csvValue(lookup, "API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:   stringValue(lookup, "API_EVENTS_KAFKA_TOPIC", ""),
		},
		Storage: StorageConfig{
			CallbackArchiveBucket: stringValue(lookup, "API_CALLBACK_ARCHIVE_BUCKET", ""),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringValue(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  stringValue(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringValue(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  csvValue(lookup, "API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Secrets: SecretsConfig{
			DefaultProjectID: stringValue(lookup, "API_SECRET_DEFAULT_PROJECT_ID", ""),
			FallbackFile:     stringValue(lookup, "API_SECRET_FALLBACK_FILE", defaultSecretFallbackFile),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Secrets.DefaultProjectID == "" {
		cfg.Secrets.DefaultProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PhonePe.ClientSecret", &cfg.PhonePe.ClientSecret},
		{"PhonePe.CallbackPassword", &cfg.PhonePe.CallbackPassword},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	var invalid []string
	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	if cfg.PhonePe.ClientID == "" {
		invalid = append(invalid, "PhonePe.ClientID")
	}
	if cfg.PhonePe.ClientSecret == "" {
		invalid = append(invalid, "PhonePe.ClientSecret")
	}
	if cfg.PhonePe.CallbackUsername == "" {
		invalid = append(invalid, "PhonePe.CallbackUsername")
	}
	if cfg.PhonePe.CallbackPassword == "" {
		invalid = append(invalid, "PhonePe.CallbackPassword")
	}
	switch cfg.PhonePe.Environment {
	case "sandbox", "production":
	default:
		invalid = append(invalid, "PhonePe.Environment")
	}
	if cfg.PhonePe.Timeout <= 0 {
		invalid = append(invalid, "PhonePe.Timeout")
	}
	if _, err := currency.ParseISO(cfg.Orders.Currency); err != nil {
		invalid = append(invalid, "Orders.Currency")
	}
	switch cfg.Events.Driver {
	case EventsDriverNone:
	case EventsDriverPubSub:
		if cfg.Events.PubSubTopic == "" {
			invalid = append(invalid, "Events.PubSubTopic")
		}
	case EventsDriverKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			invalid = append(invalid, "Events.KafkaBrokers")
		}
		if cfg.Events.KafkaTopic == "" {
			invalid = append(invalid, "Events.KafkaTopic")
		}
	default:
		invalid = append(invalid, "Events.Driver")
	}
	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{}, len(required))
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
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

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func stringValue(lookup lookupFunc, key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationValue(lookup lookupFunc, key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func csvValue(lookup lookupFunc, key string) []string {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
