package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":       "ps-dev",
		"API_PHONEPE_CLIENT_ID":         "client",
		"API_PHONEPE_CLIENT_SECRET":     "secret",
		"API_PHONEPE_CALLBACK_USERNAME": "merchant",
		"API_PHONEPE_CALLBACK_PASSWORD": "hook-pass",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "ps-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Secrets.DefaultProjectID != "ps-dev" {
		t.Errorf("expected secret project to default to firebase project, got %s", cfg.Secrets.DefaultProjectID)
	}
	if cfg.PhonePe.Environment != "sandbox" || cfg.PhonePe.ClientVersion != "1" {
		t.Errorf("unexpected phonepe defaults %+v", cfg.PhonePe)
	}
	if cfg.PhonePe.Timeout != 15*time.Second {
		t.Errorf("unexpected phonepe timeout %s", cfg.PhonePe.Timeout)
	}
	if cfg.Orders.Currency != "INR" {
		t.Errorf("expected default currency INR, got %s", cfg.Orders.Currency)
	}
	if cfg.Events.Driver != EventsDriverNone {
		t.Errorf("expected events disabled by default, got %s", cfg.Events.Driver)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url, got %s", cfg.Security.OIDC.JWKSURL)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultSecurityIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_SERVER_IDLE_TIMEOUT"] = "2m"
	env["API_PHONEPE_ENVIRONMENT"] = "PRODUCTION"
	env["API_PHONEPE_CLIENT_SECRET"] = "secret://phonepe/client"
	env["API_PHONEPE_CALLBACK_PASSWORD"] = "sm://phonepe/callback"
	env["API_PHONEPE_TIMEOUT"] = "5s"
	env["API_ORDERS_CURRENCY"] = "usd"
	env["API_EVENTS_DRIVER"] = "kafka"
	env["API_EVENTS_KAFKA_BROKERS"] = "kafka-1:9092, kafka-2:9092"
	env["API_EVENTS_KAFKA_TOPIC"] = "orders"
	env["API_CALLBACK_ARCHIVE_BUCKET"] = "callbacks"
	env["API_SECURITY_OIDC_AUDIENCE"] = "https://api.example.com"
	env["API_SECURITY_OIDC_ISSUERS"] = "https://accounts.google.com, accounts.google.com"

	secrets := map[string]string{
		"secret://phonepe/client":   "resolved-client",
		"secret://phonepe/callback": "resolved-callback",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.PhonePe.Environment != "production" {
		t.Errorf("expected lower-cased environment, got %s", cfg.PhonePe.Environment)
	}
	if cfg.PhonePe.ClientSecret != "resolved-client" {
		t.Errorf("expected resolved client secret, got %s", cfg.PhonePe.ClientSecret)
	}
	if cfg.PhonePe.CallbackPassword != "resolved-callback" {
		t.Errorf("expected legacy sm:// reference to resolve, got %s", cfg.PhonePe.CallbackPassword)
	}
	if cfg.PhonePe.Timeout != 5*time.Second {
		t.Errorf("unexpected timeout %s", cfg.PhonePe.Timeout)
	}
	if cfg.Orders.Currency != "USD" {
		t.Errorf("expected upper-cased currency, got %s", cfg.Orders.Currency)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Storage.CallbackArchiveBucket != "callbacks" {
		t.Errorf("unexpected archive bucket %s", cfg.Storage.CallbackArchiveBucket)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected two issuers, got %v", cfg.Security.OIDC.Issuers)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=ps-dot\nAPI_PHONEPE_CLIENT_ID=dot-client\n" +
		"API_PHONEPE_CLIENT_SECRET=\"dot secret\"\nAPI_PHONEPE_CALLBACK_USERNAME=u\nAPI_PHONEPE_CALLBACK_PASSWORD=p\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv(), WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "ps-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.PhonePe.ClientSecret != "dot secret" {
		t.Errorf("expected quoted dotenv value, got %q", cfg.PhonePe.ClientSecret)
	}
}

func TestLoadSystemEnvOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("API_FIREBASE_PROJECT_ID=dot-project\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")

	got, err := Value("API_FIREBASE_PROJECT_ID", WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}
	if got != "os-project" {
		t.Fatalf("expected os env to win, got %s", got)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := map[string]bool{}
	for _, f := range validation.Fields() {
		fields[f] = true
	}
	for _, want := range []string{"Firebase.ProjectID", "PhonePe.ClientID", "PhonePe.ClientSecret", "PhonePe.CallbackUsername"} {
		if !fields[want] {
			t.Errorf("expected %s in invalid fields %v", want, validation.Fields())
		}
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]struct {
		key, value, field string
	}{
		"currency":    {"API_ORDERS_CURRENCY", "XYZ1", "Orders.Currency"},
		"environment": {"API_PHONEPE_ENVIRONMENT", "staging", "PhonePe.Environment"},
		"driver":      {"API_EVENTS_DRIVER", "nats", "Events.Driver"},
		"pubsub":      {"API_EVENTS_DRIVER", "pubsub", "Events.PubSubTopic"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			env[tc.key] = tc.value
			_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, f := range validation.Fields() {
				if f == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tc.field, validation.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["API_PHONEPE_CLIENT_SECRET"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := baseEnv()
	env["API_PHONEPE_CALLBACK_PASSWORD"] = "secret://phonepe/callback"
	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "  ", nil
	})

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("PhonePe.CallbackPassword", "PhonePe.ClientSecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "PhonePe.CallbackPassword" {
		t.Fatalf("unexpected missing names %v", got)
	}
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != redactSecretName("PhonePe.CallbackPassword") {
		t.Fatalf("unexpected redacted names %v", got)
	}
}
