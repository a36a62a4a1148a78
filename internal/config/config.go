// Package config defines the global configuration for the YardLink
// platform. Configuration is loaded once at process initialization
// (Lambda cold start) and immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (highest) -> Dotenv file -> AWS SSM Parameter Store (lowest)
//
// Any missing required value or invalid format fails startup
// immediately.
package config

import (
	"time"

	"yardlink/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret
// type used for configuration values that must never reach logs.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive
// only the subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"yardlink"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Payments      PaymentsConfig
	Email         EmailConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	Feature       FeatureConfig

	// Build metadata, injected via ldflags rather than env.
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs used in redirects and emails (no trailing slash).
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
	AppURL         string `envconfig:"APP_URL" validate:"required,url"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`
	InvoiceQueue      string `envconfig:"SQS_INVOICES" validate:"required,url"`

	// LocalStack support; empty in production.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// PaymentsConfig holds card gateway credentials and payment-path
// switches.
type PaymentsConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`

	// Checkout redirect targets on the client app.
	CheckoutSuccessURL string `envconfig:"CHECKOUT_SUCCESS_URL" validate:"required,url"`
	CheckoutCancelURL  string `envconfig:"CHECKOUT_CANCEL_URL" validate:"required,url"`

	// AllowSimulated enables the no-gateway test payment path. Must
	// stay false in production.
	AllowSimulated bool `envconfig:"PAYMENTS_ALLOW_SIMULATED" default:"false"`
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"hello@yardlink.app"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"YardLink"`
}

// SecurityConfig holds the cron credential hash and CORS settings.
type SecurityConfig struct {
	// CronTokenHash is the bcrypt hash of the shared service token the
	// cron payloads carry. The plaintext token never appears in
	// configuration.
	CronTokenHash SecretString `envconfig:"CRON_TOKEN_BCRYPT_HASH" validate:"required"`

	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"YardLink"`
}

// FeatureConfig holds emergency kill switches.
type FeatureConfig struct {
	EnableEmail   bool `envconfig:"FEATURE_ENABLE_EMAIL" default:"true"`
	EnableAutopay bool `envconfig:"FEATURE_ENABLE_AUTOPAY" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
