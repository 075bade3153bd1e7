// Package config defines the global configuration for the docgen service.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any invalid value causes the application to fail immediately on startup.
package config

import "time"

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"docgen-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Security SecurityConfig
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// RequestTimeout is the soft deadline applied to each request context.
	// It must exceed the engine timeouts or PDF conversions can never finish.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"90s"`
}

// DatabaseConfig holds the optional PostgreSQL connection string. When URL is
// empty the service runs with in-memory rate-limit and usage stores; when
// set, the Postgres-backed stores are used so multiple nodes share state.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL"`
}

// EngineConfig holds rendering engine tuning parameters.
type EngineConfig struct {
	// BrowserBin optionally pins the engine to an explicit browser binary.
	// When empty, the binary is auto-discovered (or downloaded on first use).
	BrowserBin string `envconfig:"ENGINE_BROWSER_BIN"`
	// LaunchTimeout bounds browser process startup.
	LaunchTimeout time.Duration `envconfig:"ENGINE_LAUNCH_TIMEOUT" default:"30s"`
	// SettleTimeout bounds the content-settled wait before PDF export.
	SettleTimeout time.Duration `envconfig:"ENGINE_SETTLE_TIMEOUT" default:"30s"`
}

// SecurityConfig holds CORS policy configuration.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}
