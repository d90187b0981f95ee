package config

import (
	"maps"

	"github.com/lambda-feedback/edgeproxy/internal/proxy"
	"github.com/lambda-feedback/edgeproxy/internal/telemetry"
)

const (
	// DefaultLogLevel is the log level used if none is configured.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the log format used if none is configured.
	DefaultLogFormat = "production"
)

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Proxy is the proxy configuration. Its keys live at the top
	// level, so TARGET_DOMAIN maps to target_domain.
	Proxy proxy.Config `conf:",squash"`

	// Telemetry is the tracing configuration.
	Telemetry telemetry.Config `conf:",squash"`
}

// DefaultConfig returns the default values of the application config.
func DefaultConfig() map[string]any {
	defaults := map[string]any{
		"log_level":  DefaultLogLevel,
		"log_format": DefaultLogFormat,

		"otel_service_name": telemetry.DefaultServiceName,
	}

	maps.Copy(defaults, proxy.DefaultConfig())

	return defaults
}
