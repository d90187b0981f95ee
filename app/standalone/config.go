package standalone

import "github.com/lambda-feedback/edgeproxy/internal/server"

const (
	DefaultHost = "localhost"
	DefaultPort = 8080
)

type Config struct {
	// HttpConfig represents the configuration for the HTTP server.
	HttpConfig server.HttpConfig `conf:",squash"`
}

// DefaultConfig returns the default values of the standalone config.
func DefaultConfig() map[string]any {
	return map[string]any{
		"host": DefaultHost,
		"port": DefaultPort,
		"h2c":  false,
	}
}
