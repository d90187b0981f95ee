package telemetry

// DefaultServiceName is reported as service.name if none is configured.
const DefaultServiceName = "edgeproxy"

type Config struct {
	// Endpoint is the OTLP gRPC collector endpoint, either host:port
	// or a URL. Tracing export is disabled if it is empty.
	Endpoint string `conf:"otel_exporter_otlp_endpoint"`

	// Insecure disables TLS for a host:port endpoint. URL endpoints
	// derive it from their scheme.
	Insecure bool `conf:"otel_exporter_otlp_insecure"`

	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `conf:"otel_service_name"`
}

// Enabled reports whether spans are exported.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}
