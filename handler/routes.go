package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lambda-feedback/edgeproxy/internal/proxy"
	"github.com/lambda-feedback/edgeproxy/internal/server"
	"github.com/lambda-feedback/edgeproxy/internal/telemetry"
)

type ProxyRouteParams struct {
	fx.In

	Proxy  *proxy.Proxy
	Tracer trace.Tracer
}

// NewProxyRoute mounts the proxy as catch-all route.
func NewProxyRoute(params ProxyRouteParams) server.HttpHandlerResult {
	return server.AsHttpHandler(server.CatchAll, telemetry.Middleware(params.Tracer, params.Proxy))
}

func NewHealthRoute() server.HttpHandlerResult {
	return server.AsHttpHandler("GET /health", http.HandlerFunc(HealthHandler))
}

func NewMetricsRoute(gatherer prometheus.Gatherer, log *zap.Logger) server.HttpHandlerResult {
	return server.AsHttpHandler("GET /metrics", NewMetricsHandler(gatherer, log))
}
