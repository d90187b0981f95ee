package handler

import "go.uber.org/fx"

// Module provides the proxy and health routes.
func Module() fx.Option {
	return fx.Module("handler",
		fx.Provide(NewProxyRoute),
		fx.Provide(NewHealthRoute),
	)
}

// MetricsModule provides the metrics route.
func MetricsModule() fx.Option {
	return fx.Module("metrics",
		fx.Provide(NewMetricsRoute),
	)
}
