package proxy

import (
	"github.com/lambda-feedback/edgeproxy/util/logging"
	"go.uber.org/fx"
)

// Module provides the proxy handler and its metrics.
func Module(config Config) fx.Option {
	return fx.Module(
		"proxy",
		// provide proxy config
		fx.Supply(config),
		// rename logger for module
		logging.DecorateLogger("proxy"),
		// provide metrics
		fx.Provide(NewMetrics),
		// provide proxy
		fx.Provide(New),
	)
}
