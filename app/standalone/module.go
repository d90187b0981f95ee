package standalone

import (
	"go.uber.org/fx"

	"github.com/lambda-feedback/edgeproxy/handler"
	"github.com/lambda-feedback/edgeproxy/internal/server"
	"github.com/lambda-feedback/edgeproxy/util/logging"
)

func Module(config Config) fx.Option {
	return fx.Module(
		"serve",
		// rename logger for module
		logging.DecorateLogger("serve"),
		// provide proxy and health handlers
		handler.Module(),
		// provide metrics handler
		handler.MetricsModule(),
		// provide server
		server.Module(config.HttpConfig),
	)
}
