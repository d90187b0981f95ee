package server

import (
	"go.uber.org/fx"

	"github.com/lambda-feedback/edgeproxy/util/logging"
)

func Module(config HttpConfig) fx.Option {
	return fx.Module("server",
		// provide config
		fx.Supply(config),
		// rename logger for module
		logging.DecorateLogger("server"),
		// provide server
		fx.Provide(NewLifecycleServer),
		// invoke server
		fx.Invoke(func(*HttpServer) {}),
	)
}
