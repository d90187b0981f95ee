package lambda

import (
	"go.uber.org/fx"

	"github.com/lambda-feedback/edgeproxy/handler"
	"github.com/lambda-feedback/edgeproxy/util/logging"
)

// Module relays Lambda events of the configured source to the proxy
// and health routes. Function instances are not scraped, so the
// metrics route is not mounted. An unknown event source fails the app
// before the runtime API is polled.
func Module(config Config) fx.Option {
	return fx.Module(
		"lambda",
		fx.Supply(config),
		logging.DecorateLogger("lambda"),
		fx.Invoke(config.Validate),
		handler.Module(),
		fx.Provide(NewLifecycleHandler),
		fx.Invoke(func(*LambdaHandler) {}),
	)
}
