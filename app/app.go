package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/lambda-feedback/edgeproxy/config"
	"github.com/lambda-feedback/edgeproxy/internal/proxy"
	"github.com/lambda-feedback/edgeproxy/internal/shell"
	"github.com/lambda-feedback/edgeproxy/internal/telemetry"
	"github.com/lambda-feedback/edgeproxy/util/conf"
	"github.com/lambda-feedback/edgeproxy/util/logging"
)

func New(ctx *cli.Context) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	config, err := conf.ConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	return shell.New(log, SharedModule(config)), nil
}

// SharedModule provides the components used by every transport: the
// config, the metrics registry, tracing and the proxy itself.
func SharedModule(config config.Config) fx.Option {
	return fx.Module(
		"shared",
		// provide global config
		fx.Supply(config),
		// provide metrics registry
		fx.Provide(fx.Annotate(
			NewRegistry,
			fx.As(new(prometheus.Registerer)),
			fx.As(new(prometheus.Gatherer)),
		)),
		// provide tracing
		telemetry.Module(config.Telemetry),
		// provide proxy
		proxy.Module(config.Proxy),
	)
}

// NewRegistry creates the metrics registry, including the go runtime
// and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)

	return registry
}
