package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lambda-feedback/edgeproxy/util/logging"
)

type TracingParams struct {
	fx.In

	Context context.Context
	Config  Config
	Log     *zap.Logger
}

// NewLifecycleTracing creates the tracing setup and flushes it when
// the application stops.
func NewLifecycleTracing(params TracingParams, lc fx.Lifecycle) (*Tracing, error) {
	tracing, err := New(params.Context, params.Config, params.Log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tracing.Shutdown(ctx)
		},
	})

	return tracing, nil
}

func Module(config Config) fx.Option {
	return fx.Module(
		"telemetry",
		// provide telemetry config
		fx.Supply(config),
		// rename logger for module
		logging.DecorateLogger("telemetry"),
		// provide tracing
		fx.Provide(NewLifecycleTracing),
		// expose the tracer
		fx.Provide(func(t *Tracing) trace.Tracer { return t.Tracer() }),
	)
}
