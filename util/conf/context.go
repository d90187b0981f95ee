package conf

import (
	"context"
	"errors"
)

type contextKey int

var configKey = contextKey(1)

var (
	// ErrNoConfigInContext is returned if no config was stored.
	ErrNoConfigInContext = errors.New("no config in context")

	// ErrConfigTypeMismatch is returned if the stored config is of
	// another type than requested.
	ErrConfigTypeMismatch = errors.New("config in context has another type")
)

// ContextWithConfig stores the parsed config, so commands can pick it
// up after the root command parsed it.
func ContextWithConfig[C any](ctx context.Context, config C) context.Context {
	return context.WithValue(ctx, configKey, config)
}

// ConfigFromContext returns the config stored by ContextWithConfig.
func ConfigFromContext[C any](ctx context.Context) (C, error) {
	var zero C

	value := ctx.Value(configKey)
	if value == nil {
		return zero, ErrNoConfigInContext
	}

	config, ok := value.(C)
	if !ok {
		return zero, ErrConfigTypeMismatch
	}

	return config, nil
}
