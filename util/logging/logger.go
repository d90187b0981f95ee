package logging

import "go.uber.org/zap"

const (
	FormatProduction  = "production"
	FormatDevelopment = "development"
)

// Options configures the root logger.
type Options struct {
	// Level is the minimum enabled level. Invalid or empty levels
	// fall back to info.
	Level string

	// Format selects the encoder preset, production (json) or
	// development (console). Defaults to production.
	Format string

	// App is attached to every log entry as the app field.
	App string
}

// Equivalent reports whether loggers built from o and other would log
// at the same level in the same format.
func (o Options) Equivalent(other Options) bool {
	return o.App == other.App &&
		o.format() == other.format() &&
		ParseLevel(o.Level).Level() == ParseLevel(other.Level).Level()
}

func (o Options) format() string {
	if o.Format == FormatDevelopment {
		return FormatDevelopment
	}

	return FormatProduction
}

// New builds the root logger.
func New(opts Options) (*zap.Logger, error) {
	var config zap.Config
	if opts.format() == FormatDevelopment {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	if opts.App != "" {
		config.InitialFields = map[string]any{
			"app": opts.App,
		}
	}

	config.Level = ParseLevel(opts.Level)

	return config.Build()
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(lvl string) zap.AtomicLevel {
	if atom, err := zap.ParseAtomicLevel(lvl); err == nil && lvl != "" {
		return atom
	}

	return zap.NewAtomicLevelAt(zap.InfoLevel)
}
