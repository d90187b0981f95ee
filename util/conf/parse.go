package conf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/lambda-feedback/edgeproxy/util/cliflags"
	"github.com/urfave/cli/v2"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid config")

type ParseOptions struct {
	// Cli is the cli.Context from urfave/cli
	Cli *cli.Context

	// CliMap is a map of cli flag names to config keys
	CliMap map[string]string

	// Defaults is a map of default values
	Defaults map[string]any

	// EnvPrefix is the prefix for env vars
	EnvPrefix string

	// FileName is the name of the JSON configuration file to load
	FileName string

	// EnvFile is the name of a dotenv file to load. Its variables
	// are read like process env vars, which take precedence.
	EnvFile string

	// Providers are loaded after the env vars, in order
	Providers []koanf.Provider

	// Schema is a JSON schema the merged config is validated against
	Schema []byte

	// Log is the logger to use
	Log *zap.Logger
}

func Parse[C any](opt ParseOptions) (C, error) {
	var config C

	var log *zap.Logger
	if opt.Log != nil {
		log = opt.Log
	} else {
		log = zap.NewNop()
	}

	k := koanf.New(".")

	if opt.Defaults != nil {
		if err := k.Load(confmap.Provider(opt.Defaults, "."), nil); err != nil {
			log.Error("error loading defaults", zap.Error(err))
			return config, err
		}
	}

	if opt.FileName != "" {
		if err := k.Load(file.Provider(opt.FileName), json.Parser()); err != nil {
			log.Error("error parsing file",
				zap.Error(err),
				zap.String("file", opt.FileName),
			)
			return config, err
		}
	}

	transformPrefixedEnv := func(s string) string {
		return transformEnv(s, opt.EnvPrefix)
	}

	if opt.EnvFile != "" {
		parser := dotenv.ParserEnv(opt.EnvPrefix, ".", transformPrefixedEnv)
		if err := k.Load(file.Provider(opt.EnvFile), parser); err != nil {
			log.Error("error parsing env file",
				zap.Error(err),
				zap.String("file", opt.EnvFile),
			)
			return config, err
		}
	}

	// empty env vars are treated as unset, so they don't shadow defaults
	transformEnvValue := func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return transformPrefixedEnv(key), value
	}

	if err := k.Load(env.ProviderWithValue(opt.EnvPrefix, ".", transformEnvValue), nil); err != nil {
		log.Error("error parsing env vars", zap.Error(err))
		return config, err
	}

	for _, provider := range opt.Providers {
		if err := k.Load(provider, nil); err != nil {
			log.Error("error loading provider", zap.Error(err))
			return config, err
		}
	}

	if opt.Cli != nil {
		transformFlag := func(s string) string {
			if opt.CliMap != nil {
				if name, ok := opt.CliMap[s]; ok {
					return name
				}
			}

			// replace - with _
			return strings.ReplaceAll(strings.ToLower(s), "-", "_")
		}

		if err := k.Load(cliflags.Provider(opt.Cli, ".", transformFlag), nil); err != nil {
			log.Error("error parsing cli flags", zap.Error(err))
			return config, err
		}
	}

	if opt.Schema != nil {
		if err := validate(opt.Schema, k.Raw()); err != nil {
			log.Error("error validating config", zap.Error(err))
			return config, err
		}
	}

	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "conf"}); err != nil {
		log.Error("error unmarshalling config", zap.Error(err))
		return config, err
	}

	return config, nil
}

// validate validates the merged config map against a JSON schema.
func validate(schema []byte, data map[string]any) error {
	res, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewGoLoader(data),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if res.Valid() {
		return nil
	}

	details := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		details = append(details, e.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(details, "; "))
}

func transformEnv(s, prefix string) string {
	// allow specifying nested env vars w/ __
	normalized := strings.ReplaceAll(strings.ToLower(s), "__", ".")
	// pop prefix if it is set
	if prefix != "" {
		normalized = strings.TrimPrefix(normalized, strings.ToLower(prefix))
	}
	return normalized
}
