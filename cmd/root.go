package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/lambda-feedback/edgeproxy/config"
	"github.com/lambda-feedback/edgeproxy/internal/shell"
	"github.com/lambda-feedback/edgeproxy/util/conf"
	"github.com/lambda-feedback/edgeproxy/util/logging"
)

var (
	appName  = "edgeproxy"
	appUsage = `A stateless reverse proxy for serverless edge platforms,
forwarding requests to one origin, or to one of two origins
with a single fallback attempt.`
	rootApp = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		Version:         "local",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			// general flags
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level. Options: debug, info, warn, error, panic, fatal.",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "set the log format. Options: production, development.",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.PathFlag{
				Name:    "config",
				Usage:   "read configuration from a JSON file.",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.PathFlag{
				Name:    "env-file",
				Usage:   "read environment variables from a dotenv file.",
				EnvVars: []string{"ENV_FILE"},
			},
			// proxy flags
			&cli.StringFlag{
				Name:     "target-domain",
				Usage:    "the origin to forward all requests to, e.g. https://api.example.com.",
				Aliases:  []string{"t"},
				Category: "proxy",
				EnvVars:  []string{"TARGET_DOMAIN"},
			},
			&cli.StringFlag{
				Name:     "service-1",
				Usage:    "the first origin of the dual-origin mode.",
				Category: "proxy",
				EnvVars:  []string{"SERVICE_1"},
			},
			&cli.StringFlag{
				Name:     "service-2",
				Usage:    "the second origin of the dual-origin mode.",
				Category: "proxy",
				EnvVars:  []string{"SERVICE_2"},
			},
			&cli.IntFlag{
				Name:     "timeout-ms",
				Usage:    "the time to wait for upstream response headers, in milliseconds.",
				Category: "proxy",
				EnvVars:  []string{"TIMEOUT_MS"},
			},
			&cli.StringFlag{
				Name:     "strip-prefix",
				Usage:    "the path prefix removed before forwarding.",
				Category: "proxy",
				EnvVars:  []string{"STRIP_PREFIX"},
			},
			&cli.StringFlag{
				Name:     "injected-param",
				Usage:    "the query parameter removed before forwarding.",
				Category: "proxy",
				EnvVars:  []string{"INJECTED_PARAM"},
			},
		},
		Before: func(ctx *cli.Context) error {
			// create the logger
			log, err := createLogger(ctx)
			if err != nil {
				return err
			}

			// inject logger into cli context
			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			// parse config using defaults, files, env and flags
			cfg, err := conf.Parse[config.Config](conf.ParseOptions{
				Cli:      ctx,
				CliMap:   map[string]string{"config": "", "env-file": ""},
				Defaults: config.DefaultConfig(),
				FileName: ctx.Path("config"),
				EnvFile:  ctx.Path("env-file"),
				Schema:   config.Schema,
				Log:      log,
			})
			if err != nil {
				return err
			}

			// the config file may change the log settings
			if needsNewLogger(ctx, cfg) {
				if log, err = newLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
					return err
				}
				ctx.Context = logging.ContextWithLogger(ctx.Context, log)
			}

			log.Debug("parsed config", zap.Stringer("mode", cfg.Proxy.Mode()))

			// inject the config into the cli context
			ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

			return nil
		},
		After: func(ctx *cli.Context) error {
			log, err := logging.LoggerFromContext(ctx.Context)
			if err != nil {
				return err
			}

			log.Sync()

			return nil
		},
	}
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time

	// OnExit is called before the process exits.
	OnExit func()
}

func Execute(params ExecuteParams) {
	if params.Version != "" {
		rootApp.Version = params.Version
	}
	rootApp.Compiled = params.Compiled

	code := run(context.Background(), os.Args)

	if params.OnExit != nil {
		params.OnExit()
	}

	os.Exit(code)
}

// run runs the cli app and returns the process exit code.
func run(ctx context.Context, args []string) int {
	err := rootApp.RunContext(ctx, args)

	// if app exited without error, return
	if err == nil {
		return 0
	}

	// if app exited with ExitError, exit with given exit code
	if code, ok := shell.ExitCode(err); ok {
		return code
	}

	fmt.Fprintf(os.Stderr, "exit error: %s\n", err.Error())

	// otherwise, exit with exit code 1
	return 1
}

func createLogger(ctx *cli.Context) (*zap.Logger, error) {
	return newLogger(ctx.String("log-level"), ctx.String("log-format"))
}

// needsNewLogger reports whether the parsed config asks for a logger
// other than the one built from the flags.
func needsNewLogger(ctx *cli.Context, cfg config.Config) bool {
	current := loggerOptions(ctx.String("log-level"), ctx.String("log-format"))
	return !current.Equivalent(loggerOptions(cfg.LogLevel, cfg.LogFormat))
}

func newLogger(level, format string) (*zap.Logger, error) {
	return logging.New(loggerOptions(level, format))
}

func loggerOptions(level, format string) logging.Options {
	return logging.Options{
		Level:  level,
		Format: format,
		App:    appName,
	}
}
