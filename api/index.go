// Package handler is the Vercel serverless function of the proxy.
// Requests to /api/* are rewritten to this function, with the
// original path passed in the path query parameter.
package handler

import (
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/lambda-feedback/edgeproxy/config"
	"github.com/lambda-feedback/edgeproxy/internal/proxy"
	"github.com/lambda-feedback/edgeproxy/util"
	"github.com/lambda-feedback/edgeproxy/util/conf"
	"github.com/lambda-feedback/edgeproxy/util/logging"
)

const sentryFlushTimeout = 2 * time.Second

var (
	once           sync.Once
	defaultHandler http.Handler
	sentryEnabled  bool
)

// Handler is the entry point for Vercel's Go runtime.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		sentryEnabled = setupSentry()
		defaultHandler = newHandler()
	})

	defaultHandler.ServeHTTP(w, r)

	// the instance may be frozen once the response is sent
	if sentryEnabled {
		sentry.Flush(sentryFlushTimeout)
	}
}

// newHandler creates the proxy from the environment. A configuration
// error does not prevent the handler from being created, it is
// reported for every forwarded request instead.
func newHandler() http.Handler {
	log, err := logging.New(logging.Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		App:    "edgeproxy",
	})
	if err != nil {
		log = zap.NewNop()
	}

	log = log.Named("vercel")

	cfg, err := conf.Parse[config.Config](conf.ParseOptions{
		Defaults: config.DefaultConfig(),
		Schema:   config.Schema,
		Log:      log,
	})

	params := proxy.Params{
		Config: cfg.Proxy,
		Log:    log.Named("proxy"),
	}

	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return proxy.NewWithConfigError(params, err)
	}

	return proxy.New(params)
}

func setupSentry() bool {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return false
	}

	environment := os.Getenv("VERCEL_ENV")
	if env := os.Getenv("SENTRY_ENVIRONMENT"); env != "" {
		environment = env
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Debug:       util.Truthy(os.Getenv("SENTRY_DEBUG")),
		Environment: environment,
		Release:     os.Getenv("VERCEL_GIT_COMMIT_SHA"),
	})

	return err == nil
}
