//go:build wasip1

// Command fastly is the Fastly Compute entrypoint of the proxy.
//
// Configuration is read from the edgeproxy config store, falling back
// to the environment. Origins are reached through named backends:
// TARGET_DOMAIN through "target", SERVICE_1 and SERVICE_2 through
// "service_1" and "service_2".
package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/fastly/compute-sdk-go/fsthttp"
	"github.com/fastly/compute-sdk-go/rtlog"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lambda-feedback/edgeproxy/config"
	"github.com/lambda-feedback/edgeproxy/internal/proxy"
	"github.com/lambda-feedback/edgeproxy/util/conf"
	"github.com/lambda-feedback/edgeproxy/util/configstore"
)

const (
	storeName = "edgeproxy"

	backendTarget   = "target"
	backendService1 = "service_1"
	backendService2 = "service_2"
)

var storeKeys = []string{
	"LOG_LEVEL",
	"LOG_ENDPOINT",
	"TARGET_DOMAIN",
	"SERVICE_1",
	"SERVICE_2",
	"TIMEOUT_MS",
	"STRIP_PREFIX",
	"INJECTED_PARAM",
}

func main() {
	log := newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_ENDPOINT"))

	var providers []koanf.Provider
	if store, err := configstore.Open(storeName, storeKeys, ".", strings.ToLower); err == nil {
		providers = append(providers, store)
	} else {
		log.Warn("config store unavailable, using environment", zap.Error(err))
	}

	cfg, err := conf.Parse[config.Config](conf.ParseOptions{
		Defaults:  config.DefaultConfig(),
		Providers: providers,
		Schema:    config.Schema,
		Log:       log,
	})

	params := proxy.Params{
		Config:    cfg.Proxy,
		Transport: newTransport(cfg.Proxy, log),
		Log:       log.Named("proxy"),
	}

	var handler http.Handler
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		handler = proxy.NewWithConfigError(params, err)
	} else {
		handler = proxy.New(params)
	}

	fsthttp.Serve(fsthttp.Adapt(handler))
}

// newTransport maps the host of every configured origin to its backend.
func newTransport(cfg proxy.Config, log *zap.Logger) *fsthttp.Transport {
	transport := fsthttp.NewTransport(backendTarget)

	for backend, raw := range map[string]string{
		backendTarget:   cfg.TargetDomain,
		backendService1: cfg.Service1,
		backendService2: cfg.Service2,
	} {
		if raw == "" {
			continue
		}

		origin, err := proxy.ParseOrigin(raw)
		if err != nil {
			// reported by the proxy on every request
			continue
		}

		log.Debug("registering backend",
			zap.String("backend", backend),
			zap.String("host", origin.Host),
		)

		transport.AddBackend(backend, origin.Host)
	}

	return transport
}

// newLogger logs json to stdout, and to the named real-time logging
// endpoint if one is configured.
func newLogger(level, endpoint string) *zap.Logger {
	sink := zapcore.AddSync(os.Stdout)
	if endpoint != "" {
		sink = zapcore.NewMultiWriteSyncer(sink, zapcore.AddSync(rtlog.Open(endpoint)))
	}

	atom := zap.NewAtomicLevelAt(zap.InfoLevel)
	if parsed, err := zap.ParseAtomicLevel(level); err == nil && level != "" {
		atom = parsed
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		sink,
		atom,
	)

	return zap.New(core).With(
		zap.String("app", "edgeproxy"),
		zap.String("pop", os.Getenv("FASTLY_POP")),
	)
}
