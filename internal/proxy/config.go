package proxy

import "time"

// Mode is the forwarding mode of the proxy.
type Mode string

const (
	// ModeSingle forwards every request to TARGET_DOMAIN.
	ModeSingle Mode = "single"

	// ModeDual forwards to a randomly chosen service out of
	// SERVICE_1 and SERVICE_2, falling back to the other one once.
	ModeDual Mode = "dual"
)

func (m Mode) String() string {
	return string(m)
}

const (
	// DefaultTimeoutMS is the default time to wait for upstream
	// response headers, in milliseconds.
	DefaultTimeoutMS = 60000

	// DefaultStripPrefix is the path prefix injected by file-based
	// platform routing.
	DefaultStripPrefix = "/api"

	// DefaultInjectedParam is the query parameter injected by
	// catch-all platform routes.
	DefaultInjectedParam = "path"
)

// Config is the per-deployment proxy configuration.
type Config struct {
	// TargetDomain is the origin of the single-origin mode.
	TargetDomain string `conf:"target_domain"`

	// Service1 is the first origin of the dual-origin mode.
	Service1 string `conf:"service_1"`

	// Service2 is the second origin of the dual-origin mode.
	Service2 string `conf:"service_2"`

	// TimeoutMS is the time to wait for upstream response headers.
	TimeoutMS int `conf:"timeout_ms"`

	// StripPrefix is removed from the beginning of the request path.
	StripPrefix string `conf:"strip_prefix"`

	// InjectedParam is removed from the request query string.
	InjectedParam string `conf:"injected_param"`
}

// DefaultConfig returns the default values of the proxy config,
// keyed like the conf tags of Config.
func DefaultConfig() map[string]any {
	return map[string]any{
		"timeout_ms":     DefaultTimeoutMS,
		"strip_prefix":   DefaultStripPrefix,
		"injected_param": DefaultInjectedParam,
	}
}

// Mode returns the forwarding mode selected by the config. Setting
// either service selects the dual-origin mode.
func (c Config) Mode() Mode {
	if c.Service1 != "" || c.Service2 != "" {
		return ModeDual
	}

	return ModeSingle
}

// Timeout returns the upstream header timeout.
func (c Config) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return DefaultTimeoutMS * time.Millisecond
	}

	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Origins parses the origins of the configured mode. ErrMissingTarget
// or ErrMissingServices is returned if required values are absent.
func (c Config) Origins() ([]Origin, error) {
	var raw []string

	switch c.Mode() {
	case ModeDual:
		if c.Service1 == "" || c.Service2 == "" {
			return nil, ErrMissingServices
		}
		raw = []string{c.Service1, c.Service2}
	default:
		if c.TargetDomain == "" {
			return nil, ErrMissingTarget
		}
		raw = []string{c.TargetDomain}
	}

	origins := make([]Origin, 0, len(raw))
	for _, r := range raw {
		origin, err := ParseOrigin(r)
		if err != nil {
			return nil, err
		}
		origins = append(origins, origin)
	}

	return origins, nil
}
