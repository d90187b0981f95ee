package proxy

import (
	"fmt"
	"net/url"
	"strings"
)

// Origin is an upstream HTTP service requests are forwarded to.
type Origin struct {
	// Base is the configured origin URL without a trailing slash. It
	// may carry a base path which forwarded paths are appended to.
	Base string

	// Web is the scheme://host[:port] part of Base.
	Web string

	// Host is the host[:port] part of Base.
	Host string
}

// ParseOrigin parses a configured origin URL. Only absolute http and
// https URLs without query or fragment are accepted. Forwarded paths
// are appended to Base verbatim.
func ParseOrigin(raw string) (Origin, error) {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return Origin{}, fmt.Errorf("%w: %q: %w", ErrInvalidOrigin, raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return Origin{}, fmt.Errorf("%w: %q: unsupported scheme", ErrInvalidOrigin, raw)
	}

	if u.Host == "" {
		return Origin{}, fmt.Errorf("%w: %q: missing host", ErrInvalidOrigin, raw)
	}

	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" || strings.Contains(raw, "#") {
		return Origin{}, fmt.Errorf("%w: %q: query or fragment not allowed", ErrInvalidOrigin, raw)
	}

	return Origin{
		Base: strings.TrimSuffix(raw, "/"),
		Web:  u.Scheme + "://" + u.Host,
		Host: u.Host,
	}, nil
}

func (o Origin) String() string {
	return o.Base
}
