package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// upstream sends single requests to an origin.
type upstream struct {
	client  *http.Client
	timeout time.Duration
}

func newUpstream(transport http.RoundTripper, timeout time.Duration) *upstream {
	return &upstream{
		client: &http.Client{
			Transport: transport,
			// redirects are relayed to the client, not followed
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
	}
}

// send performs one upstream request. The timeout only covers the
// time until response headers arrive; the returned body stays
// readable until it is closed.
func (u *upstream) send(
	ctx context.Context,
	method string,
	target *url.URL,
	header http.Header,
	body []byte,
) (*http.Response, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(u.timeout, func() {
		cancel(ErrUpstreamTimeout)
	})

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		timer.Stop()
		cancel(nil)
		return nil, err
	}
	req.Header = header

	res, err := u.client.Do(req)
	timer.Stop()

	if err != nil {
		cause := context.Cause(ctx)
		cancel(nil)
		if errors.Is(cause, ErrUpstreamTimeout) {
			return nil, fmt.Errorf("%w after %s", ErrUpstreamTimeout, u.timeout)
		}
		return nil, err
	}

	res.Body = &cancelOnClose{
		ReadCloser: res.Body,
		cancel:     func() { cancel(nil) },
	}

	return res, nil
}

// cancelOnClose releases the request context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
