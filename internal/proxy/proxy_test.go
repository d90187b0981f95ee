package proxy_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lambda-feedback/edgeproxy/internal/proxy"
)

// --- Upstream helpers ---

type recordedRequest struct {
	Method   string
	Host     string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

type upstreamServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstreamServer {
	u := &upstreamServer{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		u.mu.Lock()
		u.requests = append(u.requests, recordedRequest{
			Method:   r.Method,
			Host:     r.Host,
			Path:     r.URL.EscapedPath(),
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     body,
		})
		u.mu.Unlock()

		handler(w, r)
	}))
	t.Cleanup(u.Close)

	return u
}

func (u *upstreamServer) calls() []recordedRequest {
	u.mu.Lock()
	defer u.mu.Unlock()

	return append([]recordedRequest(nil), u.requests...)
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func closedURL(t *testing.T) string {
	s := httptest.NewServer(http.NotFoundHandler())
	url := s.URL
	s.Close()
	return url
}

// --- Mock transport ---

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*http.Response)
	return res, args.Error(1)
}

// --- Proxy helpers ---

func fixedPicker(idx int) proxy.Picker {
	return proxy.PickerFunc(func(int) int { return idx })
}

func newProxy(t *testing.T, config proxy.Config, opts ...func(*proxy.Params)) *proxy.Proxy {
	if config.StripPrefix == "" {
		config.StripPrefix = proxy.DefaultStripPrefix
	}
	if config.InjectedParam == "" {
		config.InjectedParam = proxy.DefaultInjectedParam
	}

	params := proxy.Params{
		Config:  config,
		Picker:  fixedPicker(0),
		Metrics: proxy.NewMetrics(prometheus.NewRegistry()),
		Log:     zaptest.NewLogger(t),
	}

	for _, opt := range opts {
		opt(&params)
	}

	return proxy.New(params)
}

func serve(p http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	p.ServeHTTP(w, req)
	return w
}

func parseError(t *testing.T, w *httptest.ResponseRecorder) proxy.ErrorResponse {
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var res proxy.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))

	return res
}

// --- Preflight & configuration ---

func TestProxy_Preflight_WithoutConfig(t *testing.T) {
	transport := new(mockTransport)
	p := newProxy(t, proxy.Config{}, func(params *proxy.Params) {
		params.Transport = transport
	})

	w := serve(p, httptest.NewRequest(http.MethodOptions, "/api/v1/models", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Headers"))
	transport.AssertNotCalled(t, "RoundTrip", mock.Anything)
}

func TestProxy_Preflight_Dual(t *testing.T) {
	upstream := newUpstream(t, respond(http.StatusOK, "ok"))

	p := newProxy(t, proxy.Config{Service1: upstream.URL, Service2: upstream.URL})

	w := serve(p, httptest.NewRequest(http.MethodOptions, "/api/v1/models", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, upstream.calls())
}

func TestProxy_MissingTarget(t *testing.T) {
	transport := new(mockTransport)
	p := newProxy(t, proxy.Config{}, func(params *proxy.Params) {
		params.Transport = transport
	})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "TARGET_DOMAIN is not set", parseError(t, w).Error)
	transport.AssertNotCalled(t, "RoundTrip", mock.Anything)
}

func TestProxy_MissingServices(t *testing.T) {
	transport := new(mockTransport)
	p := newProxy(t, proxy.Config{Service1: "https://a.example.com"}, func(params *proxy.Params) {
		params.Transport = transport
	})

	w := serve(p, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{}")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "SERVICE_1 and SERVICE_2 must be set", parseError(t, w).Error)
	transport.AssertNotCalled(t, "RoundTrip", mock.Anything)
}

func TestProxy_InvalidOrigin(t *testing.T) {
	p := newProxy(t, proxy.Config{TargetDomain: "upstream.example.com"})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, parseError(t, w).Error, "invalid origin")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestProxy_UnreadableBody(t *testing.T) {
	upstream := newUpstream(t, respond(http.StatusOK, "ok"))
	p := newProxy(t, proxy.Config{TargetDomain: upstream.URL})

	w := serve(p, httptest.NewRequest(http.MethodPost, "/api/v1/chat", failingReader{}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, parseError(t, w).Error, "invalid request body")
	assert.Empty(t, upstream.calls())
}

// --- Single origin ---

func TestProxy_Single_Forward(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		w.Header().Set("Access-Control-Allow-Origin", "https://other.example.com")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"1"}`)
	})

	p := newProxy(t, proxy.Config{TargetDomain: upstream.URL + "/"})

	req := httptest.NewRequest(http.MethodPost,
		"http://proxy.example.com/api/v1/chat/completions?path=v1%2Fchat%2Fcompletions&stream=true",
		strings.NewReader(`{"model":"m"}`))
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Origin", "https://app.example.com")

	w := serve(p, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"id":"1"}`, w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Upstream"))
	assert.Equal(t, []string{"*"}, w.Header().Values("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	calls := upstream.calls()
	require.Len(t, calls, 1)

	call := calls[0]
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Equal(t, "/v1/chat/completions", call.Path)
	assert.Equal(t, "stream=true", call.RawQuery)
	assert.Equal(t, `{"model":"m"}`, string(call.Body))
	assert.Equal(t, strings.TrimPrefix(upstream.URL, "http://"), call.Host)
	assert.Equal(t, "Bearer secret", call.Header.Get("Authorization"))
	assert.Equal(t, upstream.URL, call.Header.Get("Origin"))
	assert.Equal(t, upstream.URL+"/", call.Header.Get("Referer"))
}

func TestProxy_Single_RootPath(t *testing.T) {
	upstream := newUpstream(t, respond(http.StatusOK, "root"))
	p := newProxy(t, proxy.Config{TargetDomain: upstream.URL})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api?path=", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	calls := upstream.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/", calls[0].Path)
	assert.Empty(t, calls[0].RawQuery)
}

func TestProxy_Single_GetWithoutBody(t *testing.T) {
	upstream := newUpstream(t, respond(http.StatusOK, "ok"))
	p := newProxy(t, proxy.Config{TargetDomain: upstream.URL})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", strings.NewReader("ignored")))

	assert.Equal(t, http.StatusOK, w.Code)

	calls := upstream.calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Body)
}

func TestProxy_Single_PassesServerError(t *testing.T) {
	upstream := newUpstream(t, respond(http.StatusBadGateway, "bad gateway"))
	p := newProxy(t, proxy.Config{TargetDomain: upstream.URL})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "bad gateway", w.Body.String())
	assert.Len(t, upstream.calls(), 1)
}

func TestProxy_Single_UpstreamUnreachable(t *testing.T) {
	p := newProxy(t, proxy.Config{TargetDomain: closedURL(t)})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, parseError(t, w).Error)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestProxy_Single_Timeout(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	p := newProxy(t, proxy.Config{TargetDomain: upstream.URL, TimeoutMS: 50})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/slow", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, parseError(t, w).Error, "timed out")
}

func TestProxy_Single_RedirectNotFollowed(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	})

	p := newProxy(t, proxy.Config{TargetDomain: upstream.URL})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/login", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/elsewhere", w.Header().Get("Location"))
	assert.Len(t, upstream.calls(), 1)
}

func TestProxy_Single_DecodesResponse(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		io.WriteString(bw, "hello from upstream")
		bw.Close()

		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	})

	p := newProxy(t, proxy.Config{TargetDomain: upstream.URL})

	req := httptest.NewRequest(http.MethodGet, "/api/greeting", nil)
	req.Header.Set("Accept-Encoding", "br")

	w := serve(p, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Empty(t, w.Header().Get("Content-Length"))
	assert.Equal(t, "hello from upstream", w.Body.String())
}

func TestProxy_RequestID(t *testing.T) {
	upstream := newUpstream(t, respond(http.StatusOK, "ok"))
	p := newProxy(t, proxy.Config{TargetDomain: upstream.URL})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	req.Header.Set("X-Request-Id", "req-123")

	w := serve(p, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-Id"))
}

// --- Dual origin ---

func TestProxy_Dual_PrimarySucceeds(t *testing.T) {
	primary := newUpstream(t, respond(http.StatusOK, "primary"))
	backup := newUpstream(t, respond(http.StatusOK, "backup"))

	p := newProxy(t, proxy.Config{Service1: primary.URL, Service2: backup.URL})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "primary", w.Body.String())
	assert.Len(t, primary.calls(), 1)
	assert.Empty(t, backup.calls())
}

func TestProxy_Dual_PickerOrder(t *testing.T) {
	service1 := newUpstream(t, respond(http.StatusOK, "service 1"))
	service2 := newUpstream(t, respond(http.StatusOK, "service 2"))

	p := newProxy(t, proxy.Config{Service1: service1.URL, Service2: service2.URL}, func(params *proxy.Params) {
		params.Picker = fixedPicker(1)
	})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, "service 2", w.Body.String())
	assert.Empty(t, service1.calls())
	assert.Len(t, service2.calls(), 1)
}

func TestProxy_Dual_RandomPickerUsesBoth(t *testing.T) {
	service1 := newUpstream(t, respond(http.StatusOK, "service 1"))
	service2 := newUpstream(t, respond(http.StatusOK, "service 2"))

	p := newProxy(t, proxy.Config{Service1: service1.URL, Service2: service2.URL}, func(params *proxy.Params) {
		params.Picker = proxy.RandomPicker{}
	})

	for i := 0; i < 64; i++ {
		w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.NotEmpty(t, service1.calls())
	assert.NotEmpty(t, service2.calls())
	assert.Len(t, append(service1.calls(), service2.calls()...), 64)
}

func TestProxy_Dual_FallbackOnServerError(t *testing.T) {
	primary := newUpstream(t, respond(http.StatusInternalServerError, "primary down"))
	backup := newUpstream(t, respond(http.StatusOK, "backup"))

	p := newProxy(t, proxy.Config{Service1: primary.URL, Service2: backup.URL})

	req := httptest.NewRequest(http.MethodPut, "/api/v1/items/1?path=v1%2Fitems%2F1&x=1", strings.NewReader("payload"))
	w := serve(p, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "backup", w.Body.String())

	primaryCalls, backupCalls := primary.calls(), backup.calls()
	require.Len(t, primaryCalls, 1)
	require.Len(t, backupCalls, 1)

	for _, call := range []recordedRequest{primaryCalls[0], backupCalls[0]} {
		assert.Equal(t, http.MethodPut, call.Method)
		assert.Equal(t, "/v1/items/1", call.Path)
		assert.Equal(t, "x=1", call.RawQuery)
		assert.Equal(t, "payload", string(call.Body))
	}

	assert.Equal(t, backup.URL, backupCalls[0].Header.Get("Origin"))
}

func TestProxy_Dual_FallbackOnTransportError(t *testing.T) {
	backup := newUpstream(t, respond(http.StatusAccepted, "backup"))

	p := newProxy(t, proxy.Config{Service1: closedURL(t), Service2: backup.URL})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "backup", w.Body.String())
	assert.Len(t, backup.calls(), 1)
}

func TestProxy_Dual_FallbackOnTimeout(t *testing.T) {
	primary := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	backup := newUpstream(t, respond(http.StatusOK, "backup"))

	p := newProxy(t, proxy.Config{Service1: primary.URL, Service2: backup.URL, TimeoutMS: 50})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "backup", w.Body.String())
}

func TestProxy_Dual_NoFallbackOnClientError(t *testing.T) {
	primary := newUpstream(t, respond(http.StatusNotFound, "not found"))
	backup := newUpstream(t, respond(http.StatusOK, "backup"))

	p := newProxy(t, proxy.Config{Service1: primary.URL, Service2: backup.URL})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, backup.calls())
}

func TestProxy_Dual_BothFail(t *testing.T) {
	primary := newUpstream(t, respond(http.StatusServiceUnavailable, "primary down"))

	p := newProxy(t, proxy.Config{Service1: primary.URL, Service2: closedURL(t)})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	res := parseError(t, w)
	assert.Equal(t, "Service Unavailable: Both upstreams failed.", res.Error)
	require.NotNil(t, res.Details)
	assert.Contains(t, res.Details.Primary, "503")
	assert.NotEmpty(t, res.Details.Backup)
	assert.Len(t, primary.calls(), 1)
}

func TestProxy_Dual_BothServerErrors(t *testing.T) {
	primary := newUpstream(t, respond(http.StatusInternalServerError, "primary down"))
	backup := newUpstream(t, respond(http.StatusBadGateway, "backup down"))

	p := newProxy(t, proxy.Config{Service1: primary.URL, Service2: backup.URL})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Len(t, primary.calls(), 1)
	assert.Len(t, backup.calls(), 1)
}

func TestProxy_Dual_SingleFallbackAttempt(t *testing.T) {
	transport := new(mockTransport)
	transport.On("RoundTrip", mock.Anything).Return(nil, errors.New("network down"))

	p := newProxy(t, proxy.Config{
		Service1: "https://one.example.com",
		Service2: "https://two.example.com",
	}, func(params *proxy.Params) {
		params.Transport = transport
	})

	w := serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	transport.AssertNumberOfCalls(t, "RoundTrip", 2)

	hosts := []string{
		transport.Calls[0].Arguments.Get(0).(*http.Request).URL.Host,
		transport.Calls[1].Arguments.Get(0).(*http.Request).URL.Host,
	}
	assert.Equal(t, []string{"one.example.com", "two.example.com"}, hosts)
}

func TestProxy_Dual_Metrics(t *testing.T) {
	primary := newUpstream(t, respond(http.StatusInternalServerError, "primary down"))
	backup := newUpstream(t, respond(http.StatusOK, "backup"))

	reg := prometheus.NewRegistry()
	p := newProxy(t, proxy.Config{Service1: primary.URL, Service2: backup.URL}, func(params *proxy.Params) {
		params.Metrics = proxy.NewMetrics(reg)
	})

	serve(p, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	expected := `
# HELP edgeproxy_fallbacks_total Total number of requests retried against the backup origin.
# TYPE edgeproxy_fallbacks_total counter
edgeproxy_fallbacks_total 1
# HELP edgeproxy_requests_total Total number of handled requests by mode and outcome.
# TYPE edgeproxy_requests_total counter
edgeproxy_requests_total{mode="dual",outcome="relayed"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"edgeproxy_fallbacks_total",
		"edgeproxy_requests_total",
	)
	assert.NoError(t, err)
}

func TestProxy_ConfigError(t *testing.T) {
	transport := new(mockTransport)

	p := proxy.NewWithConfigError(proxy.Params{
		Config:    proxy.Config{TargetDomain: "https://target.example.com"},
		Transport: transport,
		Log:       zaptest.NewLogger(t),
	}, errors.New("invalid config: timeout_ms"))

	w := serve(p, httptest.NewRequest(http.MethodOptions, "/api/users", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(p, httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader("{}")))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "invalid config: timeout_ms", parseError(t, w).Error)

	transport.AssertNotCalled(t, "RoundTrip", mock.Anything)
}
