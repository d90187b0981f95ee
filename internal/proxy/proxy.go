package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	roleSingle  = "single"
	rolePrimary = "primary"
	roleBackup  = "backup"
)

// Params defines the dependencies of the proxy.
type Params struct {
	fx.In

	// Config is the per-deployment proxy configuration.
	Config Config

	// Transport is used for upstream requests. Defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper `optional:"true"`

	// Picker chooses the primary origin in the dual mode. Defaults
	// to a uniform random choice.
	Picker Picker `optional:"true"`

	// Metrics collects request and attempt metrics.
	Metrics *Metrics `optional:"true"`

	// Tracer starts the spans of upstream attempts.
	Tracer trace.Tracer `optional:"true"`

	// Log is the logger to use for the proxy.
	Log *zap.Logger
}

// Proxy is an http.Handler forwarding requests to the configured
// origins.
type Proxy struct {
	config     Config
	mode       Mode
	origins    []Origin
	originsErr error
	upstream   *upstream
	picker     Picker
	metrics    *Metrics
	tracer     trace.Tracer
	log        *zap.Logger
}

// New creates a proxy. An incomplete config does not fail
// construction; every forwarded request is answered with an error
// instead.
func New(params Params) *Proxy {
	origins, err := params.Config.Origins()

	p := &Proxy{
		config:     params.Config,
		mode:       params.Config.Mode(),
		origins:    origins,
		originsErr: err,
		upstream:   newUpstream(params.Transport, params.Config.Timeout()),
		picker:     params.Picker,
		metrics:    params.Metrics,
		tracer:     params.Tracer,
		log:        params.Log,
	}

	if p.picker == nil {
		p.picker = RandomPicker{}
	}

	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}

	if p.tracer == nil {
		p.tracer = defaultTracer()
	}

	if p.log == nil {
		p.log = zap.NewNop()
	}

	return p
}

// NewWithConfigError creates a proxy whose configuration could not be
// loaded. Preflight requests are still answered; every other request
// fails with err.
func NewWithConfigError(params Params, err error) *Proxy {
	p := New(params)
	p.originsErr = err

	return p
}

// forward is an incoming request, rewritten for the upstream.
type forward struct {
	requestID string
	method    string
	path      string
	query     string
	header    http.Header
	body      []byte
}

// attempt is the result of one upstream request.
type attempt struct {
	origin   Origin
	role     string
	res      *http.Response
	err      error
	duration time.Duration
}

// failed reports whether the attempt warrants the fallback origin.
func (a attempt) failed() bool {
	return a.err != nil || a.res.StatusCode >= http.StatusInternalServerError
}

func (a attempt) describe() string {
	ms := a.duration.Milliseconds()
	if a.err != nil {
		return fmt.Sprintf("%s (%dms)", a.err, ms)
	}

	return fmt.Sprintf("upstream returned %d (%dms)", a.res.StatusCode, ms)
}

// discard drains and closes the body of a response which is not
// going to be relayed.
func (a attempt) discard() {
	if a.res == nil {
		return
	}

	io.Copy(io.Discard, io.LimitReader(a.res.Body, 64<<10))
	a.res.Body.Close()
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(headerRequestID, requestID)

	log := p.log.With(
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)

	// CORS preflight is answered regardless of the configuration
	if r.Method == http.MethodOptions {
		p.metrics.observeRequest(p.mode, outcomePreflight)
		writePreflight(w)
		return
	}

	// Refuse to forward anything without usable origins
	if p.originsErr != nil {
		log.Error("proxy is not configured", zap.Error(p.originsErr))
		p.metrics.observeRequest(p.mode, outcomeMisconfig)
		p.writeError(w, log, p.originsErr)
		return
	}

	// Buffer the body, so it can be sent to the backup origin
	body, err := readBody(r)
	if err != nil {
		log.Warn("failed to read body", zap.Error(err))
		p.metrics.observeRequest(p.mode, outcomeBadRequest)
		p.writeError(w, log, fmt.Errorf("%w: %w", ErrInvalidBody, err))
		return
	}

	path, query := p.config.rewriteRequest(r.URL)

	fwd := forward{
		requestID: requestID,
		method:    r.Method,
		path:      path,
		query:     query,
		header:    r.Header,
		body:      body,
	}

	if p.mode == ModeDual {
		p.serveDual(w, r, log, fwd)
	} else {
		p.serveSingle(w, r, log, fwd)
	}
}

func (p *Proxy) serveSingle(w http.ResponseWriter, r *http.Request, log *zap.Logger, fwd forward) {
	a := p.attempt(r, log, roleSingle, p.origins[0], fwd)
	if a.err != nil {
		sentry.CaptureException(a.err)
		p.metrics.observeRequest(p.mode, outcomeFailed)
		p.writeError(w, log, a.err)
		return
	}

	p.metrics.observeRequest(p.mode, outcomeRelayed)
	p.relay(w, log, fwd, a)
}

func (p *Proxy) serveDual(w http.ResponseWriter, r *http.Request, log *zap.Logger, fwd forward) {
	idx := p.picker.Pick(len(p.origins))
	if idx < 0 || idx >= len(p.origins) {
		idx = 0
	}
	primary, backup := p.origins[idx], p.origins[1-idx]

	first := p.attempt(r, log, rolePrimary, primary, fwd)
	if !first.failed() {
		p.metrics.observeRequest(p.mode, outcomeRelayed)
		p.relay(w, log, fwd, first)
		return
	}
	first.discard()

	log.Warn("primary failed, switching to backup",
		zap.Stringer("primary", primary),
		zap.Stringer("backup", backup),
		zap.String("reason", first.describe()),
	)
	p.metrics.fallbacks.Inc()

	second := p.attempt(r, log, roleBackup, backup, fwd)
	if !second.failed() {
		p.metrics.observeRequest(p.mode, outcomeRelayed)
		p.relay(w, log, fwd, second)
		return
	}
	second.discard()

	err := &FailoverError{
		Primary: first.describe(),
		Backup:  second.describe(),
	}

	log.Error("backup also failed", zap.Error(err))
	sentry.CaptureException(err)
	p.metrics.observeRequest(p.mode, outcomeUnavailable)
	p.writeError(w, log, err)
}

// attempt sends the request to the given origin once.
func (p *Proxy) attempt(r *http.Request, log *zap.Logger, role string, origin Origin, fwd forward) attempt {
	a := attempt{origin: origin, role: role}

	target, err := BuildTargetURL(origin, fwd.path, fwd.query)
	if err != nil {
		a.err = fmt.Errorf("%w: %w", ErrInvalidOrigin, err)
		return a
	}

	header := outboundHeader(fwd.header, origin)

	ctx, span := p.startAttemptSpan(r.Context(), role, fwd.method, target.String(), header)

	log = log.With(
		zap.String("role", role),
		zap.String("target", target.String()),
	)
	log.Info("forwarding request")

	start := time.Now()
	a.res, a.err = p.upstream.send(ctx, fwd.method, target, header, fwd.body)
	a.duration = time.Since(start)

	endAttemptSpan(span, a)
	p.metrics.observeAttempt(a)

	if a.err != nil {
		log.Error("upstream request failed",
			zap.Duration("duration", a.duration),
			zap.Error(a.err),
		)
	} else {
		log.Info("upstream responded",
			zap.Int("status", a.res.StatusCode),
			zap.Duration("duration", a.duration),
		)
	}

	return a
}

// relay writes the upstream response to the client.
func (p *Proxy) relay(w http.ResponseWriter, log *zap.Logger, fwd forward, a attempt) {
	body, decoded := decodeBody(a.res)
	defer body.Close()

	copyResponseHeader(w.Header(), a.res.Header, decoded)
	w.Header().Set(headerRequestID, fwd.requestID)

	w.WriteHeader(a.res.StatusCode)

	if err := copyBody(w, body); err != nil {
		log.Warn("failed to relay response body", zap.Error(err))
	}
}

// writeError writes the JSON error body for err.
func (p *Proxy) writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := getErrorStatusCode(err)

	body, merr := json.Marshal(newErrorResponse(err))
	if merr != nil {
		log.Error("failed to marshal error response", zap.Error(merr))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerAllowOrigin, "*")
	w.WriteHeader(status)

	if _, err := w.Write(body); err != nil {
		log.Debug("failed to write error response", zap.Error(err))
	}
}

// readBody buffers the request body. GET and HEAD requests are
// forwarded without a body.
func readBody(r *http.Request) ([]byte, error) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Body == nil {
		return nil, nil
	}

	return io.ReadAll(r.Body)
}

// copyBody streams src to w, flushing after every chunk so that
// event streams reach the client as they are produced.
func copyBody(w http.ResponseWriter, src io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, 32<<10)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return ferr
			}
		}

		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
