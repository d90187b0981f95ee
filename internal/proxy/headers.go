package proxy

import "net/http"

const (
	headerAllowOrigin  = "Access-Control-Allow-Origin"
	headerAllowMethods = "Access-Control-Allow-Methods"
	headerAllowHeaders = "Access-Control-Allow-Headers"
	headerRequestID    = "X-Request-Id"

	preflightMethods = "GET, POST, PUT, DELETE, OPTIONS"
)

// hopHeaders are connection-scoped headers which are never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// outboundHeader derives the header of an upstream request from the
// incoming request header.
func outboundHeader(in http.Header, origin Origin) http.Header {
	h := in.Clone()
	if h == nil {
		h = make(http.Header)
	}

	removeHopHeaders(h)
	h.Del("Host")
	h.Del("Content-Length")

	h.Set("Origin", origin.Web)
	h.Set("Referer", origin.Web+"/")

	return h
}

// copyResponseHeader copies the upstream response header to dst,
// dropping the headers that no longer describe the relayed body.
func copyResponseHeader(dst, src http.Header, decoded bool) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}

	removeHopHeaders(dst)
	dst.Del("Content-Length")
	if decoded {
		dst.Del("Content-Encoding")
	}

	dst.Set(headerAllowOrigin, "*")
}

// writePreflight answers a CORS preflight request.
func writePreflight(w http.ResponseWriter) {
	h := w.Header()
	h.Set(headerAllowOrigin, "*")
	h.Set(headerAllowMethods, preflightMethods)
	h.Set(headerAllowHeaders, "*")
	w.WriteHeader(http.StatusNoContent)
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
