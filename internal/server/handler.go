package server

import (
	"net/http"
	"strings"

	"go.uber.org/fx"
)

// CatchAll is the name of the route receiving every request no other
// route matches.
const CatchAll = "/"

// HttpHandler is a route contributed to the router. Name is either
// CatchAll, an exact path, or a method followed by an exact path, as
// in "GET /health".
type HttpHandler struct {
	Name    string
	Handler http.Handler
}

type HttpHandlerResult struct {
	fx.Out

	Handler *HttpHandler `group:"handlers"`
}

func AsHttpHandler(
	name string,
	handler http.Handler,
) HttpHandlerResult {
	return HttpHandlerResult{
		Handler: &HttpHandler{
			Name:    name,
			Handler: handler,
		},
	}
}

type route struct {
	method  string
	path    string
	handler http.Handler
}

func (r route) matches(req *http.Request) bool {
	if req.URL.Path != r.path {
		return false
	}

	switch r.method {
	case "", req.Method:
		return true
	case http.MethodGet:
		return req.Method == http.MethodHead
	default:
		return false
	}
}

// Router dispatches requests on exact method and path matches. Unlike
// http.ServeMux, it never cleans or redirects paths: requests which
// match no route reach the catch-all handler unchanged.
type Router struct {
	routes   []route
	catchAll http.Handler
}

// NewRouter creates a router serving all handlers.
func NewRouter(handlers []*HttpHandler) *Router {
	r := &Router{}

	for _, handler := range handlers {
		if handler.Name == CatchAll {
			r.catchAll = handler.Handler
			continue
		}

		rt := route{path: handler.Name, handler: handler.Handler}
		if method, path, ok := strings.Cut(handler.Name, " "); ok {
			rt.method = method
			rt.path = strings.TrimSpace(path)
		}

		r.routes = append(r.routes, rt)
	}

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	for _, rt := range r.routes {
		if rt.matches(req) {
			rt.handler.ServeHTTP(w, req)
			return
		}
	}

	if r.catchAll == nil {
		http.NotFound(w, req)
		return
	}

	r.catchAll.ServeHTTP(w, req)
}
