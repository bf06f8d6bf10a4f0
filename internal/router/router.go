// Package router dispatches completed request streams to registered
// handlers by method and exact path, producing the status, content type,
// and body to frame back. Every failure mode is answered: a missing :path
// pseudo-header yields 400, an unmatched path 404, and a panicking handler
// 500. Nothing escapes Dispatch, so one bad request can never tear down the
// shared connection.
package router

import (
	"fmt"
	"runtime/debug"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/http2/hpack"

	"example.com/h3mux/internal/h3"
	"example.com/h3mux/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler produces one response for a completed request. Handlers must
// return promptly: they run inline on the connection's event loop, and a
// stalled handler stalls every other stream on that connection.
type Handler func(method, path string, headers []hpack.HeaderField) (status int, contentType string, body []byte)

type routeKey struct {
	method string
	path   string
}

// Router holds a fixed table of handlers keyed by method and exact path.
// Registration happens once at startup; dispatch is read-only thereafter.
type Router struct {
	routes map[routeKey]Handler
	log    *logger.Logger
}

// New creates an empty Router. The logger may be nil.
func New(log *logger.Logger) *Router {
	return &Router{
		routes: make(map[routeKey]Handler),
		log:    log,
	}
}

// Handle registers h for the given method and exact path.
func (r *Router) Handle(method, path string, h Handler) {
	r.routes[routeKey{method: method, path: path}] = h
}

// Dispatch routes one completed request stream and returns the response to
// frame. The :path pseudo-header is matched exactly after stripping any
// query string; the 404 body reports the path as requested.
func (r *Router) Dispatch(st *h3.StreamState) (status int, contentType string, body []byte) {
	path, ok := st.Header(":path")
	if !ok {
		r.log.Warn("request missing :path pseudo-header", logger.LogFields{"stream_id": st.ID()})
		return 400, "application/json", jsonBody(map[string]interface{}{
			"error":   "Bad Request",
			"message": "missing :path pseudo-header",
		})
	}
	method, ok := st.Header(":method")
	if !ok {
		method = "GET"
	}

	matchPath := path
	if i := strings.IndexByte(matchPath, '?'); i >= 0 {
		matchPath = matchPath[:i]
	}

	handler, ok := r.routes[routeKey{method: method, path: matchPath}]
	if !ok {
		r.log.Info("no route matched", logger.LogFields{
			"stream_id": st.ID(),
			"method":    method,
			"path":      path,
		})
		return 404, "application/json", jsonBody(map[string]interface{}{
			"error": "Not Found",
			"path":  path,
		})
	}

	return r.invoke(handler, st, method, path)
}

// invoke runs one handler with panic containment. A handler panic becomes
// a 500 response; the connection keeps serving its other streams.
func (r *Router) invoke(h Handler, st *h3.StreamState, method, path string) (status int, contentType string, body []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panicked", logger.LogFields{
				"stream_id": st.ID(),
				"method":    method,
				"path":      path,
				"panic":     fmt.Sprint(rec),
				"stack":     string(debug.Stack()),
			})
			status = 500
			contentType = "application/json"
			body = jsonBody(map[string]interface{}{
				"error":   "Internal Server Error",
				"message": fmt.Sprint(rec),
			})
		}
	}()
	return h(method, path, st.Headers())
}

// jsonBody marshals v, falling back to a fixed error document on failure.
func jsonBody(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"Internal Server Error","message":"response encoding failed"}`)
	}
	return b
}

// JSONBody encodes a handler response body as JSON. Exported for handlers
// that build JSON payloads.
func JSONBody(v interface{}) []byte { return jsonBody(v) }
