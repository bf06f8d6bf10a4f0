// Package api provides the built-in demo endpoints: a health status
// document, a sample data payload, and an HTML homepage listing them.
package api

import (
	"time"

	"golang.org/x/net/http2/hpack"

	"example.com/h3mux/internal/router"
)

// Protocol identifies the stack in status responses.
const Protocol = "h3mux"

// timeNow is swapped out in tests for deterministic timestamps.
var timeNow = time.Now

// Register installs all built-in endpoints on r.
func Register(r *router.Router) {
	r.Handle("GET", "/", Home)
	r.Handle("GET", "/api/status", Status)
	r.Handle("GET", "/api/data", Data)
}

// Status reports server health.
func Status(method, path string, headers []hpack.HeaderField) (int, string, []byte) {
	return 200, "application/json", router.JSONBody(map[string]interface{}{
		"status":    "healthy",
		"protocol":  Protocol,
		"timestamp": timeNow().UTC().Format(time.RFC3339),
	})
}

// Data returns a sample JSON payload.
func Data(method, path string, headers []hpack.HeaderField) (int, string, []byte) {
	return 200, "application/json", router.JSONBody(map[string]interface{}{
		"message": "Sample data from h3mux server",
		"items": []map[string]interface{}{
			{"id": 1, "name": "Item 1", "value": 100},
			{"id": 2, "name": "Item 2", "value": 200},
			{"id": 3, "name": "Item 3", "value": 300},
		},
	})
}

const homepage = `<!DOCTYPE html>
<html>
<head><title>h3mux server</title></head>
<body>
<h1>h3mux server</h1>
<p>Multiplexed request/response demo server.</p>
<h2>Endpoints</h2>
<ul>
<li><strong>GET /api/status</strong> &mdash; server health and timestamp</li>
<li><strong>GET /api/data</strong> &mdash; sample JSON data</li>
</ul>
</body>
</html>
`

// Home serves the HTML homepage.
func Home(method, path string, headers []hpack.HeaderField) (int, string, []byte) {
	return 200, "text/html; charset=utf-8", []byte(homepage)
}
