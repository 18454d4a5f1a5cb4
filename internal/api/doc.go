// Package api hosts the HTTP server, middleware, and handlers for the reader.
// Notable routes:
//   - GET /health for liveness probes and cache stats.
//   - GET /metrics for Prometheus scraping.
//   - POST /cache/clear to drop memoized documents.
//   - GET /{url} and POST / to convert a page to Markdown.
package api
