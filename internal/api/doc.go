// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /parse/{category}, /update-urls, /stop/... for job control.
//   - GET /status/... for job progress, GET /products for stored results.
package api
