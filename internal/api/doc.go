// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes health checks; readyz pings the database.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a crawl now (409 while one is running).
//   - GET /v1/runs/last for the summary of the most recent run.
package api
