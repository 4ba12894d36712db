// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - POST /api/projects/{id}/scrape and /scrape/stop to control runs.
//   - GET /api/projects/{id}/scrape/status, /results, /stats, /logs, /jobs.
//   - GET and POST /api/projects/{id}/export for downloads and archives.
//   - GET /healthz, /readyz for probes and /metrics for Prometheus.
package api
