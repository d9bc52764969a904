// Package api hosts the ops HTTP server that runs alongside an ingest run.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live run summary.
package api
