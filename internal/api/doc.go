// Package api hosts the HTTP server, middleware, and REST handlers for job
// control. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs and /v1/jobs/{job_id}/... for submission, polling,
//     results, cancellation and disposal.
//   - GET /v1/runs and /v1/runs/{job_id} for run history via the
//     store.RunRepository interface.
package api
