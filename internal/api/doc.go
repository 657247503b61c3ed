// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - POST /v1/crawl runs a crawl synchronously and returns the document inline.
//   - POST /v1/download turns a base64 document back into a PDF attachment.
//   - POST /v1/jobs and /v1/jobs/{job_id}/... submit, inspect, cancel, and
//     download asynchronous jobs.
//   - GET /healthz, /readyz for probes and /metrics for Prometheus scraping.
package api
