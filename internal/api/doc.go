// Package api hosts the HTTP server, middleware, and REST handlers that let a
// link-discovery loop talk to the admission engine. Notable routes:
//   - POST /v1/admissions decides one URL synchronously and returns the outcome.
//   - POST /v1/discoveries queues links for the worker pool.
//   - POST /v1/fetches records a completed fetch, starting the refetch cooldown.
//   - GET /v1/queue-items?url= looks up a durable queue item.
//   - GET /v1/hosts and /v1/hosts/{host} report per-host admission counters.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus scraping.
package api
