// Package main hosts the admission service entrypoint.
//
// Architecture overview:
//   - Admission engine: internal/admission runs each discovered URL through canonicalization, the scan index,
//     fetch conditions, refetch eligibility, domain policy and a durable insert, producing exactly one outcome
//     (added, duplicate, denied or error) per attempt.
//   - Eligibility store: memory, Postgres (pgx) or Redis backs the queue of items. The store alone enforces key
//     uniqueness, so several processes may admit against the same store.
//   - Dispatcher & queue: bulk discoveries flow through a bounded in-memory queue sized by admission.queue_depth
//     and are fanned out to a fixed worker pool sized by admission.concurrency.
//   - Progress: every outcome is emitted to a batching hub whose sinks log, export Prometheus metrics, update
//     per-host stats and announce new queue items on Pub/Sub.
//   - HTTP API: internal/api.Server exposes health, metrics, admission, discovery, fetch reporting and host stats.
//
// Commands:
//   - serve: run the API and worker pool until SIGINT/SIGTERM.
//   - admit URL... (or -): admit URLs once and print outcomes.
//   - seed --file list.txt: queue seed domains at depth 0.
//
// Quick checklist:
//   - Configure env vars: CRAWLER_SERVER_PORT, CRAWLER_ADMISSION_REFETCH_DAYS, CRAWLER_STORE_DRIVER, CRAWLER_DB_DSN
//     or CRAWLER_REDIS_ADDR, CRAWLER_DOMAINS_DENY_FILE, and CRAWLER_PUBSUB_* for notifications.
//   - Run locally: go run . serve --config config.yaml (or rely solely on env overrides).
package main
