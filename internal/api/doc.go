// Package api hosts the optional status server exposed while a crawl runs.
// Notable routes:
//   - GET /healthz / readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/categories and /v1/categories/{category_id} for per-category
//     progress read from the in-memory stats sink.
package api
