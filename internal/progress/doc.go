// Package progress carries crawl progress events from the category crawlers
// to pluggable sinks. Events are stamped with the run ID found on the context,
// batched on a background goroutine by Hub, and fanned out to sinks such as
// structured logs, Prometheus collectors, or the in-memory category stats.
package progress
