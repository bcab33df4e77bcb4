// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that the job runner uses to report scrape progress. Events are
// batched on a background goroutine and fanned out to pluggable sinks such as
// Prometheus metrics, structured logs, or the run-history store.
package progress
