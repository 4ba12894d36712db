// Package progress provides the event primitives, non-blocking hub, and
// emitter interface the orchestrator uses to report run progress. Events are
// batched on a background goroutine and fanned out to pluggable sinks such as
// Prometheus metrics or the job store, so a slow store never stalls a
// collector's pacing loop.
package progress
