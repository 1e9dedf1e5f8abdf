// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that the admission engine uses to broadcast outcomes. It batches
// events on a background goroutine and fans them out to pluggable sinks such
// as Prometheus metrics, host statistics or a Pub/Sub notifier.
package progress
