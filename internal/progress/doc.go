// Package progress carries live pipeline progress. Emitters hand Events to a
// non-blocking Hub that batches them on a background goroutine and fans them
// out to sinks such as logs, Prometheus collectors, or live job counters.
package progress
