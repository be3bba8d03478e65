// Package audit records security-relevant events: logins, refreshes,
// revocations, rate limit hits, reuse incidents.
//
// Events flow through an asynchronous [Dispatcher] into a [Sink], so
// recording never blocks the authentication path. A [History] keeps a
// bounded window of recent events for queries ([Memory] ring buffer or
// [Redis] list shared across instances); [HistorySink] bridges the two.
//
// # Architecture boundaries
//
// This package decides nothing. It never inspects event contents, never
// rejects an event, and never feeds information back into authentication
// decisions. Enforcement lives in the packages that emit the events.
package audit
