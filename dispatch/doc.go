// Package dispatch runs conversation analysis asynchronously and delivers
// the results.
//
// Every triggering write submits a task carrying the conversation id and
// the lastModified snapshot observed at submit time. A bounded worker pool
// processes tasks: pipeline, template and query rebuild, then a
// conditional store against the snapshot. Losing that store race is an
// expected outcome, not an error: a newer write has a newer task in
// flight, so the stale result is discarded silently (debug log, counter,
// no callback).
//
// Committed results are persisted as immutable analysis snapshots, a
// completion event is published, and, when the task carries a callback
// URI, exactly one callback is delivered. Callback failures never
// propagate past the dispatcher.
package dispatch
