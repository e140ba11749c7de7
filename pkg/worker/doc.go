// Package worker provides a small fixed-size worker pool with a bounded
// queue. The dispatcher uses it to run analysis tasks off the request path:
// the triggering caller only pays for the synchronous store write, while
// pipeline, template/query rebuild and callback delivery run on pool
// workers. Submit never blocks; a full queue drops the task and reports
// ErrQueueFull so backpressure is visible to the caller.
package worker
