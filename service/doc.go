// Package service is the application layer tying storage, pipeline,
// engine and dispatch together.
//
// Writes flow through here: the service persists the change, then
// triggers re-analysis. With a callback URI the analysis runs
// asynchronously and the result is delivered to the URI; without one the
// caller either gets the analysis inline (message append) or polls the
// analysis endpoint later (partial mutations).
//
// The service also enforces ownership: a client only ever sees and
// mutates its own conversations.
package service
