// Package errors provides standardized error handling for convstreams
// components. It includes error classification, standard error variables,
// and helper functions for consistent error wrapping across the system.
//
// Errors are classified into three classes:
//
//   - Transient: temporary conditions (storage unavailable, timeouts) that
//     callers may retry
//   - Invalid: bad input or configuration; retrying without a change is
//     pointless
//   - Fatal: unrecoverable conditions that should stop processing
//
// Expected control-flow outcomes are modeled as plain sentinel errors, not
// classified errors. The most important one is ErrConcurrentModification:
// a conditional store that lost the race reports it so the caller can
// discard its now-stale result. It is a normal outcome of optimistic
// concurrency, never something to surface to users or to retry blindly.
package errors
