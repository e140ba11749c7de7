// Package retry provides bounded exponential-backoff retry for I/O bound
// operations. Errors wrapped with NonRetryable abort the loop immediately;
// this is how callers distinguish transport failures (retried) from
// application-level outcomes such as a non-2xx callback response (not
// retried).
package retry
