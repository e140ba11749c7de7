// Package natsclient manages the NATS connection used by convstreams for
// persistence (JetStream key-value buckets) and completion-event
// publication. It wraps connection lifecycle, reconnect handling, and a
// KVStore helper exposing revision-based compare-and-swap, which the
// conversation store translates into its lastModified CAS contract.
package natsclient
