// Package store provides durable keyed storage for Conversation and
// Analysis aggregates with optimistic concurrency control.
//
// # CAS contract
//
// Every successful write bumps the conversation's LastModified timestamp
// (monotonically non-decreasing per id). StoreIfUnmodifiedSince persists a
// conversation only if the currently stored LastModified is not strictly
// newer than the caller's snapshot token; otherwise it reports
// errors.ErrConcurrentModification and leaves storage untouched. Callers
// treat that as a normal control-flow outcome: the store never retries it,
// because a superseding write means a newer, more complete analysis is
// already in flight or committed.
//
// # Implementations
//
//   - memstore: mutex-guarded in-memory store for tests and embedded use
//   - kvstore: NATS JetStream KV buckets holding JSON documents; KV
//     revision CAS backs the lastModified contract, and unconditional
//     partial mutations (votes, status, field updates) run a bounded
//     read-modify-write retry loop on revision conflicts
//
// Analyses are immutable snapshots keyed by (conversation id, date);
// later snapshots supersede earlier ones and nothing is ever rewritten.
package store
