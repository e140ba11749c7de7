// Package model defines the domain aggregates of convstreams.
//
// A Conversation is the mutable, externally-addressable aggregate: an
// ordered list of chat Messages plus metadata and free-form context. Its
// LastModified timestamp is server-assigned on every successful write and
// doubles as the optimistic-concurrency token used by the store layer.
//
// An Analysis is a derived, immutable snapshot keyed by the conversation id
// and the LastModified value it was computed from. It carries the Tokens
// extracted by the processing pipeline and the Templates (intent guesses
// with Slots and generated Queries) produced by the template/query engine.
// Later snapshots supersede earlier ones; an Analysis is never mutated once
// written.
//
// Query state (Suggested/Confirmed/Rejected) is the only externally-mutable
// feedback carried by an Analysis. The engine preserves it across rebuilds
// by (template position, creator) correlation.
package model
