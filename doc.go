// Package convstreams provides a server for incremental analysis of chat
// conversations.
//
// Conversations arrive message by message over a REST API. Every write
// triggers a fresh analysis run: a configurable pipeline of extraction
// stages produces tokens (keywords, dates) from the messages, a template
// engine groups those tokens into typed slot structures, and query
// builders turn the templates into executable searches against external
// knowledge bases. Results are committed with optimistic concurrency so
// a stale run never overwrites the outcome of a newer one, and can be
// delivered asynchronously to per-request callback URIs.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│        HTTP Gateway                 │  REST surface, health,
//	│  (conversation + analysis routes)   │  metrics
//	└─────────────────────────────────────┘
//	           ↓ calls
//	┌─────────────────────────────────────┐
//	│     Conversation Service            │  Ownership checks,
//	│  (append, votes, status, fields)    │  write-then-analyze
//	└─────────────────────────────────────┘
//	           ↓ dispatches to
//	┌─────────────────────────────────────┐
//	│        Dispatcher                   │  Worker pool, callbacks,
//	│  pipeline → engine → conditional    │  completion events
//	│  store                              │
//	└─────────────────────────────────────┘
//	           ↓ persists via
//	┌─────────────────────────────────────┐
//	│      Conversation Store             │  NATS JetStream KV or
//	│  (conversations + analysis          │  embedded in-memory
//	│   snapshots)                        │
//	└─────────────────────────────────────┘
//
// # Packages
//
// Domain:
//   - model: conversations, messages, tokens, templates, analyses
//   - pipeline: stage selection and execution over message windows
//   - pipeline/stages: keyword and date extraction stages
//   - engine: template building and query regeneration
//   - engine/querybuilders: query builders for external search services
//   - dispatch: async analysis runs, callback delivery, worker pool
//   - service: application layer tying storage and analysis together
//   - store: conversation and analysis persistence (KV and in-memory)
//
// Infrastructure:
//   - gateway/http: REST API
//   - config: file and environment configuration, client components
//   - natsclient: NATS connection management
//   - metric: Prometheus metrics registry
//   - errors: structured error handling
//   - health: liveness and readiness probes
//   - pkg/retry: retry policies
//   - pkg/worker: bounded worker pools
//
// # Binary
//
// Build and run the server:
//
//	go build -o bin/convstreams ./cmd/convstreams
//
//	# Run against NATS
//	./bin/convstreams --config configs/example.json
//
//	# Run fully in-memory
//	CONVSTREAMS_NATS_EMBEDDED=true ./bin/convstreams
package convstreams
