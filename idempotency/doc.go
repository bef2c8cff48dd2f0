// Package idempotency records which events a consumer has already processed.
//
// The consumer runtime asks the Store before invoking a handler and marks the
// event after the handler succeeds, so a redelivered event whose offset was
// never committed is skipped instead of being applied twice.
//
// Three backends are available:
//
//   - RedisStore: "true" string values with a native TTL. The default, and
//     the one to use when several replicas share a consumer group.
//   - PostgresStore: a processed_events table with an expires_at column,
//     written with INSERT ... ON CONFLICT and purged periodically.
//   - MemoryStore: process-local, for tests and single-instance runs.
//
// Keys are namespaced ("event_bus:" by default). The store never returns an
// error for a missing key; backend failures are wrapped in ErrStoreUnavailable
// or ErrStoreClosed when they can be classified.
package idempotency
