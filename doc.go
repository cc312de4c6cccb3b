// Package lazyrag provides the pluggable search-server contract for a
// lazy retrieval pipeline: a uniform Server interface any retrieval
// backend implements, a Registry mapping type tags to backend factories,
// a Config codec for persisting and restoring backend state, and a
// multi-stage Workflow that chains search nodes so that the hits of one
// stage become the ensured candidate set of the next.
//
// Backends live under pkg/backend: an in-memory BM25 index (lexical),
// an embedding/cosine backend (vector), and a RediSearch-backed
// full-text backend (redisearch). New kinds register themselves with a
// Registry under a type tag and are reconstructed from plain
// configuration mappings via Registry.Load.
package lazyrag
