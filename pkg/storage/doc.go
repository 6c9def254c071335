// Package storage provides the Persistent Store component: durable,
// key-indexed storage for the four collections the kernel needs to
// survive a restart — operations, materialized nodes, folder metadata,
// and sync metadata.
//
// Two implementations share the Store interface: BoltStore, an
// embedded bbolt database with one bucket per collection and
// JSON-encoded values, and MemStore, a mutex-guarded in-memory map used
// by kernel tests and by deployments that accept losing the log across
// restarts. The kernel's in-memory tree model is always authoritative;
// a store failure is not surfaced to the caller, and the failed write
// is not retried.
package storage
