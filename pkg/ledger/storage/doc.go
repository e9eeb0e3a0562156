// Package storage provides ledger backends.
//
// SQLiteStorage persists passes, marks and the deletion database with the
// pure Go modernc.org/sqlite driver in WAL mode. MemoryStorage keeps
// everything in maps and is used by tests and dry runs.
//
// Both implement ledger.Storage and are safe for concurrent use.
package storage
