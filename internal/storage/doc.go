// Package storage is the optional delivery log: an append-only audit of every
// notification the notifier attempted. It is write-only from the bridge's
// point of view; nothing here is read back into engine state.
//
// Drivers: "file" (JSON Lines), "sqlite" (modernc.org/sqlite, no cgo) and
// "postgres" (lib/pq).
package storage
