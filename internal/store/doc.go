// Package store defines conversation record types and persistence backends.
//
// # Overview
//
// The store package owns the persisted shape of a conversation: the Record
// struct keyed by request id, its append-only History, and the status
// vocabulary (open, clarifying, done, partial, failed, timeout). The Store
// interface moves the snapshot as a whole document:
//
//	type Store interface {
//		Load(ctx) (map[string]*Record, error)
//		Save(ctx, map[string]*Record) error
//		Close() error
//	}
//
// Whole-document semantics keep every backend compatible with the tracker's
// load-mutate-save discipline; the tracker, not the backend, serializes
// concurrent mutations.
//
// # Backends
//
//   - FileStore: one pretty-printed JSON document at a fixed path. The
//     default backend; the file is human-inspectable and trivially portable.
//   - SQLiteStore: one row per conversation in a SQLite database
//     (modernc.org/sqlite, WAL mode). Same snapshot contract.
//   - MemStore: in-memory, for tests and ephemeral trackers, with error
//     injection hooks.
//
// # Consistency
//
// A Load observes either the pre- or post-Save snapshot, never a torn one:
// the file store reads the document in a single ReadFile and the SQLite
// store replaces the table in one transaction. Cross-process writers are not
// coordinated; that limitation is documented on the tracker.
package store
