// Package cache provides the key-value Store capability used by the memento
// facade, with several backend implementations.
//
// # Store Interface
//
// The [Store] interface defines four operations: [Store.Get], [Store.Set],
// [Store.Remove], and [Store.Close]. Payloads are opaque byte slices; callers
// own serialization. All implementations satisfy this interface, so backends
// can be swapped without changing application code.
//
// Stores that can add to a set atomically also implement [SetStore]. The
// memento key index uses it when available instead of a read-modify-write of
// a serialized key list.
//
// # Expiration
//
// [Expiration] combines three policies:
//
//   - Absolute: the entry expires a fixed duration after it was written.
//   - Sliding: the entry expires if it is not read for a duration; every
//     successful Get pushes the expiry forward.
//   - AbsoluteAt: a wall-clock deadline.
//
// When both an absolute deadline and a sliding window are set, a sliding
// refresh never extends the entry past the absolute deadline. The zero
// Expiration never expires.
//
// # Implementations
//
//   - [NewInMemory]: in-process map guarded by a mutex. Payloads are copied
//     on the way in and out. Expired entries are cleaned up by a background
//     goroutine at a configurable interval. Lost on process restart.
//
//   - [NewRedis] / [OpenRedis]: one Redis hash per key (fields "v" for the
//     payload, "a" for the absolute deadline, "s" for the sliding window).
//     Expiry uses native Redis TTL, refreshed on read for sliding entries.
//     An optional prefix namespaces an instance on a shared server.
//
//   - [NewSQL] / [OpenSQL]: one row per key in a relational table, using
//     [github.com/jmoiron/sqlx] over SQLite ([modernc.org/sqlite], pure Go) or
//     PostgreSQL ([github.com/lib/pq]). [EnsureTable] creates the table.
//     Relational tables offer no key scans, which is why the facade keeps its
//     own key index.
//
//   - [NewTiered]: chains stores. Get returns the first hit; Set and Remove
//     fan out to every store, except that entries without an expiration are
//     written to the last store only.
//
// # Timeouts
//
// The SQL and Redis backends apply a per-operation timeout
// ([DefaultQueryTimeout], 5 seconds) derived from the caller's context, so
// cancelling the caller's context also cancels the in-flight query.
package cache
