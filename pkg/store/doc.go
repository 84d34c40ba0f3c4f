/*
Package store owns the per-repository relational database: block rows,
snapshot root/inner/leaf node rows, and a small metadata key/value table.

A key-value store (this project also uses bbolt, in pkg/localstate, for
the device/config store) cannot express the cascading delete the index
relies on: removing a root node must remove every inner and leaf node
reachable only from it, and a subtree's hash may be shared by more than one
parent because the Merkle tree deduplicates identical content. That can't be
expressed as a plain bucket delete, so this package uses modernc.org/sqlite
(a pure-Go SQLite driver, no cgo) through database/sql, with the cascade
implemented as AFTER DELETE triggers rather than declarative foreign keys,
since the parent/child relationship is a hash match, not a single-parent id.

Store.Open accepts config.Config: when cfg.Temp is set the database lives
entirely in memory (the ":memory:" DSN), matching the "use in-memory DBs"
testing mode from the external interfaces.
*/
package store
