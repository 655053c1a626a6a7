// Package store implements signing.Store.
//
// Postgres runs each unit of work in a pgx transaction; LockEnvelope takes a row lock
// (SELECT ... FOR UPDATE) so concurrent submissions for one envelope are serialized.
//
// Memory keeps everything in maps guarded by a single mutex held for the whole transaction,
// and restores a snapshot when the transaction function fails. It is used by unit tests and
// by the server when no database is wanted.
package store
