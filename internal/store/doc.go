// Package store provides user, conversation, and message persistence for
// awaren-server, backed by SQLite.
//
// All conversation and message operations are scoped to the owning user; a
// lookup for a conversation the caller does not own fails with the same
// ErrNotFound as a lookup for one that never existed.
package store
