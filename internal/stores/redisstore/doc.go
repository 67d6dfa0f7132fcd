// Package redisstore implements the attempt, lockout, reset token and
// invitation stores on Redis.
//
// # Design
//
// Records are versioned binary blobs or small hashes under a configurable key
// prefix. Conditional writes are WATCH/MULTI optimistic transactions retried
// up to maxRetries times on contention; a transaction that keeps losing
// returns store.ErrConflict. Backend failures are wrapped with
// store.ErrUnavailable.
//
// Times are stored as Unix microseconds.
//
// # What this package must NOT do
//
//   - Import accountsec or apply lockout policy beyond the shared merge rule.
//   - Store plaintext tokens.
package redisstore
