// Package accountsec is an account security engine: it records login
// attempts, locks accounts after repeated failures, issues and revokes
// sessions, manages single-use password reset and invitation tokens, and
// keeps password history.
//
// The engine is built with [New] and is safe for concurrent use afterwards.
// Persistence is delegated to the contracts in package store, with in-memory,
// Redis and PostgreSQL implementations selected by the [Builder].
//
// # Architecture boundaries
//
// accountsec is the public surface. It exposes [Engine], [Builder], [Config],
// errors and value types. Storage backends, token generation, the lockout
// policy and audit dispatch live under internal/.
//
// # What this package must NOT do
//
//   - Own account data. Identifiers and status belong to the [IdentityProvider].
//   - Persist plaintext tokens or passwords.
//   - Retry storage failures. They are wrapped in [ErrStorageUnavailable] and returned.
package accountsec
