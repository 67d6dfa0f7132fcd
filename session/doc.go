// Package session provides Redis-backed session persistence and a compact
// binary session encoding.
//
// # Binary encoding
//
// Sessions are stored as a versioned binary record. The encoder is
// append-only: new versions add fields but never reinterpret old ones.
//
// # Key layout
//
//	{prefix}:sess:{id}          encoded session
//	{prefix}:sess:tok:{hash}    session ID for a token hash
//	{prefix}:sess:acct:{id}     set of session IDs per account
//	{prefix}:sess:exp           zset of session IDs by expiry
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the record encoding. It
// does NOT issue tokens, decide session lifetimes, or validate sessions
// against a clock; those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import accountsec (no upward imports).
//   - Store plaintext bearer tokens.
package session
