// Package policy holds the pure lockout rules shared by the engine and every
// lockout store.
//
// # Rules
//
//   - [Decide] maps a failure count to none, temporary or permanent.
//   - [Merge] folds a proposal into an already-active lockout: permanent
//     wins, the later end wins, the higher failure count wins.
//
// # What this package must NOT do
//
//   - Perform I/O or read the wall clock.
//   - Import accountsec or any storage backend.
package policy
