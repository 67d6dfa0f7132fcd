// Package store defines the records and storage contracts of the account
// security engine.
//
// # Records
//
// Every record is a plain value struct that references its account by an
// opaque AccountID. Records never embed the account itself and never point
// at each other.
//
// # Contracts
//
// Each interface ([AttemptStore], [LockoutStore], [SessionStore],
// [ResetTokenStore], [InvitationStore], [CredentialStore]) names the
// conditional operations the engine relies on for correctness. In particular
// [LockoutStore.CreateOrExtend], [ResetTokenStore.Redeem] and
// [InvitationStore.Accept] must be atomic per natural key.
//
// Absence is reported through a found flag or a [RedeemOutcome], never through
// an error. Errors are reserved for backend failures, wrapped with
// [ErrUnavailable], and for lost races, reported as [ErrConflict].
//
// # What this package must NOT do
//
//   - Import the engine or any backend package.
//   - Read the wall clock. Every time-dependent call receives now.
package store
