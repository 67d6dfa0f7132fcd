// Package password hashes, verifies and grades passwords.
//
// # Hash formats
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt hashes ($2a$, $2b$, $2y$) are verified so that credentials imported
// from older systems keep working. [Multi] routes each stored hash to the
// hasher that produced it, and [Multi.NeedsRehash] reports hashes that should
// be replaced on the next successful login.
//
// # Strength
//
// [Policy] enforces a minimum length and an optional minimum zxcvbn score.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import accountsec.
//   - Log plaintext passwords.
package password
