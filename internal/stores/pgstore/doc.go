// Package pgstore implements the credential and login-attempt stores on
// PostgreSQL through pgx, with statements built by squirrel.
//
// The schema lives in the migrations package. Backend failures are wrapped
// with store.ErrUnavailable.
//
// # What this package must NOT do
//
//   - Import accountsec or make lockout decisions.
//   - Run migrations implicitly.
package pgstore
