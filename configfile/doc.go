// Package configfile loads engine and backend settings from a YAML file and
// ACCOUNTSEC_* environment variables.
//
// Defaults come from [accountsec.DefaultConfig], so an empty file yields the
// same engine as the zero-argument builder.
//
// # What this package must NOT do
//
//   - Open backend connections.
//   - Build an engine.
package configfile
