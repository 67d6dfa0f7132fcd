// Package memory implements every store contract in process memory.
//
// Account-keyed state (attempts, lockouts, credentials) is split across
// striped shards so that operations on different accounts never contend on a
// shared lock. Token-keyed stores hold a single mutex per store because each
// record is reachable through two indexes.
//
// The package is intended for tests, single-process deployments and the
// sweeper's demo mode. Nothing is persisted.
package memory

import "time"

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
