package password

import (
	"errors"
	"strings"
)

var (
	// ErrMalformedHash reports a stored hash that cannot be parsed.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrUnsupportedHash reports a stored hash no configured hasher understands.
	ErrUnsupportedHash = errors.New("password: unsupported hash algorithm")
)

// Hasher produces and checks encoded password hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	// Recognizes reports whether encodedHash was produced by this algorithm.
	Recognizes(encodedHash string) bool
}

// Multi hashes with a primary hasher and verifies with whichever hasher
// recognizes the stored hash.
type Multi struct {
	primary Hasher
	legacy  []Hasher
}

// NewMulti returns a Multi that writes with primary and also accepts hashes
// from legacy.
func NewMulti(primary Hasher, legacy ...Hasher) *Multi {
	return &Multi{primary: primary, legacy: legacy}
}

func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

func (m *Multi) Recognizes(encodedHash string) bool {
	return m.pick(encodedHash) != nil
}

func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	h := m.pick(encodedHash)
	if h == nil {
		return false, ErrUnsupportedHash
	}
	return h.Verify(password, encodedHash)
}

// NeedsRehash reports whether encodedHash should be replaced by a fresh
// primary hash: it is either from a legacy algorithm or from weaker
// primary parameters.
func (m *Multi) NeedsRehash(encodedHash string) bool {
	if !m.primary.Recognizes(encodedHash) {
		return true
	}
	if a, ok := m.primary.(*Argon2); ok {
		weaker, err := a.NeedsUpgrade(encodedHash)
		return err == nil && weaker
	}
	return false
}

func (m *Multi) pick(encodedHash string) Hasher {
	if m.primary.Recognizes(encodedHash) {
		return m.primary
	}
	for _, h := range m.legacy {
		if h.Recognizes(encodedHash) {
			return h
		}
	}
	return nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
