// Package tokens generates opaque bearer tokens and record identifiers.
//
// A token is 32 bytes from crypto/rand encoded as unpadded base64url. Only the
// SHA-256 digest of the raw bytes is ever persisted.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"

	"github.com/MrEthical07/accountsec/store"
)

// Size is the number of random bytes in a token (256 bits).
const Size = 32

var errTokenSize = errors.New("tokens: invalid token size")

// New returns a fresh token and its digest.
func New() (string, store.TokenHash, error) {
	var raw [Size]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", store.TokenHash{}, err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), sha256.Sum256(raw[:]), nil
}

// Hash decodes token and returns its digest. Malformed tokens return an
// error; callers treat them as unknown.
func Hash(token string) (store.TokenHash, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return store.TokenHash{}, err
	}
	if len(raw) != Size {
		return store.TokenHash{}, errTokenSize
	}
	return sha256.Sum256(raw), nil
}

// NewID returns a random UUIDv4 string used as a record identifier.
func NewID() string {
	return uuid.NewString()
}
