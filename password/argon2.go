package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	argon2Prefix          = "$argon2id$"

	// MaxPasswordBytes bounds the input to the key derivation.
	MaxPasswordBytes = 1024
)

// ErrTooLong reports a password above MaxPasswordBytes.
var ErrTooLong = errors.New("password: input exceeds maximum length")

// Argon2Params are the Argon2id cost parameters. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params follows the OWASP baseline for interactive logins.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

// Validate rejects parameters below the supported floor.
func (p Argon2Params) Validate() error {
	switch {
	case p.Memory < minMemoryKB:
		return errors.New("password: argon2 memory must be >= 8192 KiB")
	case p.Time < minTimeCost:
		return errors.New("password: argon2 time must be >= 1")
	case p.Parallelism < minParallelism:
		return errors.New("password: argon2 parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return errors.New("password: argon2 salt length must be >= 16")
	case p.KeyLength < minKeyLength:
		return errors.New("password: argon2 key length must be >= 16")
	}
	return nil
}

// Argon2 is the default [Hasher].
type Argon2 struct {
	params Argon2Params
}

func NewArgon2(p Argon2Params) (*Argon2, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Argon2{params: p}, nil
}

// Hash hashes the raw bytes of password. No Unicode normalization is applied.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrTooLong
	}
	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)
	return encodePHC(phc{
		memory:      a.params.Memory,
		time:        a.params.Time,
		parallelism: a.params.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > MaxPasswordBytes {
		return false, ErrTooLong
	}
	parsed, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

func (a *Argon2) Recognizes(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, argon2Prefix)
}

// NeedsUpgrade reports whether encodedHash used weaker parameters than a.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return a.params.Memory > parsed.memory ||
		a.params.Time > parsed.time ||
		a.params.Parallelism > parsed.parallelism ||
		a.params.KeyLength != uint32(len(parsed.key)), nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func encodePHC(p phc) string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

// decodeB64 accepts both padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func decodePHC(encoded string) (phc, error) {
	var out phc
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return out, ErrMalformedHash
	}
	if parts[1] != "argon2id" {
		return out, ErrUnsupportedHash
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return out, ErrMalformedHash
	}
	if version != argon2.Version {
		return out, ErrUnsupportedHash
	}
	if err := parseParams(parts[3], &out); err != nil {
		return out, err
	}
	if out.salt, err = decodeB64(parts[4]); err != nil || len(out.salt) < int(minSaltLength) {
		return out, ErrMalformedHash
	}
	if out.key, err = decodeB64(parts[5]); err != nil || len(out.key) == 0 {
		return out, ErrMalformedHash
	}
	return out, nil
}

func parseParams(s string, out *phc) error {
	var seen int
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return ErrMalformedHash
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minMemoryKB) {
				return ErrMalformedHash
			}
			out.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minTimeCost) {
				return ErrMalformedHash
			}
			out.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < uint64(minParallelism) {
				return ErrMalformedHash
			}
			out.parallelism = uint8(n)
		default:
			return ErrMalformedHash
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return ErrMalformedHash
	}
	return nil
}
