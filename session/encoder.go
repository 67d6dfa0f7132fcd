package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/accountsec/store"
)

const sessionFormatVersionCurrent = 1

// ErrSessionCorrupt is returned when a stored session blob cannot be decoded.
var ErrSessionCorrupt = errors.New("session record corrupt")

// Encode serializes s in the current format.
func Encode(s store.Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	for _, field := range []string{s.ID, s.AccountID, s.SourceAddress, s.UserAgent} {
		if len(field) > 0xffff {
			return nil, errors.New("session field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	buf.Write(s.TokenHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMicro()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt.UnixMicro()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob written by [Encode].
func Decode(data []byte) (store.Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return store.Session{}, ErrSessionCorrupt
	}
	if version != sessionFormatVersionCurrent {
		return store.Session{}, ErrSessionCorrupt
	}

	var fields [4]string
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return store.Session{}, ErrSessionCorrupt
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return store.Session{}, ErrSessionCorrupt
		}
		fields[i] = string(b)
	}

	s := store.Session{
		ID:            fields[0],
		AccountID:     fields[1],
		SourceAddress: fields[2],
		UserAgent:     fields[3],
	}
	if _, err := io.ReadFull(reader, s.TokenHash[:]); err != nil {
		return store.Session{}, ErrSessionCorrupt
	}

	var created, expires int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return store.Session{}, ErrSessionCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return store.Session{}, ErrSessionCorrupt
	}
	if reader.Len() != 0 {
		return store.Session{}, ErrSessionCorrupt
	}
	s.CreatedAt = time.UnixMicro(created).UTC()
	s.ExpiresAt = time.UnixMicro(expires).UTC()

	return s, nil
}
