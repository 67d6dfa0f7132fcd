package redisstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/accountsec/store"
)

const (
	maxRetries    = 4
	recordVersion = 1
)

var errBadRecord = errors.New("redisstore: malformed record")

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func micros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func hashKey(h store.TokenHash) string {
	return hex.EncodeToString(h[:])
}

// isTxConflict reports a WATCH abort that should be retried.
func isTxConflict(err error) bool {
	return errors.Is(err, redis.TxFailedErr)
}

type encoder struct {
	buf bytes.Buffer
	err error
}

func newEncoder() *encoder {
	e := &encoder{}
	e.buf.WriteByte(recordVersion)
	return e
}

func (e *encoder) u8(v uint8) { e.buf.WriteByte(v) }

func (e *encoder) i64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
}

func (e *encoder) str(s string) {
	if len(s) > 0xffff {
		e.err = errors.New("redisstore: field too long")
		return
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	e.buf.Write(b[:])
	e.buf.WriteString(s)
}

func (e *encoder) time(t time.Time) { e.i64(micros(t)) }

func (e *encoder) optTime(t *time.Time) {
	if t == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.time(*t)
}

func (e *encoder) bytes() ([]byte, error) {
	return e.buf.Bytes(), e.err
}

type decoder struct {
	r   *bytes.Reader
	err error
}

func newDecoder(data []byte) *decoder {
	d := &decoder{r: bytes.NewReader(data)}
	v, err := d.r.ReadByte()
	if err != nil || v != recordVersion {
		d.err = errBadRecord
	}
	return d
}

func (d *decoder) u8() uint8 {
	if d.err != nil {
		return 0
	}
	v, err := d.r.ReadByte()
	if err != nil {
		d.err = errBadRecord
	}
	return v
}

func (d *decoder) i64() int64 {
	if d.err != nil {
		return 0
	}
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.err = errBadRecord
		return 0
	}
	return int64(binary.BigEndian.Uint64(b[:]))
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	var b [2]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.err = errBadRecord
		return ""
	}
	out := make([]byte, binary.BigEndian.Uint16(b[:]))
	if _, err := io.ReadFull(d.r, out); err != nil {
		d.err = errBadRecord
		return ""
	}
	return string(out)
}

func (d *decoder) time() time.Time { return fromMicros(d.i64()) }

func (d *decoder) optTime() *time.Time {
	if d.u8() == 0 || d.err != nil {
		return nil
	}
	t := d.time()
	return &t
}

func (d *decoder) hash() store.TokenHash {
	var h store.TokenHash
	if d.err != nil {
		return h
	}
	if _, err := io.ReadFull(d.r, h[:]); err != nil {
		d.err = errBadRecord
	}
	return h
}

func (d *decoder) done() error {
	if d.err == nil && d.r.Len() != 0 {
		return errBadRecord
	}
	return d.err
}

// watch runs fn in a WATCH transaction on keys, retrying when another client
// touched them first. Errors other than contention are returned unwrapped.
func watch(ctx context.Context, client redis.UniversalClient, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxRetries; i++ {
		err := client.Watch(ctx, fn, keys...)
		if isTxConflict(err) {
			continue
		}
		return err
	}
	return store.ErrConflict
}

// wrap maps backend errors to store.ErrUnavailable, leaving store sentinels
// and decode failures intact.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, errBadRecord):
		return err
	}
	return unavailable(err)
}

// getter is satisfied by clients and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}
