package cache

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// envelope stamps cached payloads with a format version.
type envelope struct {
	Version int                `msgpack:"v"`
	Payload msgpack.RawMessage `msgpack:"p"`
}

// Encode serializes v with msgpack inside a versioned envelope.
func Encode(version int, v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&envelope{Version: version, Payload: payload})
}

// Decode deserializes data produced by Encode into v. A version mismatch or a
// malformed payload yields ErrMiss.
func Decode(data []byte, version int, v any) error {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return ErrMiss
	}
	if env.Version != version {
		return ErrMiss
	}
	dec := msgpack.NewDecoder(bytes.NewReader(env.Payload))
	// Interface values come back as int64, uint64 and float64 regardless of
	// their wire width.
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(v); err != nil {
		return ErrMiss
	}
	return nil
}

// Load reads and decodes a versioned value. Absent, stale or corrupt entries
// and backend failures are all reported as a plain miss.
func Load(ctx context.Context, c Cache, key Key, version int, v any) bool {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	return Decode(data, version, v) == nil
}

// Store encodes and writes a versioned value.
func Store(ctx context.Context, c Cache, key Key, version int, v any, ttl time.Duration, tags ...string) error {
	data, err := Encode(version, v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl, tags...)
}

// Tag derives a stable invalidation tag from structured parts.
func Tag(parts ...any) string {
	sum := md5.Sum([]byte(Key(parts).String()))
	return hex.EncodeToString(sum[:])
}

func fmtKey(k Key) string {
	return fmt.Sprintf("%#v", []any(k))
}
