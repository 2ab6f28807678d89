// Package uuid generates the random v4 ids that name connections in logs
// and traces.
package uuid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"
)

type UUID [16]byte

var fallback atomic.Uint64

// NewV4 returns a random version 4 id. If the system random source fails
// the id is built from the clock and a process-wide sequence instead, so
// it is still unique within the process.
func NewV4() UUID {
	var uuid UUID

	if _, err := rand.Read(uuid[:]); err != nil {
		binary.BigEndian.PutUint64(uuid[:8], uint64(time.Now().UnixNano()))
		binary.BigEndian.PutUint64(uuid[8:], fallback.Add(1))
	}

	uuid[6] = (uuid[6] & 0x0f) | 0x40 // Version 4
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // Variant is 10

	return uuid
}

func (uuid UUID) IsZero() bool {
	return uuid == UUID{}
}

func (uuid UUID) String() string {
	var buf [36]byte

	hex.Encode(buf[:], uuid[:4])
	buf[8] = '-'
	hex.Encode(buf[9:13], uuid[4:6])
	buf[13] = '-'
	hex.Encode(buf[14:18], uuid[6:8])
	buf[18] = '-'
	hex.Encode(buf[19:23], uuid[8:10])
	buf[23] = '-'
	hex.Encode(buf[24:], uuid[10:])

	return string(buf[:])
}

// LogValue renders the id in its canonical form in structured logs.
func (uuid UUID) LogValue() slog.Value {
	return slog.StringValue(uuid.String())
}

func (uuid UUID) Version() byte {
	return uuid[6] >> 4
}
