// Package wire frames region entries for byte-store providers.
//
//	magic(4) | ver(1) | kind(1) | epoch(u64 be) | vlen(u32 be) | payload(vlen)
//
// Decoding is strict: wrong magic, version, kind, truncated or trailing bytes
// are all reported as ErrCorrupt so the region can self-heal the entry.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const (
	version   byte = 1
	kindEntry byte = 1

	headerLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt  = errors.New("regioncache: corrupt entry")
	ErrTooLarge = errors.New("regioncache: entry payload too large")
	magic4      = [...]byte{'R', 'G', 'N', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeEntry frames payload with the region epoch it was written under.
func EncodeEntry(epoch uint64, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, ErrTooLarge
	}
	out := make([]byte, headerLen+len(payload))
	copy(out, magic4[:])
	out[4] = version
	out[5] = kindEntry
	binary.BigEndian.PutUint64(out[6:14], epoch)
	binary.BigEndian.PutUint32(out[14:18], uint32(len(payload)))
	copy(out[headerLen:], payload)
	return out, nil
}

// DecodeEntry returns the epoch and payload of a frame. payload aliases b.
func DecodeEntry(b []byte) (epoch uint64, payload []byte, err error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return 0, nil, ErrCorrupt
	}
	epoch = binary.BigEndian.Uint64(b[6:14])
	vlen := uint64(binary.BigEndian.Uint32(b[14:18]))
	if vlen != uint64(len(b)-headerLen) {
		return 0, nil, ErrCorrupt
	}
	return epoch, b[headerLen:], nil
}
