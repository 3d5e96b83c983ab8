package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func mustEncode(t *testing.T, epoch uint64, p []byte) []byte {
	t.Helper()
	b, err := EncodeEntry(epoch, p)
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}
	return b
}

func TestEntryEmptyAndNonEmpty(t *testing.T) {
	cases := []struct {
		epoch   uint64
		payload []byte
	}{
		{0, nil},
		{42, []byte("hello")},
		{math.MaxUint64, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		epoch, p, err := DecodeEntry(mustEncode(t, tc.epoch, tc.payload))
		if err != nil {
			t.Fatalf("DecodeEntry: %v", err)
		}
		if epoch != tc.epoch {
			t.Fatalf("epoch mismatch: got %d want %d", epoch, tc.epoch)
		}
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
	}
}

func TestEntryCorruptFrames(t *testing.T) {
	enc := mustEncode(t, 1, []byte("abc"))

	mutate := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), enc...))
	}
	cases := map[string][]byte{
		"bad magic":    mutate(func(b []byte) []byte { b[0] = 'X'; return b }),
		"bad version":  mutate(func(b []byte) []byte { b[4] = version + 1; return b }),
		"bad kind":     mutate(func(b []byte) []byte { b[5] = 9; return b }),
		"trailing":     mutate(func(b []byte) []byte { return append(b, 0xDE, 0xAD) }),
		"truncated":    mutate(func(b []byte) []byte { return b[:len(b)-1] }),
		"short header": mutate(func(b []byte) []byte { return b[:headerLen-1] }),
		"vlen too large": mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[14:18], 1000)
			return b
		}),
		"foreign bytes": []byte("not-a-frame"),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := DecodeEntry(b); err != ErrCorrupt {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}
