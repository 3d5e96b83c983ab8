package cachekey

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestEntityKeyRoundTrip(t *testing.T) {
	ids := []any{
		"abc", int(7), int8(-3), int16(300), int32(-70000), int64(1 << 40),
		uint(9), uint8(200), uint16(65000), uint32(1 << 31), uint64(1 << 63),
		true, uuid.MustParse("6f1c0c2c-6a5e-4d3b-9f2e-0a9c1b2d3e4f"),
	}
	for _, id := range ids {
		k, err := ForEntity(id, "Item", "tenant-a")
		if err != nil {
			t.Fatalf("ForEntity(%T): %v", id, err)
		}
		s := k.String()
		if s == "" {
			t.Fatalf("empty storage form for %T", id)
		}
		back, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%T): %v", id, err)
		}
		if back != k {
			t.Fatalf("round trip mismatch for %T: got %+v want %+v", id, back, k)
		}
		if back.ID != id {
			t.Fatalf("identity not recovered: got %#v want %#v", back.ID, id)
		}
	}
}

func TestKeyDeterministic(t *testing.T) {
	a := MustEntity(int64(1), "Item", "")
	b := MustEntity(int64(1), "Item", "")
	if a != b || a.String() != b.String() {
		t.Fatalf("equal identities must give equal keys")
	}

	distinct := []Key{
		MustEntity(int64(2), "Item", ""),
		MustEntity(int64(1), "Order", ""),
		MustEntity(int64(1), "Item", "t1"),
		MustEntity(int32(1), "Item", ""),
	}
	for _, d := range distinct {
		if d == a || d.String() == a.String() {
			t.Fatalf("%+v must differ from %+v", d, a)
		}
	}

	c, err := ForCollection(int64(1), "Item", "")
	if err != nil {
		t.Fatalf("ForCollection: %v", err)
	}
	if c == a || c.String() == a.String() {
		t.Fatalf("collection key must differ from entity key with the same tuple")
	}
}

func TestNaturalIDValues(t *testing.T) {
	k, err := ForNaturalID([]any{"acme", int64(42)}, "Account", "")
	if err != nil {
		t.Fatalf("ForNaturalID: %v", err)
	}
	k2, _ := ForNaturalID([]any{"acme", int64(42)}, "Account", "")
	if k != k2 {
		t.Fatalf("natural id keys should be equal")
	}

	back, err := Parse(k.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	vals, err := NaturalIDValues(back)
	if err != nil {
		t.Fatalf("NaturalIDValues: %v", err)
	}
	if len(vals) != 2 || vals[0] != "acme" || vals[1] != int64(42) {
		t.Fatalf("values: got %#v", vals)
	}
}

func TestInvalidKeys(t *testing.T) {
	cases := []struct {
		name string
		fn   func() error
		want error
	}{
		{"nil id", func() error { _, err := ForEntity(nil, "Item", ""); return err }, ErrInvalidKey},
		{"no type", func() error { _, err := ForEntity(1, "", ""); return err }, ErrInvalidKey},
		{"float id", func() error { _, err := ForEntity(1.5, "Item", ""); return err }, ErrUnsupportedID},
		{"slice id", func() error { _, err := ForCollection([]int{1}, "Item.tags", ""); return err }, ErrUnsupportedID},
		{"empty natural id", func() error { _, err := ForNaturalID(nil, "Account", ""); return err }, ErrInvalidKey},
		{"nil natural value", func() error { _, err := ForNaturalID([]any{nil}, "Account", ""); return err }, ErrInvalidKey},
		{"empty query", func() error { _, err := ForQuery("", "r"); return err }, ErrInvalidKey},
		{"garbage", func() error { _, err := Parse("!!!"); return err }, ErrInvalidKey},
		{"zero key", func() error { _, err := Encode(Key{}); return err }, ErrInvalidKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.fn(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}
}

func TestMustEntityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustEntity(nil, "Item", "")
}
