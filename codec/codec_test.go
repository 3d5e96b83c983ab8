package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type user struct {
	ID      int64     `json:"id" msgpack:"id" cbor:"1,keyasint"`
	Name    string    `json:"name" msgpack:"name" cbor:"2,keyasint"`
	Created time.Time `json:"created" msgpack:"created" cbor:"3,keyasint"`
}

func TestStructCodecs(t *testing.T) {
	in := user{ID: 7, Name: "Ada", Created: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cases := []struct {
		name string
		c    Codec[user]
	}{
		{"json", JSON[user]{}},
		{"msgpack", Msgpack[user]{}},
		{"cbor", MustCBOR[user](false)},
		{"cbor-det", MustCBOR[user](true)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.c.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := tc.c.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.ID != in.ID || out.Name != in.Name || !out.Created.Equal(in.Created) {
				t.Fatalf("got %+v want %+v", out, in)
			}
		})
	}
}

func TestCBORDeterministic(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	a, _ := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	b, _ := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic CBOR differs: %x vs %x", a, b)
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("hello"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := c.Decode(b)
	if err != nil || m.GetValue() != "hello" {
		t.Fatalf("Decode: %v %v", m, err)
	}

	var bare Protobuf[*wrapperspb.StringValue]
	if _, err := bare.Decode(b); err == nil {
		t.Fatalf("want error without constructor")
	}
}

func TestLimit(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxEncode: 4, MaxDecode: 3}
	if _, err := c.Encode("hello"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Encode over limit: %v", err)
	}
	if b, err := c.Encode("abcd"); err != nil || string(b) != "abcd" {
		t.Fatalf("Encode: %q %v", b, err)
	}
	if _, err := c.Decode([]byte("abcd")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Decode over limit: %v", err)
	}
	if s, err := c.Decode([]byte("abc")); err != nil || s != "abc" {
		t.Fatalf("Decode: %q %v", s, err)
	}

	open := Limit[string]{Inner: String{}}
	if _, err := open.Decode(bytes.Repeat([]byte("x"), 1<<16)); err != nil {
		t.Fatalf("zero limits must not restrict: %v", err)
	}
}

func TestIdentityCodecs(t *testing.T) {
	in := []byte{0, 1, 2}
	if b, _ := (Bytes{}).Encode(in); !bytes.Equal(b, in) {
		t.Fatalf("Bytes changed input")
	}
	if s, _ := (String{}).Decode([]byte("x")); s != "x" {
		t.Fatalf("String decode: %q", s)
	}
}
