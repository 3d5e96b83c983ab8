package cachekey

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Storage form: base64url(CBOR core deterministic [kind, type, tenant, tag, id]).
// Deterministic encoding makes equal keys produce byte-identical strings.

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
	b64     = base64.RawURLEncoding
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

type wireKey struct {
	_      struct{} `cbor:",toarray"`
	Kind   uint8
	Type   string
	Tenant string
	Tag    uint8
	ID     cbor.RawMessage
}

type wireValue struct {
	_   struct{} `cbor:",toarray"`
	Tag uint8
	ID  cbor.RawMessage
}

// Encode returns the canonical storage form of k.
func Encode(k Key) (string, error) {
	if !k.Valid() {
		return "", fmt.Errorf("%w: %+v", ErrInvalidKey, k)
	}
	tag, raw, err := encodeID(k.ID)
	if err != nil {
		return "", err
	}
	b, err := encMode.Marshal(wireKey{
		Kind:   uint8(k.Kind),
		Type:   k.Type,
		Tenant: k.Tenant,
		Tag:    tag,
		ID:     raw,
	})
	if err != nil {
		return "", fmt.Errorf("cachekey: encode: %w", err)
	}
	return b64.EncodeToString(b), nil
}

// String returns the storage form, or "" for an invalid key.
func (k Key) String() string {
	s, err := Encode(k)
	if err != nil {
		return ""
	}
	return s
}

// Parse is the inverse of Encode.
func Parse(s string) (Key, error) {
	b, err := b64.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	var w wireKey
	if err := decMode.Unmarshal(b, &w); err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	id, err := decodeID(w.Tag, w.ID)
	if err != nil {
		return Key{}, err
	}
	k := Key{Kind: Kind(w.Kind), Type: w.Type, Tenant: w.Tenant, ID: id}
	if !k.Valid() {
		return Key{}, fmt.Errorf("%w: decoded %+v", ErrInvalidKey, k)
	}
	return k, nil
}

func encodeID(id any) (uint8, cbor.RawMessage, error) {
	tag, ok := tagOf(id)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %T", ErrUnsupportedID, id)
	}
	var v any
	switch x := id.(type) {
	case int:
		v = int64(x)
	case int8:
		v = int64(x)
	case int16:
		v = int64(x)
	case int32:
		v = int64(x)
	case uint:
		v = uint64(x)
	case uint8:
		v = uint64(x)
	case uint16:
		v = uint64(x)
	case uint32:
		v = uint64(x)
	case uuid.UUID:
		v = x[:]
	default:
		v = x
	}
	raw, err := encMode.Marshal(v)
	if err != nil {
		return 0, nil, fmt.Errorf("cachekey: encode id: %w", err)
	}
	return tag, raw, nil
}

func decodeID(tag uint8, raw cbor.RawMessage) (any, error) {
	switch tag {
	case tagString:
		var s string
		err := decMode.Unmarshal(raw, &s)
		return s, wrapDecode(err)
	case tagBool:
		var b bool
		err := decMode.Unmarshal(raw, &b)
		return b, wrapDecode(err)
	case tagUUID:
		var b []byte
		if err := decMode.Unmarshal(raw, &b); err != nil {
			return nil, wrapDecode(err)
		}
		u, err := uuid.FromBytes(b)
		return u, wrapDecode(err)
	case tagInt, tagInt8, tagInt16, tagInt32, tagInt64:
		var n int64
		if err := decMode.Unmarshal(raw, &n); err != nil {
			return nil, wrapDecode(err)
		}
		return narrowInt(tag, n)
	case tagUint, tagUint8, tagUint16, tagUint32, tagUint64:
		var n uint64
		if err := decMode.Unmarshal(raw, &n); err != nil {
			return nil, wrapDecode(err)
		}
		return narrowUint(tag, n)
	default:
		return nil, fmt.Errorf("%w: unknown identifier tag %d", ErrInvalidKey, tag)
	}
}

func narrowInt(tag uint8, n int64) (any, error) {
	var v any
	switch tag {
	case tagInt:
		v = int(n)
		if int64(v.(int)) != n {
			return nil, fmt.Errorf("%w: %d overflows int", ErrInvalidKey, n)
		}
	case tagInt8:
		v = int8(n)
		if int64(v.(int8)) != n {
			return nil, fmt.Errorf("%w: %d overflows int8", ErrInvalidKey, n)
		}
	case tagInt16:
		v = int16(n)
		if int64(v.(int16)) != n {
			return nil, fmt.Errorf("%w: %d overflows int16", ErrInvalidKey, n)
		}
	case tagInt32:
		v = int32(n)
		if int64(v.(int32)) != n {
			return nil, fmt.Errorf("%w: %d overflows int32", ErrInvalidKey, n)
		}
	default:
		v = n
	}
	return v, nil
}

func narrowUint(tag uint8, n uint64) (any, error) {
	var v any
	switch tag {
	case tagUint:
		v = uint(n)
		if uint64(v.(uint)) != n {
			return nil, fmt.Errorf("%w: %d overflows uint", ErrInvalidKey, n)
		}
	case tagUint8:
		v = uint8(n)
		if uint64(v.(uint8)) != n {
			return nil, fmt.Errorf("%w: %d overflows uint8", ErrInvalidKey, n)
		}
	case tagUint16:
		v = uint16(n)
		if uint64(v.(uint16)) != n {
			return nil, fmt.Errorf("%w: %d overflows uint16", ErrInvalidKey, n)
		}
	case tagUint32:
		v = uint32(n)
		if uint64(v.(uint32)) != n {
			return nil, fmt.Errorf("%w: %d overflows uint32", ErrInvalidKey, n)
		}
	default:
		v = n
	}
	return v, nil
}

func wrapDecode(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidKey, err)
}

func encodeValues(values []any) (string, error) {
	ws := make([]wireValue, 0, len(values))
	for i, v := range values {
		if v == nil {
			return "", fmt.Errorf("%w: natural id value %d is nil", ErrInvalidKey, i)
		}
		tag, raw, err := encodeID(v)
		if err != nil {
			return "", err
		}
		ws = append(ws, wireValue{Tag: tag, ID: raw})
	}
	b, err := encMode.Marshal(ws)
	if err != nil {
		return "", fmt.Errorf("cachekey: encode natural id: %w", err)
	}
	return b64.EncodeToString(b), nil
}

func decodeValues(s string) ([]any, error) {
	b, err := b64.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	var ws []wireValue
	if err := decMode.Unmarshal(b, &ws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	out := make([]any, 0, len(ws))
	for _, w := range ws {
		v, err := decodeID(w.Tag, w.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
