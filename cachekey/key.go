// Package cachekey derives deterministic cache keys from entity, collection,
// natural-id and query identities, and recovers the identity from a key.
//
// A Key is a comparable value: two keys are == iff they carry the same
// (kind, owning type, tenant, identity) tuple. Key.String is the canonical
// storage form and Parse is its exact inverse.
package cachekey

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Kind uint8

const (
	Entity Kind = iota + 1
	Collection
	NaturalID
	Query
	Timestamp
)

func (k Kind) String() string {
	switch k {
	case Entity:
		return "entity"
	case Collection:
		return "collection"
	case NaturalID:
		return "natural-id"
	case Query:
		return "query"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	ErrInvalidKey    = errors.New("cachekey: invalid key")
	ErrUnsupportedID = errors.New("cachekey: unsupported identifier type")
)

// Key identifies one cached item. Build it with the constructors; the zero Key is invalid.
//
// For NaturalID keys ID holds the canonical encoding of the natural-id values;
// use NaturalIDValues to get them back.
type Key struct {
	Kind   Kind
	Type   string // entity name, collection role, query region or query space
	Tenant string // "" when not multi-tenant
	ID     any
}

// ForEntity builds the key of an entity instance.
func ForEntity(id any, entityName, tenant string) (Key, error) {
	return newScalarKey(Entity, id, entityName, tenant)
}

// ForCollection builds the key of a collection owned by the entity with ownerID.
func ForCollection(ownerID any, role, tenant string) (Key, error) {
	return newScalarKey(Collection, ownerID, role, tenant)
}

// ForNaturalID builds the key of a natural-id resolution. values are the natural-id
// property values in declaration order.
func ForNaturalID(values []any, entityName, tenant string) (Key, error) {
	if entityName == "" || len(values) == 0 {
		return Key{}, fmt.Errorf("%w: natural id of %q needs values and an entity name", ErrInvalidKey, entityName)
	}
	enc, err := encodeValues(values)
	if err != nil {
		return Key{}, err
	}
	return Key{Kind: NaturalID, Type: entityName, Tenant: tenant, ID: enc}, nil
}

// ForQuery builds the key of a cached query result inside a query region.
func ForQuery(queryKey, region string) (Key, error) {
	if queryKey == "" {
		return Key{}, fmt.Errorf("%w: empty query key", ErrInvalidKey)
	}
	return Key{Kind: Query, Type: region, ID: queryKey}, nil
}

// ForSpace builds the key under which the last invalidation of a query space is stored.
func ForSpace(space string) (Key, error) {
	if space == "" {
		return Key{}, fmt.Errorf("%w: empty query space", ErrInvalidKey)
	}
	return Key{Kind: Timestamp, Type: space, ID: space}, nil
}

// MustEntity is like ForEntity but panics on error. Handy in tests.
func MustEntity(id any, entityName, tenant string) Key {
	k, err := ForEntity(id, entityName, tenant)
	if err != nil {
		panic(err)
	}
	return k
}

func newScalarKey(kind Kind, id any, typeName, tenant string) (Key, error) {
	if id == nil {
		return Key{}, fmt.Errorf("%w: nil %s identifier for %q", ErrInvalidKey, kind, typeName)
	}
	if typeName == "" {
		return Key{}, fmt.Errorf("%w: %s key without owning type", ErrInvalidKey, kind)
	}
	if _, ok := tagOf(id); !ok {
		return Key{}, fmt.Errorf("%w: %T", ErrUnsupportedID, id)
	}
	return Key{Kind: kind, Type: typeName, Tenant: tenant, ID: id}, nil
}

// Valid reports whether k was built by one of the constructors (or Parse).
func (k Key) Valid() bool {
	if k.Kind < Entity || k.Kind > Timestamp || k.Type == "" || k.ID == nil {
		return false
	}
	_, ok := tagOf(k.ID)
	return ok
}

// NaturalIDValues decodes the natural-id values of a NaturalID key.
func NaturalIDValues(k Key) ([]any, error) {
	if k.Kind != NaturalID {
		return nil, fmt.Errorf("%w: %s key has no natural id", ErrInvalidKey, k.Kind)
	}
	s, ok := k.ID.(string)
	if !ok {
		return nil, fmt.Errorf("%w: natural id payload is %T", ErrInvalidKey, k.ID)
	}
	return decodeValues(s)
}

// identity tags; part of the storage form, never renumber.
const (
	tagString uint8 = iota + 1
	tagInt
	tagInt8
	tagInt16
	tagInt32
	tagInt64
	tagUint
	tagUint8
	tagUint16
	tagUint32
	tagUint64
	tagBool
	tagUUID
)

func tagOf(id any) (uint8, bool) {
	switch id.(type) {
	case string:
		return tagString, true
	case int:
		return tagInt, true
	case int8:
		return tagInt8, true
	case int16:
		return tagInt16, true
	case int32:
		return tagInt32, true
	case int64:
		return tagInt64, true
	case uint:
		return tagUint, true
	case uint8:
		return tagUint8, true
	case uint16:
		return tagUint16, true
	case uint32:
		return tagUint32, true
	case uint64:
		return tagUint64, true
	case bool:
		return tagBool, true
	case uuid.UUID:
		return tagUUID, true
	default:
		return 0, false
	}
}
