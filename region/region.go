// Package region defines cache regions, the data descriptions attached to them,
// and the factory contract the registry builds regions through.
//
// A Region is a named keyspace in a byte-store provider. It knows nothing about
// consistency; access strategies (package access) layer that on top.
package region

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/regioncache/cachekey"
)

type Kind uint8

const (
	EntityKind Kind = iota + 1
	CollectionKind
	NaturalIDKind
	QueryResultsKind
	TimestampsKind
)

func (k Kind) String() string {
	switch k {
	case EntityKind:
		return "entity"
	case CollectionKind:
		return "collection"
	case NaturalIDKind:
		return "natural-id"
	case QueryResultsKind:
		return "query-results"
	case TimestampsKind:
		return "timestamps"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	ErrNotStarted  = errors.New("region: factory not started")
	ErrUnsupported = errors.New("region: region kind not supported by factory")
	ErrDestroyed   = errors.New("region: region destroyed")
)

// Region is a named container of key -> bytes entries. Keyed lookup is the only
// addressing mode. Implementations must be safe for concurrent use.
type Region interface {
	Name() string
	Kind() Kind
	// Description is the data description the region was built with
	// (zero for query-results and timestamps regions).
	Description() Description

	Contains(ctx context.Context, key cachekey.Key) (bool, error)
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key cachekey.Key) ([]byte, bool, error)
	Put(ctx context.Context, key cachekey.Key, value []byte) error
	Remove(ctx context.Context, key cachekey.Key) error
	// Clear drops every entry of the region.
	Clear(ctx context.Context) error
	// Destroy releases the region; later calls fail with ErrDestroyed.
	Destroy(ctx context.Context) error

	// Timeout is the soft lock lifetime for this region in timestamp ticks
	// (0 = locks never expire).
	Timeout() int64
}

// AccessType names a concurrency policy.
type AccessType string

const (
	ReadOnly           AccessType = "read-only"
	NonstrictReadWrite AccessType = "nonstrict-read-write"
	ReadWrite          AccessType = "read-write"
	Transactional      AccessType = "transactional"
)

// ParseAccessType accepts the external names ("read-write", "READ_WRITE", ...).
func ParseAccessType(s string) (AccessType, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	switch AccessType(norm) {
	case ReadOnly, NonstrictReadWrite, ReadWrite, Transactional:
		return AccessType(norm), nil
	}
	return "", fmt.Errorf("region: unknown access type %q", s)
}
