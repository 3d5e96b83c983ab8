package regioncache

import (
	"github.com/unkn0wn-root/regioncache/hooks"
	"github.com/unkn0wn-root/regioncache/region"
	"github.com/unkn0wn-root/regioncache/softlock"
)

const (
	// TimestampsRegionName is the unqualified name of the update timestamps region.
	TimestampsRegionName = "update-timestamps"
	// DefaultQueryRegionName is the unqualified name of the default query cache region.
	DefaultQueryRegionName = "default-query-results"
)

// Options configure a Registry. Only Factory is required.
type Options struct {
	Factory region.Factory

	// RegionPrefix namespaces every region name as "<prefix>.<name>".
	RegionPrefix string
	// Properties are passed to Factory.Start and every Build*Region call.
	Properties region.Properties

	QueryCacheEnabled bool
	// Disabled turns second-level caching off: Determine* bind nothing.
	Disabled bool

	// Locks tune the soft lock table of each read-write region. A zero Timeout
	// takes the region's own timeout.
	Locks softlock.Options

	Logger Logger      // if nil, NopLogger is used
	Hooks  hooks.Hooks // if nil, hooks.Nop is used
}

// EntityModel describes how an entity type is cached.
type EntityModel struct {
	Name string
	// Region is the unqualified cache region; "" uses Name.
	Region string
	// Access is the concurrency strategy ("read-write", ...); "" disables caching.
	Access      string
	Description region.Description
	// NaturalIDRegion enables natural-id caching in the named region.
	NaturalIDRegion string
}

// CollectionModel describes how a collection role is cached.
type CollectionModel struct {
	Role        string
	Region      string // "" uses Role
	Access      string // "" disables caching
	Description region.Description
}
