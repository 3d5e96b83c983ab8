package regioncache

import "github.com/unkn0wn-root/regioncache/log"

// Aliases so callers can configure logging without importing the log package.
type (
	Logger    = log.Logger
	Fields    = log.Fields
	NopLogger = log.Nop
)
