package regioncache

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/unkn0wn-root/regioncache/region"
)

var (
	ErrNilRegionName      = errors.New("regioncache: region name cannot be empty (use EvictDefaultQueryRegion for the default query cache)")
	ErrClosed             = errors.New("regioncache: registry closed")
	ErrQueryCacheDisabled = errors.New("regioncache: query cache disabled")
	ErrNoFactory          = errors.New("regioncache: region factory is required")
)

// IncompatibleRegionError is returned when a region is requested with a data
// description that differs from the one it was built with. Regions are never
// shared across differing descriptions.
type IncompatibleRegionError struct {
	Region    string
	Field     string
	Existing  region.Description
	Requested region.Description
}

func (e *IncompatibleRegionError) Error() string {
	return fmt.Sprintf("regioncache: incompatible cache data cannot share region %q (%s differs: %s & %s)",
		e.Region, e.Field, e.Existing, e.Requested)
}

// CloseError collects what failed while closing a Registry.
// Every region is still destroyed and the factory stopped.
type CloseError struct {
	DestroyErrs map[string]error // by region name
	StopErr     error
}

func (e *CloseError) Error() string {
	names := make([]string, 0, len(e.DestroyErrs))
	for n := range e.DestroyErrs {
		names = append(names, n)
	}
	sort.Strings(names)
	switch {
	case len(names) > 0 && e.StopErr != nil:
		return fmt.Sprintf("regioncache: close: destroy failed for %s; factory stop: %v",
			strings.Join(names, ", "), e.StopErr)
	case len(names) > 0:
		return fmt.Sprintf("regioncache: close: destroy failed for %s", strings.Join(names, ", "))
	case e.StopErr != nil:
		return fmt.Sprintf("regioncache: close: factory stop: %v", e.StopErr)
	default:
		return "regioncache: close: unknown error"
	}
}

func (e *CloseError) Unwrap() []error {
	errs := make([]error, 0, len(e.DestroyErrs)+1)
	for _, err := range e.DestroyErrs {
		errs = append(errs, err)
	}
	if e.StopErr != nil {
		errs = append(errs, e.StopErr)
	}
	return errs
}
