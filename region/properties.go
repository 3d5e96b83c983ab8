package region

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Properties are string settings handed to Factory.Start and Build*Region.
// A region-scoped entry "region.<name>.<key>" overrides the global "<key>".
type Properties map[string]string

// Lookup returns the value of key for the named region.
func (p Properties) Lookup(regionName, key string) (string, bool) {
	if p == nil {
		return "", false
	}
	if regionName != "" {
		if v, ok := p["region."+regionName+"."+key]; ok {
			return strings.TrimSpace(v), true
		}
	}
	v, ok := p[key]
	return strings.TrimSpace(v), ok
}

// Duration parses key as a time.Duration ("90s", "10m"); bare integers are seconds.
func (p Properties) Duration(regionName, key string, def time.Duration) (time.Duration, error) {
	v, ok := p.Lookup(regionName, key)
	if !ok || v == "" {
		return def, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("region: property %q: %w", key, err)
	}
	return d, nil
}

// Bool parses key with strconv.ParseBool.
func (p Properties) Bool(regionName, key string, def bool) (bool, error) {
	v, ok := p.Lookup(regionName, key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("region: property %q: %w", key, err)
	}
	return b, nil
}

// Merge returns a copy of p with o's entries layered on top.
func (p Properties) Merge(o Properties) Properties {
	out := make(Properties, len(p)+len(o))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}
