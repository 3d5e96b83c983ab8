// Package memory is a map-backed provider. It has no eviction beyond TTLs and
// suits tests and small single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/regioncache/provider"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Provider struct {
	mu  sync.RWMutex
	m   map[string]entry
	now func() time.Time

	// Reject, if set, makes Set report ok=false for matching keys.
	Reject func(key string) bool
}

var _ pr.Provider = (*Provider)(nil)

func New() *Provider { return NewWithClock(time.Now) }

func NewWithClock(now func() time.Time) *Provider {
	return &Provider{m: make(map[string]entry), now: now}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	e, ok := p.m[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && p.now().After(e.exp) {
		p.mu.Lock()
		if cur, ok := p.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(p.m, key)
		}
		p.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if p.Reject != nil && p.Reject(key) {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = p.now().Add(ttl)
	}
	b := make([]byte, len(value))
	copy(b, value)
	p.mu.Lock()
	p.m[key] = entry{v: b, exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *Provider) Close(context.Context) error { return nil }

// Len returns the number of stored entries, expired ones included.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

// Raw returns the stored bytes of key without TTL checks.
func (p *Provider) Raw(key string) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.m[key]
	return e.v, ok
}

// Put stores raw bytes under key, bypassing Reject. Useful to plant foreign data.
func (p *Provider) Put(key string, value []byte) {
	p.mu.Lock()
	p.m[key] = entry{v: value}
	p.mu.Unlock()
}
