// Package dnscache provides a thread-safe, TTL-based cache for the DNS
// lookups a probe needs (MX, TXT, host), with singleflight deduplication of
// concurrent lookups for the same name and an optional shared second level.
package dnscache

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// Resolver is the subset of *net.Resolver the cache needs.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Answer is the cached outcome of one lookup. Err is the text of the lookup
// error, empty on success.
type Answer struct {
	MX       []*net.MX `json:"mx,omitempty"`
	TXT      []string  `json:"txt,omitempty"`
	Hosts    []string  `json:"hosts,omitempty"`
	Err      string    `json:"err,omitempty"`
	NotFound bool      `json:"notFound,omitempty"`
	Timeout  bool      `json:"timeout,omitempty"`
}

// Store is a second-level cache shared between processes.
type Store interface {
	Get(ctx context.Context, key string) (Answer, bool, error)
	Set(ctx context.Context, key string, a Answer, ttl time.Duration) error
}

type kind string

const (
	kindMX   kind = "mx"
	kindTXT  kind = "txt"
	kindHost kind = "host"
)

// Cache deduplicates concurrent lookups for the same name: only one query
// is in flight per key and all waiters receive its result. With a zero TTL
// nothing is reused once the lookup completes.
type Cache struct {
	mu            sync.Mutex
	entries       map[string]*entry
	cacheTTL      time.Duration
	lookupTimeout time.Duration
	resolver      Resolver
	store         Store
}

type entry struct {
	answer  Answer
	err     error
	expires time.Time
	done    chan struct{} // closed when lookup is complete
}

// New creates a cache backed by the system resolver.
func New(lookupTimeout, cacheTTL time.Duration) *Cache {
	return NewWithResolver(lookupTimeout, cacheTTL, &net.Resolver{})
}

// NewWithResolver creates a cache backed by r.
func NewWithResolver(lookupTimeout, cacheTTL time.Duration, r Resolver) *Cache {
	return &Cache{
		entries:       make(map[string]*entry),
		cacheTTL:      cacheTTL,
		lookupTimeout: lookupTimeout,
		resolver:      r,
	}
}

// WithStore attaches a shared second-level store. Answers are written to it
// only when the TTL is positive.
func (c *Cache) WithStore(s Store) *Cache {
	c.store = s
	return c
}

// LookupMX returns the MX records of domain.
func (c *Cache) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	a, err := c.do(ctx, kindMX, domain)
	return copyMX(a.MX), err
}

// LookupTXT returns the TXT records of domain.
func (c *Cache) LookupTXT(ctx context.Context, domain string) ([]string, error) {
	a, err := c.do(ctx, kindTXT, domain)
	return append([]string(nil), a.TXT...), err
}

// LookupHost returns the addresses of host.
func (c *Cache) LookupHost(ctx context.Context, host string) ([]string, error) {
	a, err := c.do(ctx, kindHost, host)
	return append([]string(nil), a.Hosts...), err
}

// Len returns the number of entries in the cache (for diagnostics).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) do(ctx context.Context, k kind, name string) (Answer, error) {
	key := string(k) + ":" + name

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		select {
		case <-e.done:
			if time.Now().Before(e.expires) {
				c.mu.Unlock()
				return e.answer, e.err
			}
			// expired, refresh below
		default:
			c.mu.Unlock()
			select {
			case <-e.done:
				return e.answer, e.err
			case <-ctx.Done():
				return Answer{}, ctx.Err()
			}
		}
	}

	e := &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	// The lookup is shared, so one caller's cancellation must not fail the rest.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
	defer cancel()

	e.answer, e.err = c.resolve(lctx, k, key, name)
	e.expires = time.Now().Add(c.cacheTTL)
	close(e.done)

	if c.cacheTTL <= 0 {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}

	return e.answer, e.err
}

func (c *Cache) resolve(ctx context.Context, k kind, key, name string) (Answer, error) {
	if c.store != nil && c.cacheTTL > 0 {
		if a, ok, err := c.store.Get(ctx, key); err == nil && ok {
			return a, a.error(name)
		}
	}

	var a Answer
	var err error
	switch k {
	case kindMX:
		a.MX, err = c.resolver.LookupMX(ctx, name)
	case kindTXT:
		a.TXT, err = c.resolver.LookupTXT(ctx, name)
	case kindHost:
		a.Hosts, err = c.resolver.LookupHost(ctx, name)
	}
	if err != nil {
		a.Err = err.Error()
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			a.Err = dnsErr.Err
			a.NotFound = dnsErr.IsNotFound
			a.Timeout = dnsErr.IsTimeout
		}
	}

	if c.store != nil && c.cacheTTL > 0 && !a.Timeout {
		_ = c.store.Set(ctx, key, a, c.cacheTTL)
	}
	return a, err
}

// error rebuilds the lookup error of an answer read from the shared store.
func (a Answer) error(name string) error {
	if a.Err == "" {
		return nil
	}
	return &net.DNSError{Err: a.Err, Name: name, IsNotFound: a.NotFound, IsTimeout: a.Timeout}
}

// copyMX returns a deep copy so callers can sort without mutating the cache.
func copyMX(records []*net.MX) []*net.MX {
	if records == nil {
		return nil
	}
	out := make([]*net.MX, len(records))
	for i, r := range records {
		cp := *r
		out[i] = &cp
	}
	return out
}
