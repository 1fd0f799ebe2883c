package postgres

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Opener opens a database handle for a DSN.
type Opener func(ctx context.Context, dsn string) (*DB, error)

// Registry is a bounded cache of database handles keyed by DSN.
// When capacity is exceeded the least recently used handle is evicted and closed,
// so callers must not hold a handle across a Get for a different DSN.
type Registry struct {
	mu    sync.Mutex
	open  Opener
	cache *lru.Cache[string, *DB]
}

// NewRegistry constructs a registry with the given capacity.
func NewRegistry(capacity int, open Opener) (*Registry, error) {
	if capacity <= 0 {
		return nil, errors.New("registry capacity must be positive")
	}
	if open == nil {
		open = New
	}
	cache, err := lru.NewWithEvict[string, *DB](capacity, func(_ string, db *DB) {
		db.Close()
	})
	if err != nil {
		return nil, err
	}
	return &Registry{open: open, cache: cache}, nil
}

// Get returns the handle for dsn, opening it on first use.
func (r *Registry) Get(ctx context.Context, dsn string) (*DB, error) {
	if db, ok := r.cache.Get(dsn); ok {
		return db, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.cache.Get(dsn); ok {
		return db, nil
	}
	db, err := r.open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	r.cache.Add(dsn, db)
	return db, nil
}

// Len reports how many handles are open.
func (r *Registry) Len() int { return r.cache.Len() }

// Close closes every cached handle.
func (r *Registry) Close() { r.cache.Purge() }
