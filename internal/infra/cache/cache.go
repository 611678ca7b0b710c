// Package cache provides a simple in-memory TTL cache used for the
// settings singleton and resolved profiles.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// InMemory is a thread-safe in-memory cache with TTL.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once
}

// New creates a new in-memory cache with the given TTL.
func New[T any](ttl time.Duration) *InMemory[T] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &InMemory[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	// Background cleanup goroutine
	go c.cleanup()
	return c
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores a value in the cache with the configured TTL.
func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[T]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Delete removes a value from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Close stops the cleanup goroutine.
func (c *InMemory[T]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanup periodically removes expired entries.
func (c *InMemory[T]) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for k, v := range c.items {
				if now.After(v.expiresAt) {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// ============================================================
// Loader: read-through with hit/miss accounting
// ============================================================

// Recorder receives hit/miss events.
type Recorder interface {
	IncrCacheHit(cache string)
	IncrCacheMiss(cache string)
}

// Store is the subset of a cache the Loader needs.
type Store[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Loader reads through a cache. Concurrent misses for the same key share
// one load.
type Loader[T any] struct {
	name     string
	store    Store[T]
	recorder Recorder
	group    singleflight.Group
}

// NewLoader wraps store. recorder may be nil.
func NewLoader[T any](name string, store Store[T], recorder Recorder) *Loader[T] {
	return &Loader[T]{name: name, store: store, recorder: recorder}
}

// Get returns the cached value or calls load and caches its result.
// Errors are not cached.
func (l *Loader[T]) Get(key string, load func() (T, error)) (T, error) {
	if v, ok := l.store.Get(key); ok {
		if l.recorder != nil {
			l.recorder.IncrCacheHit(l.name)
		}
		return v, nil
	}
	if l.recorder != nil {
		l.recorder.IncrCacheMiss(l.name)
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		val, err := load()
		if err != nil {
			return val, err
		}
		l.store.Set(key, val)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops key.
func (l *Loader[T]) Invalidate(key string) {
	l.store.Delete(key)
}
