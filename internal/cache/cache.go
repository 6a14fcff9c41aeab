// Package cache implements the read-through TTL cache that sits in front of
// remote fetch functions. Entries live in the local store's cacheEntries
// partition under a namespaced key, so they survive restarts alongside the
// documents and the pending queue.
//
// Concurrent reads of one key share a single fetch (singleflight). The shared
// fetch is detached from any one reader's context, so a reader that gives up
// only abandons its own wait. A key must always be read with the same type
// parameter.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/devfolio-sync/internal/metrics"
	"github.com/tonimelisma/devfolio-sync/internal/store"
)

// Defaults.
const (
	DefaultTTL          = time.Hour
	DefaultNamespace    = "cache_"
	DefaultFetchTimeout = 2 * time.Minute
)

// Entry fields inside the stored document.
const (
	fieldData      = "data"
	fieldTimestamp = "timestamp"
)

// Store is the subset of the local store the cache needs.
type Store interface {
	Get(ctx context.Context, collection, key string) (store.Document, error)
	Put(ctx context.Context, collection, key string, doc store.Document) (store.Document, error)
	Delete(ctx context.Context, collection, key string) error
}

// Connectivity reports the online state and its transitions.
type Connectivity interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Config configures a Cache.
type Config struct {
	Namespace  string        // prefix for stored entry keys; default "cache_"
	DefaultTTL time.Duration // used when a read passes ttl <= 0; default 1h

	// FetchTimeout bounds a shared fetch, which outlives the reader that
	// started it. Default 2m.
	FetchTimeout time.Duration
}

// Cache is safe for concurrent use.
type Cache struct {
	store        Store
	conn         Connectivity
	logger       *slog.Logger
	namespace    string
	defaultTTL   time.Duration
	fetchTimeout time.Duration
	nowFunc      func() time.Time

	group singleflight.Group
}

// New returns a Cache over s. conn may be nil, in which case the cache
// always considers itself online.
func New(s Store, conn Connectivity, cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}

	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	return &Cache{
		store:        s,
		conn:         conn,
		logger:       logger,
		namespace:    cfg.Namespace,
		defaultTTL:   cfg.DefaultTTL,
		fetchTimeout: cfg.FetchTimeout,
		nowFunc:      time.Now,
	}
}

// FetchFunc loads the current value of a resource from the remote.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Result is the outcome of a successful read.
type Result[T any] struct {
	Data      T
	FromCache bool      // served from a fresh entry without fetching
	FetchedAt time.Time // when Data was fetched from the remote
	IsOffline bool      // connectivity state at read time
}

// entry is a decoded cache document.
type entry struct {
	data      json.RawMessage
	timestamp time.Time
}

func (c *Cache) online() bool {
	return c.conn == nil || c.conn.IsOnline()
}

func (c *Cache) storeKey(key string) string {
	return c.namespace + key
}

// Read returns the cached value for key when its age is at most ttl, and
// otherwise calls fetch and caches the result. An expired entry is deleted
// before fetching and is never returned. While offline, fetch is not called
// and ErrOffline is returned. A failing fetch yields a *FetchError.
func Read[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch FetchFunc[T]) (Result[T], error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	online := c.online()

	if e, ok := c.load(ctx, key); ok {
		age := c.nowFunc().Sub(e.timestamp)
		if age <= ttl {
			var data T

			err := json.Unmarshal(e.data, &data)
			if err == nil {
				metrics.RecordCacheRequest(metrics.CacheHit)

				return Result[T]{Data: data, FromCache: true, FetchedAt: e.timestamp, IsOffline: !online}, nil
			}

			c.logger.Warn("cache entry undecodable, refetching",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		} else {
			metrics.RecordCacheRequest(metrics.CacheExpired)
			c.logger.Debug("cache entry expired",
				slog.String("key", key),
				slog.Duration("age", age),
				slog.Duration("ttl", ttl),
			)
		}

		c.evict(ctx, key)
	} else {
		metrics.RecordCacheRequest(metrics.CacheMiss)
	}

	if !online {
		metrics.RecordCacheRequest(metrics.CacheOffline)
		return Result[T]{IsOffline: true}, ErrOffline
	}

	return fetchAndStore(ctx, c, key, fetch)
}

// Fetch calls fetch regardless of any cached entry and caches the result.
// The offline guard still applies.
func Fetch[T any](ctx context.Context, c *Cache, key string, fetch FetchFunc[T]) (Result[T], error) {
	if !c.online() {
		metrics.RecordCacheRequest(metrics.CacheOffline)
		return Result[T]{IsOffline: true}, ErrOffline
	}

	return fetchAndStore(ctx, c, key, fetch)
}

// Invalidate removes the entry for key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, store.CollectionCacheEntries, c.storeKey(key)); err != nil {
		return fmt.Errorf("cache: invalidating %q: %w", key, err)
	}

	return nil
}

// fetched is what the singleflight group shares between callers.
type fetched[T any] struct {
	data T
	at   time.Time
}

func fetchAndStore[T any](ctx context.Context, c *Cache, key string, fetch FetchFunc[T]) (Result[T], error) {
	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		data, fetchErr := callFetch(fctx, fetch)
		if fetchErr != nil {
			return nil, fetchErr
		}

		at := c.nowFunc()
		c.save(fctx, key, data, at)

		return fetched[T]{data: data, at: at}, nil
	})

	var res singleflight.Result

	select {
	case res = <-ch:
	case <-ctx.Done():
		// The shared fetch keeps running for the other readers and still
		// fills the cache.
		metrics.RecordCacheRequest(metrics.CacheError)

		return Result[T]{}, &FetchError{Key: key, Err: ctx.Err()}
	}

	if res.Err != nil {
		metrics.RecordCacheRequest(metrics.CacheError)
		c.logger.Warn("cache fetch failed", slog.String("key", key), slog.String("error", res.Err.Error()))

		return Result[T]{}, &FetchError{Key: key, Err: res.Err}
	}

	f, ok := res.Val.(fetched[T])
	if !ok {
		return Result[T]{}, &FetchError{Key: key, Err: fmt.Errorf("key read concurrently with type %T", res.Val)}
	}

	if res.Shared {
		c.logger.Debug("cache fetch shared with concurrent reader", slog.String("key", key))
	}

	return Result[T]{Data: f.data, FetchedAt: f.at, IsOffline: !c.online()}, nil
}

// callFetch runs fetch, converting a panic into an error.
func callFetch[T any](ctx context.Context, fetch FetchFunc[T]) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()

	return fetch(ctx)
}

// load reads the entry for key. Store failures are logged and reported as a
// miss so a broken store degrades to always fetching.
func (c *Cache) load(ctx context.Context, key string) (entry, bool) {
	doc, err := c.store.Get(ctx, store.CollectionCacheEntries, c.storeKey(key))
	if err != nil {
		if !store.IsNotFound(err) {
			c.logger.Warn("cache read from store failed", slog.String("key", key), slog.String("error", err.Error()))
		}

		return entry{}, false
	}

	ms, ok := doc[fieldTimestamp].(float64)
	if !ok {
		c.logger.Warn("cache entry has no timestamp", slog.String("key", key))
		return entry{}, false
	}

	raw, err := json.Marshal(doc[fieldData])
	if err != nil {
		return entry{}, false
	}

	return entry{data: raw, timestamp: time.UnixMilli(int64(ms))}, true
}

func (c *Cache) save(ctx context.Context, key string, data any, at time.Time) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn("cache value not encodable", slog.String("key", key), slog.String("error", err.Error()))
		return
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return
	}

	doc := store.Document{fieldData: generic, fieldTimestamp: at.UnixMilli()}

	if _, err := c.store.Put(ctx, store.CollectionCacheEntries, c.storeKey(key), doc); err != nil {
		c.logger.Warn("cache write to store failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (c *Cache) evict(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, store.CollectionCacheEntries, c.storeKey(key)); err != nil {
		c.logger.Warn("cache eviction failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}
