package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ResourceOptions configures a Resource.
type ResourceOptions[T any] struct {
	TTL time.Duration // <= 0 uses the cache default

	// RetryOnOnline reloads the resource when connectivity returns and the
	// last load failed. DefaultResourceOptions enables it.
	RetryOnOnline bool

	// OnChange, if set, receives every state change. It is called without
	// any Resource lock held.
	OnChange func(State[T])
}

// DefaultResourceOptions returns the options used by the application: one
// hour TTL with retry on reconnect.
func DefaultResourceOptions[T any]() ResourceOptions[T] {
	return ResourceOptions[T]{TTL: DefaultTTL, RetryOnOnline: true}
}

// State is a snapshot of a Resource.
type State[T any] struct {
	Data      T
	HasData   bool
	Loading   bool
	Err       error
	IsOffline bool
	Stale     bool // Data is from an earlier load and the latest load failed
	FromCache bool
	FetchedAt time.Time
}

// Resource is a long-lived handle on one cache key: it remembers the last
// value and error, tracks connectivity, and reloads on reconnect.
type Resource[T any] struct {
	cache  *Cache
	key    string
	fetch  FetchFunc[T]
	opts   ResourceOptions[T]
	logger *slog.Logger

	mu    sync.Mutex
	state State[T]
	unsub func()
	ctx   context.Context // from Start, used for reconnect reloads
	wg    sync.WaitGroup
}

// NewResource returns a Resource for key. Call Start to perform the first
// load and begin tracking connectivity.
func NewResource[T any](c *Cache, key string, fetch FetchFunc[T], opts ResourceOptions[T]) *Resource[T] {
	return &Resource[T]{
		cache:  c,
		key:    key,
		fetch:  fetch,
		opts:   opts,
		logger: c.logger.With(slog.String("cache_key", key)),
		state:  State[T]{IsOffline: !c.online()},
	}
}

// Start loads the resource and subscribes to connectivity transitions. ctx
// bounds the loads triggered by reconnects; cancel it or call Close to stop.
func (r *Resource[T]) Start(ctx context.Context) State[T] {
	r.mu.Lock()
	r.ctx = ctx

	if r.cache.conn != nil && r.unsub == nil {
		r.unsub = r.cache.conn.Subscribe(r.onConnectivity)
	}
	r.mu.Unlock()

	return r.Load(ctx)
}

// Load reads through the cache, honoring the TTL.
func (r *Resource[T]) Load(ctx context.Context) State[T] {
	return r.run(func() (Result[T], error) {
		return Read(ctx, r.cache, r.key, r.opts.TTL, r.fetch)
	})
}

// Refresh fetches regardless of the TTL.
func (r *Resource[T]) Refresh(ctx context.Context) State[T] {
	return r.run(func() (Result[T], error) {
		return Fetch(ctx, r.cache, r.key, r.fetch)
	})
}

// Snapshot returns the current state.
func (r *Resource[T]) Snapshot() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// Close stops tracking connectivity and waits for reconnect reloads.
func (r *Resource[T]) Close() {
	r.mu.Lock()
	unsub := r.unsub
	r.unsub = nil
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}

	r.wg.Wait()
}

func (r *Resource[T]) run(read func() (Result[T], error)) State[T] {
	r.update(func(s *State[T]) { s.Loading = true })

	res, err := read()

	return r.update(func(s *State[T]) {
		s.Loading = false
		s.IsOffline = res.IsOffline || errors.Is(err, ErrOffline)
		s.Err = err

		if err != nil {
			// Keep whatever we had; it is now stale.
			s.Stale = s.HasData
			return
		}

		s.Data = res.Data
		s.HasData = true
		s.Stale = false
		s.FromCache = res.FromCache
		s.FetchedAt = res.FetchedAt
	})
}

func (r *Resource[T]) update(fn func(*State[T])) State[T] {
	r.mu.Lock()
	fn(&r.state)
	snap := r.state
	r.mu.Unlock()

	if r.opts.OnChange != nil {
		r.opts.OnChange(snap)
	}

	return snap
}

func (r *Resource[T]) onConnectivity(online bool) {
	snap := r.update(func(s *State[T]) { s.IsOffline = !online })

	if !online || !r.opts.RetryOnOnline || snap.Err == nil {
		return
	}

	r.mu.Lock()
	ctx := r.ctx
	if r.unsub == nil || ctx == nil {
		r.mu.Unlock()
		return
	}

	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("connectivity restored, retrying failed load")

	// The monitor delivers transitions synchronously; reload off its goroutine.
	go func() {
		defer r.wg.Done()

		if ctx.Err() != nil {
			return
		}

		r.Load(ctx)
	}()
}
