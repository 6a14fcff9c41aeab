package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResource_StartLoads(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	fetch, calls := countingFetch([]project{{ID: "p1", Title: "X"}})

	r := NewResource(f.cache, "projects", fetch, DefaultResourceOptions[[]project]())
	defer r.Close()

	st := r.Start(context.Background())
	require.NoError(t, st.Err)
	assert.True(t, st.HasData)
	assert.False(t, st.Loading)
	assert.False(t, st.FromCache)
	assert.Equal(t, "X", st.Data[0].Title)

	// A second handle on the same key is served from the cache.
	r2 := NewResource(f.cache, "projects", fetch, DefaultResourceOptions[[]project]())
	defer r2.Close()

	st2 := r2.Start(context.Background())
	assert.True(t, st2.FromCache)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResource_FailedRefreshKeepsStaleData(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	var fail atomic.Bool

	boom := errors.New("backend down")
	fetch := func(context.Context) (string, error) {
		if fail.Load() {
			return "", boom
		}

		return "v1", nil
	}

	r := NewResource(f.cache, "k", fetch, DefaultResourceOptions[string]())
	defer r.Close()

	require.NoError(t, r.Start(context.Background()).Err)

	fail.Store(true)

	st := r.Refresh(context.Background())
	require.ErrorIs(t, st.Err, boom)
	assert.True(t, st.HasData)
	assert.True(t, st.Stale)
	assert.Equal(t, "v1", st.Data)

	fail.Store(false)

	st = r.Refresh(context.Background())
	require.NoError(t, st.Err)
	assert.False(t, st.Stale)
}

func TestResource_RetriesOnReconnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	fetch, calls := countingFetch([]project{{ID: "p1"}})

	r := NewResource(f.cache, "k", fetch, DefaultResourceOptions[[]project]())
	defer r.Close()

	st := r.Start(context.Background())
	require.ErrorIs(t, st.Err, ErrOffline)
	assert.True(t, st.IsOffline)
	assert.False(t, st.HasData)
	assert.Zero(t, calls.Load())

	f.monitor.Set(true)

	require.Eventually(t, func() bool {
		s := r.Snapshot()
		return s.HasData && s.Err == nil && !s.IsOffline
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResource_NoRetryWhenDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	fetch, calls := countingFetch(nil)

	r := NewResource(f.cache, "k", fetch, ResourceOptions[[]project]{TTL: time.Hour})

	r.Start(context.Background())
	f.monitor.Set(true)
	r.Close()

	assert.Zero(t, calls.Load())
	assert.False(t, r.Snapshot().IsOffline)
	assert.ErrorIs(t, r.Snapshot().Err, ErrOffline)
}

func TestResource_NoRetryAfterSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	fetch, calls := countingFetch(nil)

	r := NewResource(f.cache, "k", fetch, DefaultResourceOptions[[]project]())

	r.Start(context.Background())
	f.monitor.Set(false)
	f.monitor.Set(true)
	r.Close()

	assert.Equal(t, int32(1), calls.Load())
}

func TestResource_OfflineTransitionFlagsState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	fetch, _ := countingFetch([]project{{ID: "p1"}})

	r := NewResource(f.cache, "k", fetch, DefaultResourceOptions[[]project]())
	defer r.Close()

	r.Start(context.Background())
	f.monitor.Set(false)

	st := r.Snapshot()
	assert.True(t, st.IsOffline)
	assert.True(t, st.HasData)
	assert.NoError(t, st.Err)
}

func TestResource_CloseStopsTracking(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	fetch, _ := countingFetch(nil)

	r := NewResource(f.cache, "k", fetch, DefaultResourceOptions[[]project]())
	r.Start(context.Background())
	r.Close()

	f.monitor.Set(false)
	assert.False(t, r.Snapshot().IsOffline)
}

func TestResource_OnChange(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	fetch, _ := countingFetch([]project{{ID: "p1"}})

	var (
		mu     sync.Mutex
		states []State[[]project]
	)

	opts := DefaultResourceOptions[[]project]()
	opts.OnChange = func(s State[[]project]) {
		mu.Lock()
		defer mu.Unlock()

		states = append(states, s)
	}

	r := NewResource(f.cache, "k", fetch, opts)
	defer r.Close()

	r.Start(context.Background())

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, states, 2)
	assert.True(t, states[0].Loading)
	assert.False(t, states[1].Loading)
	assert.True(t, states[1].HasData)
}
