// Package connectivity tracks whether the remote document store is reachable
// and notifies subscribers of online/offline transitions.
//
// A Monitor holds the state. Something has to drive it: a Prober polls an
// HTTP health endpoint, a SocketWatcher holds a websocket open and treats its
// lifetime as the online period, and tests or the static mode call Set
// directly.
package connectivity

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/tonimelisma/devfolio-sync/internal/metrics"
)

// Monitor is the online/offline state shared by the synchronizer and the cache
// layer. The zero value is not usable; call NewMonitor.
type Monitor struct {
	logger *slog.Logger

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)

	// deliverMu serializes transitions so subscribers see them in the order
	// they happened and never observe two at once.
	deliverMu sync.Mutex
}

// NewMonitor returns a Monitor with the given initial state.
func NewMonitor(initial bool, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		logger: logger,
		online: initial,
		subs:   make(map[int]func(bool)),
	}
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.online
}

// Set records the current state and reports whether it changed. On a change
// every subscriber is called, synchronously and in subscription order, before
// Set returns. Subscribers must not call Set.
func (m *Monitor) Set(online bool) bool {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()

	if m.online == online {
		m.mu.Unlock()
		return false
	}

	m.online = online
	subs := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("connectivity changed", slog.Bool("online", online))
	metrics.SetOnline(online)

	for _, fn := range subs {
		fn(online)
	}

	return true
}

// snapshotLocked returns subscribers ordered by registration.
func (m *Monitor) snapshotLocked() []func(bool) {
	ids := slices.Sorted(maps.Keys(m.subs))
	out := make([]func(bool), 0, len(ids))

	for _, id := range ids {
		out = append(out, m.subs[id])
	}

	return out
}

// Subscribe registers fn for every transition and returns a function that
// removes it. Calling the returned function more than once is harmless.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// OnOnline registers fn for transitions to online.
func (m *Monitor) OnOnline(fn func()) (unsubscribe func()) {
	return m.Subscribe(func(online bool) {
		if online {
			fn()
		}
	})
}

// OnOffline registers fn for transitions to offline.
func (m *Monitor) OnOffline(fn func()) (unsubscribe func()) {
	return m.Subscribe(func(online bool) {
		if !online {
			fn()
		}
	})
}
