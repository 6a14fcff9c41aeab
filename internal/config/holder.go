package config

import "sync"

// Holder is the single place the watch daemon reads its effective
// configuration from. The config file path is fixed at construction; the
// configuration is swapped on every successful reload and the swaps are
// counted so log lines can say which generation is live.
type Holder struct {
	mu         sync.RWMutex
	cfg        *Resolved
	generation int
	path       string // immutable after construction
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Resolved, path string) *Holder {
	return &Holder{
		cfg:  cfg,
		path: path,
	}
}

// Config returns the current config snapshot.
func (h *Holder) Config() *Resolved {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Generation is the number of updates applied; the initial config is 0.
func (h *Holder) Generation() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.generation
}

// Path returns the config file path. No locking: the path never changes.
func (h *Holder) Path() string {
	return h.path
}

// Update installs cfg and returns the config it replaced.
func (h *Holder) Update(cfg *Resolved) (prev *Resolved) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev = h.cfg
	h.cfg = cfg
	h.generation++

	return prev
}
