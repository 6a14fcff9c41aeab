package syncer

import "time"

// State is the synchronizer state machine: Idle → Syncing → (Idle | Error).
// There is no terminal state; any state re-enters Syncing on the next pass.
type State int

// Synchronizer states.
const (
	StateIdle State = iota
	StateSyncing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the synchronizer.
type Status struct {
	State     State
	Progress  int // percent of the current (or last) pass processed, 0-100
	Remaining int // operations of the current pass not yet processed
	Pending   int // queue depth as last observed
	Err       error

	LastPassID string
	LastRun    time.Time

	// Failing lists queued operations that failed on recent passes.
	Failing []Failure
}

// IsSyncing reports whether a pass is running.
func (s Status) IsSyncing() bool {
	return s.State == StateSyncing
}

// PassReport summarizes one ForceSynchronize call. When newly enqueued
// operations caused extra passes, the counts cover all of them.
type PassReport struct {
	PassID    string
	Passes    int
	Total     int
	Succeeded int
	Failed    int
	Deferred  int // skipped because an earlier operation on the same document failed
	Duration  time.Duration
	Errors    []error
}

func (r *PassReport) add(o PassReport) {
	r.Passes += o.Passes
	r.Total += o.Total
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	r.Deferred += o.Deferred
	r.Errors = append(r.Errors, o.Errors...)
}
