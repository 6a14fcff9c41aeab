package syncer

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tonimelisma/devfolio-sync/internal/store"
)

// Failure reporting constants.
const (
	failureThreshold = 3                // warn once an operation has failed this many times
	failureCooldown  = 30 * time.Minute // forget failures older than this
)

// Failure describes a queued operation that keeps failing.
type Failure struct {
	OpID      string
	Ref       store.DocumentRef
	Kind      store.OpKind
	Count     int
	LastError string
	LastAt    time.Time
}

// failureTracker remembers consecutive failures per queued operation so
// status can show what is stuck. It never removes or skips operations.
// Thread-safe. Success clears the record.
type failureTracker struct {
	mu      sync.Mutex
	records map[string]*Failure
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for testing
}

func newFailureTracker(logger *slog.Logger) *failureTracker {
	return &failureTracker{
		records: make(map[string]*Failure),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// recordFailure increments the failure counter for an operation.
func (ft *failureTracker) recordFailure(op store.PendingOperation, errMsg string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	now := ft.nowFunc()

	rec, ok := ft.records[op.ID]
	if !ok {
		rec = &Failure{OpID: op.ID, Ref: op.Op.Target(), Kind: op.Kind()}
		ft.records[op.ID] = rec
	}

	if now.Sub(rec.LastAt) > failureCooldown {
		rec.Count = 0
	}

	rec.Count++
	rec.LastError = errMsg
	rec.LastAt = now

	if rec.Count == failureThreshold {
		ft.logger.Warn("operation failing repeatedly",
			slog.String("op_id", op.ID),
			slog.String("document", rec.Ref.String()),
			slog.Int("failures", rec.Count),
			slog.String("last_error", errMsg),
		)
	}
}

// recordSuccess clears the failure record for an operation.
func (ft *failureTracker) recordSuccess(opID string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	delete(ft.records, opID)
}

// snapshot returns live failure records ordered by operation id.
func (ft *failureTracker) snapshot() []Failure {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	now := ft.nowFunc()
	out := make([]Failure, 0, len(ft.records))

	for id, rec := range ft.records {
		if now.Sub(rec.LastAt) > failureCooldown {
			delete(ft.records, id)
			continue
		}

		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if len(out[i].OpID) != len(out[j].OpID) {
			return len(out[i].OpID) < len(out[j].OpID)
		}

		return out[i].OpID < out[j].OpID
	})

	return out
}
