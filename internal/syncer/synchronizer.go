// Package syncer drains the pending-operation queue to the remote document
// store. A pass replays operations oldest first, removes each one the remote
// accepts, and leaves every failed operation queued for the next pass.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/devfolio-sync/internal/metrics"
	"github.com/tonimelisma/devfolio-sync/internal/remote"
	"github.com/tonimelisma/devfolio-sync/internal/store"
)

// Defaults applied by New.
const (
	DefaultOperationTimeout = 30 * time.Second
	DefaultPollInterval     = 5 * time.Second

	// maxPassesPerSync bounds the follow-up passes run for operations
	// enqueued while a pass was in progress.
	maxPassesPerSync = 10
)

// RemoteStore is the subset of the remote client a pass needs.
// Satisfied by *remote.Client.
type RemoteStore interface {
	CreateDocument(ctx context.Context, collection string, data store.Document) (store.Document, error)
	UpdateDocument(ctx context.Context, collection, id string, data store.Document) (store.Document, error)
	SetDocument(ctx context.Context, collection, id string, data store.Document) (store.Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error
}

// Queue is the pending-operation queue. Satisfied by *store.Queue.
type Queue interface {
	Enqueue(ctx context.Context, op store.Operation) (string, error)
	ListPending(ctx context.Context) ([]store.PendingOperation, error)
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Connectivity reports and broadcasts online state.
// Satisfied by *connectivity.Monitor.
type Connectivity interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Config holds the options for New.
type Config struct {
	Queue        Queue
	Remote       RemoteStore
	Connectivity Connectivity
	Logger       *slog.Logger

	OperationTimeout time.Duration // per remote call; zero uses DefaultOperationTimeout

	// AutoSync starts a pass on every offline→online transition once Start
	// has been called.
	AutoSync bool

	// OnStatus, if set, receives every status change. Called synchronously
	// from the goroutine that changed the status; it must not block.
	OnStatus func(Status)
}

// Synchronizer replays queued operations against the remote store. At most
// one pass runs at a time.
type Synchronizer struct {
	queue     Queue
	remote    RemoteStore
	conn      Connectivity
	logger    *slog.Logger
	opTimeout time.Duration
	autoSync  bool
	onStatus  func(Status)
	failures  *failureTracker
	nowFunc   func() time.Time

	passMu  sync.Mutex  // held for the duration of a sync
	waiting atomic.Bool // an automatic sync is queued behind passMu

	mu     sync.Mutex
	status Status

	runMu   sync.Mutex
	started bool
	runCtx  context.Context
	unsub   func()
	wg      sync.WaitGroup
}

// New creates a Synchronizer. Queue, Remote and Connectivity are required.
func New(cfg Config) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}

	return &Synchronizer{
		queue:     cfg.Queue,
		remote:    cfg.Remote,
		conn:      cfg.Connectivity,
		logger:    logger,
		opTimeout: timeout,
		autoSync:  cfg.AutoSync,
		onStatus:  cfg.OnStatus,
		failures:  newFailureTracker(logger),
		nowFunc:   time.Now,
	}
}

// Status returns a snapshot of the current status.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()

	st.Failing = s.failures.snapshot()

	return st
}

func (s *Synchronizer) updateStatus(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	st := s.status
	s.mu.Unlock()

	metrics.SetPendingOperations(st.Pending)

	if s.onStatus != nil {
		st.Failing = s.failures.snapshot()
		s.onStatus(st)
	}
}

// CheckPendingOperations refreshes and returns the queue depth.
func (s *Synchronizer) CheckPendingOperations(ctx context.Context) (int, error) {
	n, err := s.queue.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("syncer: counting pending operations: %w", err)
	}

	s.updateStatus(func(st *Status) { st.Pending = n })

	return n, nil
}

// ForceSynchronize runs a pass now, waiting for any pass already in
// progress. Offline it fails fast with ErrCannotSyncOffline and leaves the
// queue unchanged. The returned error joins every *OperationError of the
// pass; the report is returned either way.
func (s *Synchronizer) ForceSynchronize(ctx context.Context) (*PassReport, error) {
	if !s.conn.IsOnline() {
		s.markOffline()
		return nil, ErrCannotSyncOffline
	}

	s.passMu.Lock()
	defer s.passMu.Unlock()

	return s.synchronize(ctx)
}

func (s *Synchronizer) markOffline() {
	s.logger.Warn("sync skipped: offline")
	metrics.RecordSyncPass(metrics.ResultOffline, 0)

	s.updateStatus(func(st *Status) {
		st.State = StateError
		st.Err = ErrCannotSyncOffline
	})
}

// synchronize runs passes until no operation enqueued during the previous
// pass is left. Caller holds passMu.
func (s *Synchronizer) synchronize(ctx context.Context) (*PassReport, error) {
	start := s.nowFunc()
	report := &PassReport{PassID: uuid.NewString()}
	seen := make(map[string]bool)

	for report.Passes < maxPassesPerSync {
		if !s.conn.IsOnline() {
			s.markOffline()
			return report, ErrCannotSyncOffline
		}

		ops, err := s.queue.ListPending(ctx)
		if err != nil {
			s.updateStatus(func(st *Status) {
				st.State = StateError
				st.Err = err
			})

			return report, fmt.Errorf("syncer: listing pending operations: %w", err)
		}

		if report.Passes > 0 && !hasUnseen(ops, seen) {
			break
		}

		for _, op := range ops {
			seen[op.ID] = true
		}

		report.add(s.runPass(ctx, report.PassID, ops))

		if ctx.Err() != nil {
			break
		}
	}

	report.Duration = s.nowFunc().Sub(start)

	pending, countErr := s.queue.Count(ctx)
	if countErr != nil {
		s.logger.Warn("counting pending operations after sync failed",
			slog.String("error", countErr.Error()),
		)
	}

	resultErr := errors.Join(report.Errors...)
	if resultErr == nil && ctx.Err() != nil {
		resultErr = ctx.Err()
	}

	result := metrics.ResultSuccess
	if resultErr != nil {
		result = metrics.ResultFailure
	}

	metrics.RecordSyncPass(result, report.Duration)

	s.updateStatus(func(st *Status) {
		st.State = StateIdle
		st.Err = resultErr

		if resultErr != nil {
			st.State = StateError
		}

		if countErr == nil {
			st.Pending = pending
		}

		st.Remaining = 0
		st.LastPassID = report.PassID
		st.LastRun = s.nowFunc()
	})

	s.logger.Info("sync complete",
		slog.String("pass_id", report.PassID),
		slog.Int("passes", report.Passes),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("deferred", report.Deferred),
		slog.Int("pending", pending),
		slog.Duration("duration", report.Duration),
	)

	return report, resultErr
}

func hasUnseen(ops []store.PendingOperation, seen map[string]bool) bool {
	for _, op := range ops {
		if !seen[op.ID] {
			return true
		}
	}

	return false
}

// runPass replays ops in order. Once an operation on a document fails, later
// operations on the same document are deferred to the next pass so the
// remote never sees them out of order. Other documents are unaffected.
func (s *Synchronizer) runPass(ctx context.Context, passID string, ops []store.PendingOperation) PassReport {
	logger := s.logger.With(slog.String("pass_id", passID))
	total := len(ops)
	report := PassReport{Passes: 1, Total: total}

	logger.Info("sync pass starting", slog.Int("operations", total))

	s.updateStatus(func(st *Status) {
		st.State = StateSyncing
		st.Err = nil
		st.Progress = 0
		st.Remaining = total
		st.Pending = total

		if total == 0 {
			st.Progress = 100
		}
	})

	blocked := make(map[store.DocumentRef]bool)

	for i, op := range ops {
		if ctx.Err() != nil {
			logger.Info("sync pass canceled", slog.Int("remaining", total-i))
			break
		}

		ref := op.Op.Target()

		switch {
		case blocked[ref]:
			report.Deferred++
			metrics.RecordOperation(string(op.Kind()), metrics.ResultDeferred)
			logger.Debug("operation deferred behind earlier failure",
				slog.String("op_id", op.ID),
				slog.String("document", ref.String()),
			)

		default:
			if err := s.replay(ctx, logger, op); err != nil {
				report.Failed++
				report.Errors = append(report.Errors, err)
				blocked[ref] = true
			} else {
				report.Succeeded++
			}
		}

		completed := i + 1
		progress := int(math.Round(float64(completed) / float64(total) * 100))

		s.updateStatus(func(st *Status) {
			st.Progress = progress
			st.Remaining = total - completed
		})
	}

	return report
}

// replay sends one operation and removes it from the queue on success.
func (s *Synchronizer) replay(ctx context.Context, logger *slog.Logger, op store.PendingOperation) error {
	kind := string(op.Kind())

	if err := s.apply(ctx, op); err != nil {
		opErr := &OperationError{OpID: op.ID, Kind: op.Kind(), Ref: op.Op.Target(), Err: err}

		s.failures.recordFailure(op, err.Error())
		metrics.RecordOperation(kind, metrics.ResultFailure)
		logger.Warn("operation failed, left queued",
			slog.String("op_id", op.ID),
			slog.String("operation", kind),
			slog.String("document", op.Op.Target().String()),
			slog.String("error", err.Error()),
		)

		return opErr
	}

	// The remote has the change. If removal fails the operation is replayed
	// next pass, so the document stays blocked for the rest of this one.
	if err := s.queue.Remove(ctx, op.ID); err != nil {
		metrics.RecordOperation(kind, metrics.ResultFailure)
		logger.Error("removing synced operation failed",
			slog.String("op_id", op.ID),
			slog.String("error", err.Error()),
		)

		return &OperationError{OpID: op.ID, Kind: op.Kind(), Ref: op.Op.Target(), Err: err}
	}

	s.failures.recordSuccess(op.ID)
	metrics.RecordOperation(kind, metrics.ResultSuccess)
	logger.Debug("operation synced",
		slog.String("op_id", op.ID),
		slog.String("operation", kind),
		slog.String("document", op.Op.Target().String()),
	)

	return nil
}

// apply dispatches op to the remote store under the per-operation timeout.
// A panic in the remote client is converted into an error.
func (s *Synchronizer) apply(ctx context.Context, op store.PendingOperation) (err error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("syncer: remote call panicked: %v", r)
		}
	}()

	switch o := op.Op.(type) {
	case store.Create:
		_, err = s.remote.CreateDocument(opCtx, o.Collection, o.Data)
	case store.Update:
		_, err = s.remote.UpdateDocument(opCtx, o.Collection, o.DocumentID, o.Data)
	case store.Set:
		_, err = s.remote.SetDocument(opCtx, o.Collection, o.DocumentID, o.Data)
	case store.Delete:
		err = s.remote.DeleteDocument(opCtx, o.Collection, o.DocumentID)
		if errors.Is(err, remote.ErrNotFound) {
			// Already gone remotely; the intent is satisfied.
			err = nil
		}
	default:
		err = fmt.Errorf("syncer: unsupported operation %T", op.Op)
	}

	return err
}

// Start enables automatic syncing: a pass runs now if operations are
// pending and connectivity is present, and again on each reconnect when
// AutoSync is set. Start is a no-op if already started.
func (s *Synchronizer) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.started {
		return
	}

	s.started = true
	s.runCtx = ctx

	if s.autoSync {
		s.unsub = s.conn.Subscribe(func(online bool) {
			if online {
				s.logger.Info("connectivity restored, scheduling sync")
				s.Kick()
			}
		})
	}

	if s.conn.IsOnline() {
		s.kickLocked()
	}
}

// Stop unsubscribes from connectivity and waits for automatic passes to
// finish. Cancel the context given to Start to abort a running pass.
func (s *Synchronizer) Stop() {
	s.runMu.Lock()
	if !s.started {
		s.runMu.Unlock()
		return
	}

	s.started = false

	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	s.runMu.Unlock()

	s.wg.Wait()
}

// Kick schedules an automatic pass if the synchronizer is started. Safe to
// call from any goroutine; kicks made while a pass is already queued
// collapse into it.
func (s *Synchronizer) Kick() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.started {
		s.kickLocked()
	}
}

// kickLocked starts an automatic pass in the background. Caller holds runMu.
func (s *Synchronizer) kickLocked() {
	ctx := s.runCtx

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.autoSynchronize(ctx)
	}()
}

func (s *Synchronizer) autoSynchronize(ctx context.Context) {
	if !s.conn.IsOnline() || ctx.Err() != nil {
		return
	}

	if !s.waiting.CompareAndSwap(false, true) {
		return
	}

	s.passMu.Lock()
	s.waiting.Store(false)
	defer s.passMu.Unlock()

	n, err := s.CheckPendingOperations(ctx)
	if err != nil {
		s.logger.Warn("automatic sync skipped", slog.String("error", err.Error()))
		return
	}

	if n == 0 || !s.conn.IsOnline() {
		return
	}

	if _, err := s.synchronize(ctx); err != nil {
		s.logger.Warn("automatic sync finished with errors", slog.String("error", err.Error()))
	}
}

// WatchOpts configures Run.
type WatchOpts struct {
	PollInterval time.Duration // queue re-check interval; zero uses DefaultPollInterval
}

// Run starts automatic syncing and re-checks the queue every poll interval
// so operations enqueued by other processes are picked up. Blocks until ctx
// is canceled and returns nil.
func (s *Synchronizer) Run(ctx context.Context, opts WatchOpts) error {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	s.logger.Info("sync watch starting", slog.Duration("poll_interval", interval))

	s.Start(ctx)
	defer s.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync watch stopped")
			return nil
		case <-ticker.C:
			s.Kick()
		}
	}
}
