package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/devfolio-sync/internal/store"
)

// LocalStore is the local document store. Satisfied by *store.Store.
type LocalStore interface {
	Get(ctx context.Context, collection, key string) (store.Document, error)
	Put(ctx context.Context, collection, key string, doc store.Document) (store.Document, error)
	Delete(ctx context.Context, collection, key string) error
}

// Engine is the write path: every mutation lands in the local store first,
// is always queued (never sent directly, even online), and then a pass is
// kicked so a started synchronizer drains it.
type Engine struct {
	local  LocalStore
	queue  Queue
	sync   *Synchronizer
	logger *slog.Logger
}

// NewEngine wires a local store, queue and synchronizer together.
func NewEngine(local LocalStore, queue Queue, s *Synchronizer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{local: local, queue: queue, sync: s, logger: logger}
}

// Synchronizer returns the engine's synchronizer.
func (e *Engine) Synchronizer() *Synchronizer {
	return e.sync
}

// Create stores a new document locally under id and queues its creation.
// It returns the stored document and the operation id.
func (e *Engine) Create(ctx context.Context, collection, id string, data store.Document) (store.Document, string, error) {
	doc, err := e.local.Put(ctx, collection, id, data)
	if err != nil {
		return nil, "", fmt.Errorf("syncer: create %s/%s: %w", collection, id, err)
	}

	opID, err := e.enqueue(ctx, store.Create{Collection: collection, DocumentID: id, Data: data.Clone()})

	return doc, opID, err
}

// Update merges patch into the local document (a missing document is
// created from the patch alone) and queues the patch.
func (e *Engine) Update(ctx context.Context, collection, id string, patch store.Document) (store.Document, string, error) {
	current, err := e.local.Get(ctx, collection, id)
	if err != nil && !store.IsNotFound(err) {
		return nil, "", fmt.Errorf("syncer: update %s/%s: %w", collection, id, err)
	}

	doc, err := e.local.Put(ctx, collection, id, current.Merge(patch))
	if err != nil {
		return nil, "", fmt.Errorf("syncer: update %s/%s: %w", collection, id, err)
	}

	opID, err := e.enqueue(ctx, store.Update{Collection: collection, DocumentID: id, Data: patch.Clone()})

	return doc, opID, err
}

// Set replaces the local document and queues the replacement.
func (e *Engine) Set(ctx context.Context, collection, id string, data store.Document) (store.Document, string, error) {
	doc, err := e.local.Put(ctx, collection, id, data)
	if err != nil {
		return nil, "", fmt.Errorf("syncer: set %s/%s: %w", collection, id, err)
	}

	opID, err := e.enqueue(ctx, store.Set{Collection: collection, DocumentID: id, Data: data.Clone()})

	return doc, opID, err
}

// Delete removes the local document and queues the deletion.
func (e *Engine) Delete(ctx context.Context, collection, id string) (string, error) {
	if err := e.local.Delete(ctx, collection, id); err != nil {
		return "", fmt.Errorf("syncer: delete %s/%s: %w", collection, id, err)
	}

	return e.enqueue(ctx, store.Delete{Collection: collection, DocumentID: id})
}

func (e *Engine) enqueue(ctx context.Context, op store.Operation) (string, error) {
	id, err := e.queue.Enqueue(ctx, op)
	if err != nil {
		return "", fmt.Errorf("syncer: queueing %s %s: %w", op.Kind(), op.Target(), err)
	}

	e.logger.Debug("operation queued",
		slog.String("op_id", id),
		slog.String("operation", string(op.Kind())),
		slog.String("document", op.Target().String()),
	)

	if _, err := e.sync.CheckPendingOperations(ctx); err != nil {
		e.logger.Warn("refreshing pending count failed", slog.String("error", err.Error()))
	}

	e.sync.Kick()

	return id, nil
}

// CheckPendingOperations returns the queue depth.
func (e *Engine) CheckPendingOperations(ctx context.Context) (int, error) {
	return e.sync.CheckPendingOperations(ctx)
}

// ForceSynchronize runs a pass now. See Synchronizer.ForceSynchronize.
func (e *Engine) ForceSynchronize(ctx context.Context) (*PassReport, error) {
	return e.sync.ForceSynchronize(ctx)
}

// Status returns the synchronizer status.
func (e *Engine) Status() Status {
	return e.sync.Status()
}
