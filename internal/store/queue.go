package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Queue is the pending-operation log stored in the syncStatus partition
// (the sync_status table). Its lifecycle is:
//
//	Enqueue → ListPending → Remove
//
// Rows are never updated: an operation is either still queued or removed
// after the synchronizer confirmed it against the remote store. ListPending
// orders by timestamp with the auto-increment id as tie-breaker, so two
// operations enqueued within the same millisecond keep their enqueue order.
type Queue struct {
	store   *Store
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// NewQueue creates a Queue persisted by s.
func NewQueue(s *Store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{store: s, logger: logger, nowFunc: time.Now}
}

// SetClock replaces the source of enqueue timestamps. Call it before the
// queue is shared.
func (q *Queue) SetClock(now func() time.Time) {
	q.nowFunc = now
}

// SQL statements for queue operations.
const (
	sqlInsertPending = `INSERT INTO sync_status (timestamp, collection, document_id, operation, data)
		VALUES (?, ?, ?, ?, ?)`

	sqlListPending = `SELECT id, timestamp, collection, document_id, operation, data
		FROM sync_status ORDER BY timestamp, id`

	sqlDeletePending = `DELETE FROM sync_status WHERE id = ?`

	sqlCountPending = `SELECT COUNT(*) FROM sync_status`
)

// Enqueue appends op to the queue and returns its id. It does not look at
// connectivity: every mutation is queued first and drained later.
func (q *Queue) Enqueue(ctx context.Context, op Operation) (string, error) {
	if op == nil {
		return "", &Error{Code: CodeQueueFailed, Op: "enqueue", Cause: fmt.Errorf("nil operation")}
	}

	target := op.Target()
	collection, docID := normalizeName(target.Collection), normalizeName(target.DocumentID)

	db, err := q.store.conn(ctx)
	if err != nil {
		return "", err
	}

	var data sql.NullString

	if payload := op.payload(); payload != nil {
		encoded, encErr := encodeDocument(payload)
		if encErr != nil {
			return "", &Error{Code: CodeQueueFailed, Op: "enqueue", Collection: collection, Key: docID, Cause: encErr}
		}

		data = sql.NullString{String: encoded, Valid: true}
	}

	ts := q.nowFunc().UnixMilli()

	result, err := db.ExecContext(ctx, sqlInsertPending, ts, collection, docID, string(op.Kind()), data)
	if err != nil {
		return "", &Error{Code: CodeQueueFailed, Op: "enqueue", Collection: collection, Key: docID, Cause: err}
	}

	id, err := result.LastInsertId()
	if err != nil {
		return "", &Error{Code: CodeQueueFailed, Op: "enqueue", Collection: collection, Key: docID, Cause: err}
	}

	opID := strconv.FormatInt(id, 10)

	q.logger.Debug("operation queued",
		slog.String("op_id", opID),
		slog.String("operation", string(op.Kind())),
		slog.String("collection", collection),
		slog.String("document_id", docID),
	)

	return opID, nil
}

// ListPending returns every queued operation in replay order (ascending
// timestamp, then id).
func (q *Queue) ListPending(ctx context.Context) ([]PendingOperation, error) {
	db, err := q.store.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, sqlListPending)
	if err != nil {
		return nil, &Error{Code: CodeGetPendingFail, Op: "list pending", Cause: err}
	}
	defer rows.Close()

	ops := []PendingOperation{}

	for rows.Next() {
		p, scanErr := scanPendingRow(rows)
		if scanErr != nil {
			return nil, &Error{Code: CodeGetPendingFail, Op: "list pending", Cause: scanErr}
		}

		ops = append(ops, p)
	}

	if err := rows.Err(); err != nil {
		return nil, &Error{Code: CodeGetPendingFail, Op: "list pending", Cause: err}
	}

	return ops, nil
}

// scanPendingRow scans one sync_status row into a PendingOperation.
func scanPendingRow(rows *sql.Rows) (PendingOperation, error) {
	var (
		id         int64
		ts         int64
		collection string
		docID      string
		kind       string
		data       sql.NullString
	)

	if err := rows.Scan(&id, &ts, &collection, &docID, &kind, &data); err != nil {
		return PendingOperation{}, fmt.Errorf("scanning pending row: %w", err)
	}

	parsed, err := ParseOpKind(kind)
	if err != nil {
		return PendingOperation{}, err
	}

	var payload Document

	if data.Valid {
		if err := json.Unmarshal([]byte(data.String), &payload); err != nil {
			return PendingOperation{}, fmt.Errorf("decoding payload of operation %d: %w", id, err)
		}
	}

	op, err := NewOperation(parsed, collection, docID, payload)
	if err != nil {
		return PendingOperation{}, err
	}

	return PendingOperation{ID: strconv.FormatInt(id, 10), Timestamp: ts, Op: op}, nil
}

// Remove deletes a queued operation. Removing an id that is no longer queued
// is not an error.
func (q *Queue) Remove(ctx context.Context, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return &Error{Code: CodeRemoveOpFailed, Op: "remove", Key: id, Kind: ErrInvalidOperationID, Cause: err}
	}

	db, err := q.store.conn(ctx)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, sqlDeletePending, n); err != nil {
		return &Error{Code: CodeRemoveOpFailed, Op: "remove", Key: id, Cause: err}
	}

	q.logger.Debug("operation removed from queue", slog.String("op_id", id))

	return nil
}

// Count returns the number of queued operations.
func (q *Queue) Count(ctx context.Context) (int, error) {
	db, err := q.store.conn(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	if err := db.QueryRowContext(ctx, sqlCountPending).Scan(&count); err != nil {
		return 0, &Error{Code: CodeCountFailed, Op: "count pending", Cause: err}
	}

	return count, nil
}
