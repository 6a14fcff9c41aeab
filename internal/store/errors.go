// Package store implements the local persistent store for devfolio-sync: a
// SQLite database holding named document partitions and the pending-operation
// queue (the syncStatus partition). It is the only component that writes
// engine state to disk.
package store

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is(err, store.ErrNotFound) to check.
var (
	ErrStoreUnavailable   = errors.New("store: offline database not available")
	ErrNotFound           = errors.New("store: document not found")
	ErrReservedPartition  = errors.New("store: partition is reserved")
	ErrInvalidOperationID = errors.New("store: invalid operation id")
)

// Error codes attached to every *Error. They are stable strings so callers
// and logs can match on them without parsing messages.
const (
	CodeUnavailable     = "offline/db-unavailable"
	CodeNotFound        = "offline/not-found"
	CodeStoreFailed     = "offline/store-failed"
	CodeGetFailed       = "offline/get-failed"
	CodeQueryFailed     = "offline/query-failed"
	CodeDeleteFailed    = "offline/delete-failed"
	CodeQueueFailed     = "offline/queue-failed"
	CodeGetPendingFail  = "offline/get-pending-failed"
	CodeRemoveOpFailed  = "offline/remove-operation-failed"
	CodeCountFailed     = "offline/count-pending-failed"
	CodeMigrationFailed = "offline/migration-failed"
)

// Error is the structured error returned by every store operation. Kind is a
// sentinel (ErrStoreUnavailable, ErrNotFound, ...) when the failure has one;
// Cause is the underlying driver or encoding error, if any.
type Error struct {
	Code       string
	Op         string
	Collection string
	Key        string
	Kind       error
	Cause      error
}

func (e *Error) Error() string {
	msg := "store: " + e.Op

	if e.Collection != "" {
		msg += " " + e.Collection
	}

	if e.Key != "" {
		msg += "/" + e.Key
	}

	switch {
	case e.Kind != nil && e.Cause != nil:
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Cause)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", msg, e.Kind)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	default:
		return msg
	}
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	var errs []error

	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}

	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}

	return errs
}

// IsUnavailable reports whether err means the storage backend is missing.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsNotFound reports whether err means the document is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ErrorCode returns the store code carried by err, or "" when err is not a
// store error.
func ErrorCode(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}

	return ""
}
