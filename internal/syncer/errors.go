package syncer

import (
	"errors"
	"fmt"

	"github.com/tonimelisma/devfolio-sync/internal/store"
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrCannotSyncOffline is returned by a sync attempted without
	// connectivity. The queue is left untouched.
	ErrCannotSyncOffline = errors.New("syncer: cannot synchronize while offline")

	// ErrRemoteOperationFailed matches every *OperationError.
	ErrRemoteOperationFailed = errors.New("syncer: remote operation failed")
)

// OperationError reports one queued operation the remote store did not
// accept. Err is the remote client's error, so errors.As can still reach
// the remote message and code.
type OperationError struct {
	OpID string
	Kind store.OpKind
	Ref  store.DocumentRef
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("syncer: %s %s (op %s): %v", e.Kind, e.Ref, e.OpID, e.Err)
}

// Unwrap exposes ErrRemoteOperationFailed and the underlying error.
func (e *OperationError) Unwrap() []error {
	return []error{ErrRemoteOperationFailed, e.Err}
}
