package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrCacheFetchFailed matches every *FetchError.
	ErrCacheFetchFailed = errors.New("cache: fetch failed")

	// ErrOffline is returned instead of calling the fetch function while the
	// connectivity monitor reports offline and no fresh entry exists.
	ErrOffline = errors.New("cache: you are offline and no fresh cached copy exists")
)

// FetchError is returned when the caller's fetch function fails or panics.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cache: fetching %q: %v", e.Key, e.Err)
}

// Unwrap exposes ErrCacheFetchFailed and the fetch function's own error.
func (e *FetchError) Unwrap() []error {
	return []error{ErrCacheFetchFailed, e.Err}
}
