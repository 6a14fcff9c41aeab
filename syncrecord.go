package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tonimelisma/devfolio-sync/internal/syncer"
)

// syncRecordPermissions: owner read/write, group and others read-only.
const syncRecordPermissions = 0o644

// syncRecord is the last observed synchronizer status, written next to the
// database so "status" in another process can report it.
type syncRecord struct {
	State     string          `json:"state"`
	Progress  int             `json:"progress"`
	Remaining int             `json:"remaining"`
	Pending   int             `json:"pending"`
	PassID    string          `json:"pass_id,omitempty"`
	LastRun   time.Time       `json:"last_run,omitzero"`
	LastError string          `json:"last_error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
	Failing   []failingRecord `json:"failing,omitempty"`
}

// failingRecord is one repeatedly failing operation.
type failingRecord struct {
	OperationID string    `json:"operation_id"`
	Kind        string    `json:"kind"`
	Document    string    `json:"document"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error"`
	LastAt      time.Time `json:"last_at"`
}

func newSyncRecord(st syncer.Status, now time.Time) syncRecord {
	rec := syncRecord{
		State:     st.State.String(),
		Progress:  st.Progress,
		Remaining: st.Remaining,
		Pending:   st.Pending,
		PassID:    st.LastPassID,
		LastRun:   st.LastRun,
		UpdatedAt: now,
	}

	if st.Err != nil {
		rec.LastError = st.Err.Error()
	}

	for _, f := range st.Failing {
		rec.Failing = append(rec.Failing, failingRecord{
			OperationID: f.OpID,
			Kind:        string(f.Kind),
			Document:    f.Ref.String(),
			Failures:    f.Count,
			LastError:   f.LastError,
			LastAt:      f.LastAt,
		})
	}

	return rec
}

// writeSyncRecord replaces the record at path atomically.
func writeSyncRecord(path string, rec syncRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sync record: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, pidDirPermissions); err != nil {
		return fmt.Errorf("creating sync record directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".last_sync-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmp := f.Name()

	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		os.Remove(tmp)

		return fmt.Errorf("writing sync record: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing sync record: %w", err)
	}

	if err := os.Chmod(tmp, syncRecordPermissions); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("setting sync record permissions: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming sync record: %w", err)
	}

	return nil
}

// readSyncRecord returns the record at path, or nil if none was written.
func readSyncRecord(path string) (*syncRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading sync record: %w", err)
	}

	var rec syncRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding sync record %s: %w", path, err)
	}

	return &rec, nil
}
