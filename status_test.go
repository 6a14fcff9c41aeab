package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectivityLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                      string
		configured, online, probe bool
		want                      string
	}{
		{"no remote", false, false, true, connNotConfigured},
		{"no remote ignores probe flag", false, true, false, connNotConfigured},
		{"online", true, true, true, connOnline},
		{"offline", true, false, true, connOffline},
		{"not probed", true, false, false, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, connectivityLabel(tt.configured, tt.online, !tt.probe))
		})
	}
}

func TestPrintStatusText_OfflineWithPending(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	printStatusText(&buf, statusReport{
		Pending:      3,
		Connectivity: connOffline,
		RemoteURL:    "https://api.devfolio.example",
		DBPath:       "/data/devfolio.db",
	})

	out := buf.String()
	assert.Contains(t, out, "3 changes pending")
	assert.Contains(t, out, "https://api.devfolio.example (offline)")
	assert.Contains(t, out, "not running")
	assert.Contains(t, out, "/data/devfolio.db")
	assert.Contains(t, out, offlineNotice)
}

func TestPrintStatusText_OnlineNoNotice(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	printStatusText(&buf, statusReport{
		Pending:      1,
		Connectivity: connOnline,
		RemoteURL:    "https://api.devfolio.example",
		DaemonPID:    4242,
	})

	out := buf.String()
	assert.Contains(t, out, "1 change pending")
	assert.Contains(t, out, "running (PID 4242)")
	assert.NotContains(t, out, offlineNotice)
}

func TestPrintStatusText_LastSync(t *testing.T) {
	t.Parallel()

	lastRun := time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC)

	t.Run("finished pass", func(t *testing.T) {
		var buf bytes.Buffer

		printStatusText(&buf, statusReport{
			Connectivity: connOnline,
			LastSync: &syncRecord{
				State:     "error",
				LastRun:   lastRun,
				LastError: "1 operation failed",
				Failing: []failingRecord{{
					Kind: "update", Document: "projects/p1", Failures: 2, LastError: "HTTP 500", LastAt: lastRun,
				}},
			},
		})

		out := buf.String()
		assert.Contains(t, out, "Last sync:")
		assert.Contains(t, out, "(error)")
		assert.Contains(t, out, "1 operation failed")
		assert.Contains(t, out, "failing: update projects/p1 (2 attempts")
	})

	t.Run("syncing with live daemon", func(t *testing.T) {
		var buf bytes.Buffer

		printStatusText(&buf, statusReport{
			Connectivity: connOnline,
			DaemonPID:    1,
			LastSync:     &syncRecord{State: "syncing", Progress: 40, Remaining: 3, LastRun: lastRun},
		})

		assert.Contains(t, buf.String(), "syncing 40% (3 remaining)")
	})

	t.Run("stale syncing record", func(t *testing.T) {
		var buf bytes.Buffer

		printStatusText(&buf, statusReport{
			Connectivity: connOnline,
			LastSync:     &syncRecord{State: "syncing", Progress: 40, Remaining: 3, LastRun: lastRun},
		})

		assert.NotContains(t, buf.String(), "40%")
		assert.Contains(t, buf.String(), "Last sync:")
	})
}
