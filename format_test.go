package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFormatPending(t *testing.T) {
	assert.Equal(t, "0 changes pending", formatPending(0))
	assert.Equal(t, "1 change pending", formatPending(1))
	assert.Equal(t, "12 changes pending", formatPending(12))
}

func TestCompactJSON(t *testing.T) {
	t.Run("fits", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, compactJSON(map[string]any{"a": 1}, 20))
	})

	t.Run("truncated", func(t *testing.T) {
		got := compactJSON(map[string]any{"title": "a long portfolio title"}, 10)
		assert.Equal(t, 10, utf8.RuneCountInString(got))
		assert.True(t, strings.HasSuffix(got, "…"))
		assert.True(t, strings.HasPrefix(got, `{"title":`))
	})

	t.Run("unencodable", func(t *testing.T) {
		got := compactJSON(map[string]any{"ch": make(chan int)}, 40)
		assert.True(t, strings.HasPrefix(got, "<"))
	})
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.UTC)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.UTC)

	t.Run("same year", func(t *testing.T) {
		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"KEY", "DOCUMENT", "QUEUED"}
	rows := [][]string{
		{"projects/p1", `{"title":"Site"}`, "Jan 15 10:30"},
		{"skills/go", `{"level":5}`, "Feb  1 09:00"},
	}

	printTable(&buf, headers, rows)
	output := buf.String()

	assert.Contains(t, output, "KEY")
	assert.Contains(t, output, "DOCUMENT")
	assert.Contains(t, output, "QUEUED")
	assert.Contains(t, output, "projects/p1")
	assert.Contains(t, output, "skills/go")
}
