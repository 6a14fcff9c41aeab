package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/devfolio-sync/internal/store"
)

func TestParseDocument(t *testing.T) {
	t.Parallel()

	t.Run("inline", func(t *testing.T) {
		doc, err := parseDocument(`{"title":"Site","stars":12}`)
		require.NoError(t, err)
		assert.Equal(t, "Site", doc["title"])
		// Numbers stay as json.Number so large integers survive the round trip.
		assert.Equal(t, json.Number("12"), doc["stars"])
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"name":"Go"}`), 0o600))

		doc, err := parseDocument("@" + path)
		require.NoError(t, err)
		assert.Equal(t, "Go", doc["name"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := parseDocument("@" + filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading document file")
	})

	t.Run("null", func(t *testing.T) {
		_, err := parseDocument("null")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "got null")
	})

	t.Run("array", func(t *testing.T) {
		_, err := parseDocument(`[1,2]`)
		require.Error(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := parseDocument(`{"title":`)
		require.Error(t, err)
	})
}

func TestParseWhere(t *testing.T) {
	t.Parallel()

	t.Run("no conditions", func(t *testing.T) {
		match, err := parseWhere(nil)
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("all must match", func(t *testing.T) {
		match, err := parseWhere([]string{"status=published", "year=2026"})
		require.NoError(t, err)

		assert.True(t, match(store.Document{"status": "published", "year": json.Number("2026")}))
		assert.True(t, match(store.Document{"status": "published", "year": float64(2026)}))
		assert.False(t, match(store.Document{"status": "draft", "year": json.Number("2026")}))
		assert.False(t, match(store.Document{"status": "published"}))
	})

	t.Run("value may contain equals", func(t *testing.T) {
		match, err := parseWhere([]string{"query=a=b"})
		require.NoError(t, err)
		assert.True(t, match(store.Document{"query": "a=b"}))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := parseWhere([]string{"status"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "want field=value")

		_, err = parseWhere([]string{"=x"})
		require.Error(t, err)
	})
}
