package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKey_InSectionSuggests(t *testing.T) {
	path := writeTestConfig(t, "[sync]\noperation_timout = \"5s\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.Contains(t, err.Error(), "operation_timeout")
}

func TestLoad_UnknownKey_NoSuggestion(t *testing.T) {
	path := writeTestConfig(t, "[cache]\ncompletely_unrelated_key = true\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLoad_UnknownSection(t *testing.T) {
	path := writeTestConfig(t, "[remot]\nbase_url = \"https://x.example\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config section "remot"`)
	assert.Contains(t, err.Error(), `"remote"`)
}

func TestLoad_TopLevelKeyPointsToSection(t *testing.T) {
	path := writeTestConfig(t, "ttl = \"1h\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[cache]")
}

func TestLoad_MultipleUnknownKeysReported(t *testing.T) {
	path := writeTestConfig(t, "[cache]\nttll = \"1h\"\n[logging]\nlog_lvl = \"debug\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ttl")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"ttl", "ttll", 1},
		{"operation_timout", "operation_timeout", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, levenshtein(tt.a, tt.b), "levenshtein(%q, %q)", tt.a, tt.b)
	}
}

func TestClosestMatch_TooFar(t *testing.T) {
	assert.Empty(t, closestMatch("zzzzzzzz", knownSectionsList))
	assert.Equal(t, "metrics", closestMatch("metric", knownSectionsList))
}
