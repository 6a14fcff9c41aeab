package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string][]string{
	"store":        {"db_path"},
	"cache":        {"ttl", "retry_on_online", "namespace"},
	"sync":         {"operation_timeout", "auto_sync", "poll_interval", "shutdown_timeout"},
	"connectivity": {"mode", "probe_interval", "probe_timeout", "health_path", "socket_path"},
	"remote": {
		"base_url", "request_timeout", "max_retries", "retry_delay", "rate_limit",
		"token_file", "breaker_failures", "breaker_timeout", "user_agent",
	},
	"logging": {"log_level", "log_format"},
	"metrics": {"listen_addr"},
}

// knownSectionsList is the sorted list of section names for Levenshtein
// matching. Sorted for deterministic suggestions on equal distances.
var knownSectionsList = func() []string {
	sections := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		sections = append(sections, s)
	}

	sort.Strings(sections)

	return sections
}()

// knownKeyOwner maps every key to its section so a key written at the top
// level can be pointed at the right section.
var knownKeyOwner = func() map[string]string {
	owners := make(map[string]string)

	for section, keys := range knownKeys {
		for _, k := range keys {
			owners[k] = section
		}
	}

	return owners
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if err := buildKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an undecoded key.
func buildKeyError(key toml.Key) error {
	if len(key) == 0 {
		return nil
	}

	section := key[0]

	keys, sectionKnown := knownKeys[section]
	if !sectionKnown {
		if len(key) == 1 {
			if owner, ok := knownKeyOwner[section]; ok {
				return fmt.Errorf("unknown config key %q: it belongs in the [%s] section", section, owner)
			}
		}

		if suggestion := closestMatch(section, knownSectionsList); suggestion != "" {
			return fmt.Errorf("unknown config section %q, did you mean %q?", section, suggestion)
		}

		return fmt.Errorf("unknown config section %q", section)
	}

	if len(key) < 2 {
		return nil
	}

	field := key[1]

	candidates := append([]string(nil), keys...)
	sort.Strings(candidates)

	if suggestion := closestMatch(field, candidates); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s], did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", strings.Join(key[1:], "."), section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization: two rows instead of a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
