package store

import (
	"encoding/json"
	"fmt"
	"maps"

	"golang.org/x/text/unicode/norm"
)

// Partition names used by the portfolio application.
const (
	CollectionUserProfiles      = "userProfiles"
	CollectionProjects          = "projects"
	CollectionExperiences       = "experiences"
	CollectionPortfolioSettings = "portfolioSettings"
	CollectionCacheEntries      = "cacheEntries"

	// CollectionSyncStatus is the pending-operation queue. It is reserved:
	// documents cannot be written to it through Put.
	CollectionSyncStatus = "syncStatus"
)

// defaultPartitions are created when the store is first initialized.
var defaultPartitions = []string{
	CollectionUserProfiles,
	CollectionProjects,
	CollectionExperiences,
	CollectionPortfolioSettings,
	CollectionCacheEntries,
	CollectionSyncStatus,
}

// Document is an opaque JSON object stored in a partition.
type Document map[string]any

// Clone returns a shallow copy. A nil Document clones to an empty one.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	maps.Copy(out, d)

	return out
}

// Merge returns a copy of d with every field of patch applied on top.
func (d Document) Merge(patch Document) Document {
	out := d.Clone()
	maps.Copy(out, patch)

	return out
}

// StringField returns the value of a string field, or "" if absent or not a string.
func (d Document) StringField(field string) string {
	s, _ := d[field].(string)
	return s
}

// KeyField returns the field that holds a document's key inside the
// partition. Portfolio settings are keyed by the owning user.
func KeyField(collection string) string {
	switch collection {
	case CollectionPortfolioSettings:
		return "userId"
	case CollectionCacheEntries:
		return "key"
	default:
		return "id"
	}
}

// normalizeName returns the NFC form of a collection name or document key so
// that visually identical keys from different input methods map to one row.
func normalizeName(s string) string {
	return norm.NFC.String(s)
}

// encodeDocument marshals a document for the data column.
func encodeDocument(d Document) (string, error) {
	if d == nil {
		d = Document{}
	}

	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}

	return string(b), nil
}

// decodeDocument unmarshals a data column value.
func decodeDocument(s string) (Document, error) {
	var d Document
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	if d == nil {
		d = Document{}
	}

	return d, nil
}
