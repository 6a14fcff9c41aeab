package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
)

// fakeRemote is an in-memory remote document store speaking the envelope
// protocol, with a health endpoint for the connectivity probe.
type fakeRemote struct {
	*httptest.Server

	mu       sync.Mutex
	docs     map[string]map[string]any // "collection/id" -> document
	requests []string                  // "METHOD /path"
	nextID   int
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()

	f := &fakeRemote{docs: make(map[string]map[string]any)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)

	return f
}

func (f *fakeRemote) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.requests)
}

func (f *fakeRemote) Doc(collection, id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[collection+"/"+id]

	return doc, ok
}

func (f *fakeRemote) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/healthz" {
		w.WriteHeader(http.StatusOK)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	// /collections/{c}/documents[/{id}]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "collections" || parts[2] != "documents" {
		writeEnvelope(w, http.StatusNotFound, nil, "no such route")
		return
	}

	collection := parts[1]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			var list []map[string]any

			for _, key := range slices.Sorted(maps.Keys(f.docs)) {
				if strings.HasPrefix(key, collection+"/") {
					list = append(list, f.docs[key])
				}
			}

			writeEnvelope(w, http.StatusOK, list, "")
		case http.MethodPost:
			var doc map[string]any
			if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
				writeEnvelope(w, http.StatusBadRequest, nil, err.Error())
				return
			}

			f.nextID++
			id := fmt.Sprintf("srv-%d", f.nextID)
			doc["id"] = id
			f.docs[collection+"/"+id] = doc
			writeEnvelope(w, http.StatusCreated, doc, "")
		default:
			writeEnvelope(w, http.StatusMethodNotAllowed, nil, "method not allowed")
		}

		return
	}

	key := collection + "/" + parts[3]

	switch r.Method {
	case http.MethodGet:
		doc, ok := f.docs[key]
		if !ok {
			writeEnvelope(w, http.StatusNotFound, nil, "not found")
			return
		}

		writeEnvelope(w, http.StatusOK, doc, "")
	case http.MethodPut, http.MethodPatch:
		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeEnvelope(w, http.StatusBadRequest, nil, err.Error())
			return
		}

		if r.Method == http.MethodPatch {
			current, ok := f.docs[key]
			if !ok {
				writeEnvelope(w, http.StatusNotFound, nil, "not found")
				return
			}

			merged := maps.Clone(current)
			maps.Copy(merged, doc)
			doc = merged
		}

		f.docs[key] = doc
		writeEnvelope(w, http.StatusOK, doc, "")
	case http.MethodDelete:
		if _, ok := f.docs[key]; !ok {
			writeEnvelope(w, http.StatusNotFound, nil, "not found")
			return
		}

		delete(f.docs, key)
		writeEnvelope(w, http.StatusOK, nil, "")
	default:
		writeEnvelope(w, http.StatusMethodNotAllowed, nil, "method not allowed")
	}
}

func writeEnvelope(w http.ResponseWriter, status int, data any, errMsg string) {
	body := map[string]any{"success": errMsg == ""}
	if data != nil {
		body["data"] = data
	}

	if errMsg != "" {
		body["error"] = map[string]string{"message": errMsg}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck // test server
}
