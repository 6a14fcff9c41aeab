//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// remoteServer fakes the remote document API. E2E tests can't import
// internal packages, so it speaks the wire format directly.
type remoteServer struct {
	*httptest.Server

	mu       sync.Mutex
	docs     map[string]json.RawMessage
	requests []string
}

func newRemoteServer(t *testing.T) *remoteServer {
	t.Helper()

	s := &remoteServer{docs: make(map[string]json.RawMessage)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)

	return s
}

func (s *remoteServer) has(collection, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.docs[collection+"/"+id]

	return ok
}

func (s *remoteServer) requestLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.requests...)
}

func (s *remoteServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/healthz" {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, r.Method+" "+r.URL.Path)

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "collections" || parts[2] != "documents" {
		reply(w, http.StatusNotFound, nil, "no such route")
		return
	}

	key := parts[1] + "/" + parts[3]

	switch r.Method {
	case http.MethodPut:
		var doc json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			reply(w, http.StatusBadRequest, nil, err.Error())
			return
		}

		s.docs[key] = doc
		reply(w, http.StatusOK, doc, "")
	case http.MethodDelete:
		delete(s.docs, key)
		reply(w, http.StatusOK, nil, "")
	default:
		reply(w, http.StatusMethodNotAllowed, nil, "method not allowed")
	}
}

func reply(w http.ResponseWriter, status int, data json.RawMessage, errMsg string) {
	body := map[string]any{"success": errMsg == ""}
	if data != nil {
		body["data"] = data
	}

	if errMsg != "" {
		body["error"] = map[string]string{"message": errMsg}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
