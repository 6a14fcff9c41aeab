package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/devfolio-sync/internal/store"
)

// recordedRequest is what the fake document server saw.
type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

// documentServer replies with a fixed envelope and records each request.
func documentServer(t *testing.T, status int, reply string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()

	var got []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.EscapedPath()}

		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			assert.NoError(t, json.Unmarshal(b, &rec.body))
		}

		got = append(got, rec)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	return srv, &got
}

func TestCreateDocument(t *testing.T) {
	srv, got := documentServer(t, http.StatusCreated, `{"success":true,"data":{"id":"srv-1","title":"X"}}`)

	doc, err := newTestClient(t, srv.URL).CreateDocument(context.Background(), "projects", store.Document{"title": "X"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", doc["id"])

	require.Len(t, *got, 1)
	assert.Equal(t, http.MethodPost, (*got)[0].method)
	assert.Equal(t, "/collections/projects/documents", (*got)[0].path)
	assert.Equal(t, map[string]any{"title": "X"}, (*got)[0].body)
}

func TestUpdateSetDeleteGet(t *testing.T) {
	tests := []struct {
		name   string
		call   func(c *Client) error
		method string
	}{
		{"update", func(c *Client) error {
			_, err := c.UpdateDocument(context.Background(), "projects", "p1", store.Document{"title": "Y"})
			return err
		}, http.MethodPatch},
		{"set", func(c *Client) error {
			_, err := c.SetDocument(context.Background(), "projects", "p1", store.Document{"title": "Y"})
			return err
		}, http.MethodPut},
		{"delete", func(c *Client) error {
			return c.DeleteDocument(context.Background(), "projects", "p1")
		}, http.MethodDelete},
		{"get", func(c *Client) error {
			_, err := c.GetDocument(context.Background(), "projects", "p1")
			return err
		}, http.MethodGet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := documentServer(t, http.StatusOK, `{"success":true,"data":{"id":"p1"}}`)

			require.NoError(t, tt.call(newTestClient(t, srv.URL)))
			require.Len(t, *got, 1)
			assert.Equal(t, tt.method, (*got)[0].method)
			assert.Equal(t, "/collections/projects/documents/p1", (*got)[0].path)
		})
	}
}

func TestDocumentPathEscaping(t *testing.T) {
	srv, got := documentServer(t, http.StatusOK, `{"success":true}`)

	require.NoError(t, newTestClient(t, srv.URL).DeleteDocument(context.Background(), "projects", "a/b c"))
	assert.Equal(t, "/collections/projects/documents/a%2Fb%20c", (*got)[0].path)
}

func TestDeleteDocument_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NoError(t, newTestClient(t, srv.URL).DeleteDocument(context.Background(), "projects", "p1"))
}

func TestEnvelopeRejected(t *testing.T) {
	srv, _ := documentServer(t, http.StatusOK, `{"success":false,"error":{"message":"Missing or insufficient permissions.","code":"permission-denied"}}`)

	_, err := newTestClient(t, srv.URL).SetDocument(context.Background(), "projects", "p1", store.Document{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "permission-denied", re.Code)
	assert.Equal(t, "Missing or insufficient permissions.", re.Message)
	assert.True(t, IsClientError(err))
}

func TestEnvelopeInvalid(t *testing.T) {
	srv, _ := documentServer(t, http.StatusOK, `not json`)

	_, err := newTestClient(t, srv.URL).GetDocument(context.Background(), "projects", "p1")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestListDocuments(t *testing.T) {
	srv, got := documentServer(t, http.StatusOK, `{"success":true,"data":[{"id":"a"},{"id":"b"}]}`)

	docs, err := newTestClient(t, srv.URL).ListDocuments(context.Background(), "experiences")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[1]["id"])
	assert.Equal(t, "/collections/experiences/documents", (*got)[0].path)
}

func TestListDocuments_EmptyIsNonNil(t *testing.T) {
	srv, _ := documentServer(t, http.StatusOK, `{"success":true}`)

	docs, err := newTestClient(t, srv.URL).ListDocuments(context.Background(), "experiences")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}
