package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tonimelisma/devfolio-sync/internal/store"
)

func collectionPath(collection string) string {
	return "/collections/" + url.PathEscape(collection) + "/documents"
}

func documentPath(collection, id string) string {
	return collectionPath(collection) + "/" + url.PathEscape(id)
}

// CreateDocument creates a document; the remote assigns its id. The created
// document is returned.
func (c *Client) CreateDocument(ctx context.Context, collection string, data store.Document) (store.Document, error) {
	return send[store.Document](ctx, c, http.MethodPost, collectionPath(collection), data)
}

// UpdateDocument applies a partial update to an existing document.
func (c *Client) UpdateDocument(ctx context.Context, collection, id string, data store.Document) (store.Document, error) {
	return send[store.Document](ctx, c, http.MethodPatch, documentPath(collection, id), data)
}

// SetDocument replaces the document stored under id, creating it if absent.
func (c *Client) SetDocument(ctx context.Context, collection, id string, data store.Document) (store.Document, error) {
	return send[store.Document](ctx, c, http.MethodPut, documentPath(collection, id), data)
}

// DeleteDocument removes a document.
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := send[json.RawMessage](ctx, c, http.MethodDelete, documentPath(collection, id), nil)
	return err
}

// GetDocument returns one document.
func (c *Client) GetDocument(ctx context.Context, collection, id string) (store.Document, error) {
	return send[store.Document](ctx, c, http.MethodGet, documentPath(collection, id), nil)
}

// ListDocuments returns every document in a collection.
func (c *Client) ListDocuments(ctx context.Context, collection string) ([]store.Document, error) {
	docs, err := send[[]store.Document](ctx, c, http.MethodGet, collectionPath(collection), nil)
	if err != nil {
		return nil, err
	}

	if docs == nil {
		docs = []store.Document{}
	}

	return docs, nil
}

// send performs one request and decodes the Result envelope.
func send[T any](ctx context.Context, c *Client, method, path string, payload any) (T, error) {
	var zero T

	var body []byte

	if payload != nil {
		var err error

		body, err = json.Marshal(payload)
		if err != nil {
			return zero, fmt.Errorf("remote: encoding %s %s: %w", method, path, err)
		}
	}

	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return zero, nil
	}

	var env Result[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, &Error{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Request.Header.Get(requestIDHeader),
			Message:    "decoding envelope: " + err.Error(),
			Err:        ErrInvalidResponse,
		}
	}

	if !env.Success {
		e := &Error{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Request.Header.Get(requestIDHeader),
			Message:    "operation failed",
			Err:        ErrRejected,
		}

		if env.Error != nil {
			e.Message = env.Error.Message
			e.Code = env.Error.Code
		}

		return zero, e
	}

	return env.Data, nil
}
