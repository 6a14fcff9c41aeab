package store

import "fmt"

// OpKind is the tag stored in the sync_status.operation column.
type OpKind string

// Operation kinds.
const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
	OpSet    OpKind = "set"
)

// ParseOpKind converts a database TEXT value to an OpKind.
func ParseOpKind(s string) (OpKind, error) {
	switch OpKind(s) {
	case OpCreate, OpUpdate, OpDelete, OpSet:
		return OpKind(s), nil
	default:
		return "", fmt.Errorf("store: unknown operation kind %q", s)
	}
}

// DocumentRef identifies a document within a collection.
type DocumentRef struct {
	Collection string
	DocumentID string
}

func (r DocumentRef) String() string {
	return r.Collection + "/" + r.DocumentID
}

// Operation is a mutation intent. The concrete types Create, Update, Delete
// and Set are the only implementations; the unexported method closes the set
// so a type switch over them is exhaustive.
type Operation interface {
	Kind() OpKind
	Target() DocumentRef
	payload() Document
}

// Create asks the remote store to create a new document in Collection. The
// remote assigns the final id; DocumentID is the local key.
type Create struct {
	Collection string
	DocumentID string
	Data       Document
}

// Update applies a partial patch to an existing remote document.
type Update struct {
	Collection string
	DocumentID string
	Data       Document
}

// Delete removes a remote document.
type Delete struct {
	Collection string
	DocumentID string
}

// Set replaces (or inserts) a remote document under a known id.
type Set struct {
	Collection string
	DocumentID string
	Data       Document
}

func (Create) Kind() OpKind { return OpCreate }
func (Update) Kind() OpKind { return OpUpdate }
func (Delete) Kind() OpKind { return OpDelete }
func (Set) Kind() OpKind    { return OpSet }

func (o Create) Target() DocumentRef { return DocumentRef{o.Collection, o.DocumentID} }
func (o Update) Target() DocumentRef { return DocumentRef{o.Collection, o.DocumentID} }
func (o Delete) Target() DocumentRef { return DocumentRef{o.Collection, o.DocumentID} }
func (o Set) Target() DocumentRef    { return DocumentRef{o.Collection, o.DocumentID} }

func (o Create) payload() Document { return o.Data }
func (o Update) payload() Document { return o.Data }
func (Delete) payload() Document   { return nil }
func (o Set) payload() Document    { return o.Data }

// NewOperation builds the Operation variant for kind. Data is ignored for
// deletes.
func NewOperation(kind OpKind, collection, documentID string, data Document) (Operation, error) {
	switch kind {
	case OpCreate:
		return Create{Collection: collection, DocumentID: documentID, Data: data}, nil
	case OpUpdate:
		return Update{Collection: collection, DocumentID: documentID, Data: data}, nil
	case OpDelete:
		return Delete{Collection: collection, DocumentID: documentID}, nil
	case OpSet:
		return Set{Collection: collection, DocumentID: documentID, Data: data}, nil
	default:
		return nil, fmt.Errorf("store: unknown operation kind %q", kind)
	}
}

// PendingOperation is a queued mutation awaiting confirmation from the
// remote store. It is immutable once enqueued.
type PendingOperation struct {
	ID        string    // assigned by the store, unique and increasing
	Timestamp int64     // enqueue time, Unix milliseconds
	Op        Operation // never nil
}

// Kind returns the operation tag.
func (p PendingOperation) Kind() OpKind { return p.Op.Kind() }

// Collection returns the target collection.
func (p PendingOperation) Collection() string { return p.Op.Target().Collection }

// DocumentID returns the target document id.
func (p PendingOperation) DocumentID() string { return p.Op.Target().DocumentID }

// Data returns the operation payload, nil for deletes.
func (p PendingOperation) Data() Document { return p.Op.payload() }
