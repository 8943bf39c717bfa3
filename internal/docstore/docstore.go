// Package docstore defines the document-store primitives the messaging core
// rides on: keyed documents grouped into collections, filtered and ordered
// queries with start-after pagination, live snapshot subscriptions, and
// atomic multi-document batches with field transforms.
package docstore

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists is returned when creating a document at an occupied path.
	ErrAlreadyExists = errors.New("document already exists")
)

// Document is a decoded store record.
type Document struct {
	ID   string
	Data map[string]any
}

// Snapshot is the full current result set of a live query. Every change to a
// matching collection redelivers the complete set.
type Snapshot struct {
	Docs []Document
}

// CancelFunc detaches a live subscription.
type CancelFunc func()

// Op is a query filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpLess          Op = "<"
	OpGreater       Op = ">"
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose field matches a value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Cursor is an exclusive pagination position: the ordering value of the
// last-seen document plus that document's id. The id disambiguates equal
// ordering values, so a page boundary falling between two same-valued
// documents cannot drop one.
type Cursor struct {
	Value any
	DocID string
}

// Query describes a collection read. StartAfter is exclusive and interpreted
// in the direction of the ordering: for a descending query it selects
// documents strictly after the cursor position, ties resolved by the cursor
// document's position.
type Query struct {
	Collection string
	Filters    []Filter
	OrderField string
	Descending bool
	Limit      int
	StartAfter *Cursor
}

// Where adds an equality-style filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy sets the ordering field and direction.
func (q Query) OrderBy(field string, descending bool) Query {
	q.OrderField = field
	q.Descending = descending
	return q
}

// WithLimit caps the result count.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// After sets the exclusive pagination cursor to the ordering value and id of
// the last document already seen.
func (q Query) After(value any, docID string) Query {
	q.StartAfter = &Cursor{Value: value, DocID: docID}
	return q
}

// Batch accumulates writes that commit as one atomic unit. Either every
// operation applies or none does; no reader observes a partial batch.
type Batch interface {
	Create(path string, data map[string]any) Batch
	Update(path string, updates map[string]any) Batch
	Commit(ctx context.Context) error
}

// Store is the document-store contract. Field names in updates may use dots
// to address nested map entries ("unreadCount.<userID>").
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Create(ctx context.Context, path string, data map[string]any) error
	Update(ctx context.Context, path string, updates map[string]any) error
	Query(ctx context.Context, q Query) ([]Document, error)
	Listen(q Query, fn func(Snapshot)) (CancelFunc, error)
	Batch() Batch
}

// splitPath separates a document path into its collection and document id.
// "conversations/c1/messages/m1" -> ("conversations/c1/messages", "m1").
func splitPath(path string) (collection, id string, ok bool) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}
