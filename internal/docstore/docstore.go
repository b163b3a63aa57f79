// Package docstore defines the persistence collaborator contract: a
// key-document store with save/get/delete by id and simple indexed queries.
// The core never talks to a concrete engine directly.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"moneta/internal/core"
)

// Well-known collections.
const (
	CollectionTransactions = "transactions"
	CollectionAssociations = "associations"
	CollectionTaxonomy     = "taxonomy"
	CollectionPredictions  = "predictions"
)

// ErrNotFound reports a missing document. Get returns it wrapped.
var ErrNotFound = errors.New("document not found")

// Document is a plain key/value record. Dates are stored in their encoded
// core.DateLayout form so the store can range-query them as scalars.
type Document map[string]any

// Query selects documents inside one collection. Zero-value fields are
// ignored; a negative Limit is rejected with core.ErrInvalidArgument.
type Query struct {
	// Eq filters on field equality, all entries must match.
	Eq map[string]any

	// DateField names the encoded-date field bounded by DateFrom/DateTo
	// (inclusive). Empty bounds are open.
	DateField string
	DateFrom  string
	DateTo    string

	OrderBy string
	Desc    bool
	Limit   int
}

// Store is the synchronous persistence collaborator. Implementations must be
// safe for use by a single caller at a time; durability is their concern.
type Store interface {
	Save(ctx context.Context, collection, id string, doc Document) error
	Get(ctx context.Context, collection, id string) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
}

func (q Query) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative query limit %d", core.ErrInvalidArgument, q.Limit)
	}
	return nil
}

// String reads a string field, tolerating missing keys.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Int64 reads a numeric field regardless of how the backend decoded it.
func (d Document) Int64(key string) int64 {
	switch v := d[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Strings reads a string-slice field, tolerating []any from JSON decoding.
func (d Document) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
