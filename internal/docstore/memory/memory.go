// Package memory is the in-memory docstore backend, used as the default
// backend and as the substrate for package tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"moneta/internal/docstore"
)

type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]docstore.Document
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]docstore.Document)}
}

func (s *Store) Save(_ context.Context, collection, id string, doc docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]docstore.Document)
		s.collections[collection] = coll
	}
	coll[id] = cloneDoc(doc)
	return nil
}

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	return cloneDoc(doc), nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *Store) Query(_ context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []docstore.Document
	for _, doc := range s.collections[collection] {
		if matches(doc, q) {
			out = append(out, cloneDoc(doc))
		}
	}

	if q.OrderBy != "" {
		sort.Slice(out, func(i, j int) bool {
			a, b := out[i][q.OrderBy], out[j][q.OrderBy]
			if q.Desc {
				return lessValue(b, a)
			}
			return lessValue(a, b)
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(doc docstore.Document, q docstore.Query) bool {
	for field, want := range q.Eq {
		if !equalValue(doc[field], want) {
			return false
		}
	}
	if q.DateField != "" {
		v, _ := doc[q.DateField].(string)
		if q.DateFrom != "" && v < q.DateFrom {
			return false
		}
		if q.DateTo != "" && v > q.DateTo {
			return false
		}
	}
	return true
}

// equalValue compares across the numeric types a backend may hand back.
func equalValue(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func lessValue(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, bok := asFloat(b)
		return bok && af < bf
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return as < bs
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// cloneDoc guards callers against aliasing the stored maps and slices.
func cloneDoc(doc docstore.Document) docstore.Document {
	out := make(docstore.Document, len(doc))
	for k, v := range doc {
		switch t := v.(type) {
		case []string:
			out[k] = append([]string(nil), t...)
		case []any:
			out[k] = append([]any(nil), t...)
		default:
			out[k] = v
		}
	}
	return out
}
