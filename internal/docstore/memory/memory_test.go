package memory

import (
	"context"
	"errors"
	"testing"

	"moneta/internal/core"
	"moneta/internal/docstore"
)

func TestSaveGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	doc := docstore.Document{"id": "t1", "date": "2025-01-02", "amount_cents": int64(100)}
	if err := s.Save(ctx, "transactions", "t1", doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(ctx, "transactions", "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.String("date") != "2025-01-02" || got.Int64("amount_cents") != 100 {
		t.Fatalf("unexpected document: %v", got)
	}

	// returned documents must not alias the stored ones
	got["date"] = "mutated"
	again, _ := s.Get(ctx, "transactions", "t1")
	if again.String("date") != "2025-01-02" {
		t.Fatal("stored document was mutated through a returned copy")
	}

	if err := s.Delete(ctx, "transactions", "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "transactions", "t1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	s := New()
	rows := []docstore.Document{
		{"id": "a", "date": "2025-01-10", "type": "expense"},
		{"id": "b", "date": "2025-01-20", "type": "income"},
		{"id": "c", "date": "2025-02-05", "type": "expense"},
	}
	for _, r := range rows {
		if err := s.Save(ctx, "transactions", r.String("id"), r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	t.Run("equality", func(t *testing.T) {
		got, err := s.Query(ctx, "transactions", docstore.Query{
			Eq: map[string]any{"type": "expense"}, OrderBy: "date",
		})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 2 || got[0].String("id") != "a" || got[1].String("id") != "c" {
			t.Fatalf("unexpected result: %v", got)
		}
	})

	t.Run("date range", func(t *testing.T) {
		got, err := s.Query(ctx, "transactions", docstore.Query{
			DateField: "date", DateFrom: "2025-01-15", DateTo: "2025-02-28", OrderBy: "date",
		})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 2 || got[0].String("id") != "b" || got[1].String("id") != "c" {
			t.Fatalf("unexpected result: %v", got)
		}
	})

	t.Run("desc and limit", func(t *testing.T) {
		got, err := s.Query(ctx, "transactions", docstore.Query{OrderBy: "date", Desc: true, Limit: 1})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 1 || got[0].String("id") != "c" {
			t.Fatalf("unexpected result: %v", got)
		}
	})

	t.Run("negative limit", func(t *testing.T) {
		if _, err := s.Query(ctx, "transactions", docstore.Query{Limit: -1}); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
