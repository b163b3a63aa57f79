package assoc

import (
	"context"
	"testing"

	"moneta/internal/core"
	"moneta/internal/docstore/memory"
)

func TestAssociateAndQuery(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(memory.New())

	if err := ix.Associate(ctx, "t1", []core.TagID{"food", "fun"}); err != nil {
		t.Fatalf("associate: %v", err)
	}
	if err := ix.Associate(ctx, "t2", []core.TagID{"food"}); err != nil {
		t.Fatalf("associate: %v", err)
	}

	got, err := ix.Query(ctx, "food")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0] != "t1" || got[1] != "t2" {
		t.Fatalf("unexpected result: %v", got)
	}

	got, err = ix.Query(ctx, "fun")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0] != "t1" {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(memory.New())

	ix.Associate(ctx, "t1", []core.TagID{"a", "b"})
	if err := ix.Reconcile(ctx, "t1", []core.TagID{"b", "c"}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	tags, err := ix.TagsFor(ctx, "t1")
	if err != nil {
		t.Fatalf("tags for: %v", err)
	}
	want := map[core.TagID]bool{"b": true, "c": true}
	if len(tags) != 2 || !want[tags[0]] || !want[tags[1]] {
		t.Fatalf("unexpected tags: %v", tags)
	}

	// reconcile to nil clears everything
	if err := ix.Reconcile(ctx, "t1", nil); err != nil {
		t.Fatalf("reconcile nil: %v", err)
	}
	tags, _ = ix.TagsFor(ctx, "t1")
	if len(tags) != 0 {
		t.Fatalf("expected no tags, got %v", tags)
	}
}

func TestStripTag(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(memory.New())

	ix.Associate(ctx, "t1", []core.TagID{"food", "fun"})
	ix.Associate(ctx, "t2", []core.TagID{"food"})
	ix.Associate(ctx, "t3", []core.TagID{"fun"})

	affected, err := ix.StripTag(ctx, "food")
	if err != nil {
		t.Fatalf("strip: %v", err)
	}
	if len(affected) != 2 || affected[0] != "t1" || affected[1] != "t2" {
		t.Fatalf("unexpected affected set: %v", affected)
	}

	if got, _ := ix.Query(ctx, "food"); len(got) != 0 {
		t.Fatalf("food associations survived strip: %v", got)
	}
	// other tags untouched
	if got, _ := ix.Query(ctx, "fun"); len(got) != 2 {
		t.Fatalf("fun associations damaged: %v", got)
	}
}

func TestQueryAnyUnion(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(memory.New())

	ix.Associate(ctx, "t1", []core.TagID{"a", "b"})
	ix.Associate(ctx, "t2", []core.TagID{"b"})
	ix.Associate(ctx, "t3", []core.TagID{"c"})

	got, err := ix.QueryAny(ctx, []core.TagID{"a", "b"})
	if err != nil {
		t.Fatalf("query any: %v", err)
	}
	// t1 matches both tags but appears once
	if len(got) != 2 || got[0] != "t1" || got[1] != "t2" {
		t.Fatalf("unexpected union: %v", got)
	}
}
