// Package assoc keeps the transaction-tag many-to-many membership queryable:
// one association row per (transaction, tag) pair in the docstore.
package assoc

import (
	"context"
	"fmt"
	"sort"

	"moneta/internal/core"
	"moneta/internal/docstore"
)

const (
	fieldTransactionID = "transaction_id"
	fieldTagID         = "tag_id"
)

type Index struct {
	store docstore.Store
}

func NewIndex(store docstore.Store) *Index {
	return &Index{store: store}
}

func rowID(txnID core.TxnID, tagID core.TagID) string {
	return string(txnID) + "/" + string(tagID)
}

func row(txnID core.TxnID, tagID core.TagID) docstore.Document {
	return docstore.Document{
		fieldTransactionID: string(txnID),
		fieldTagID:         string(tagID),
	}
}

// Associate writes one association row per tag.
func (ix *Index) Associate(ctx context.Context, txnID core.TxnID, tagIDs []core.TagID) error {
	for _, tagID := range tagIDs {
		id := rowID(txnID, tagID)
		if err := ix.store.Save(ctx, docstore.CollectionAssociations, id, row(txnID, tagID)); err != nil {
			return fmt.Errorf("associate %s with %s: %w", txnID, tagID, err)
		}
	}
	return nil
}

// Reconcile diffs the stored associations for a transaction against newTags:
// rows for dropped tags are deleted, rows for added tags are inserted.
func (ix *Index) Reconcile(ctx context.Context, txnID core.TxnID, newTags []core.TagID) error {
	current, err := ix.TagsFor(ctx, txnID)
	if err != nil {
		return err
	}

	want := make(map[core.TagID]struct{}, len(newTags))
	for _, tagID := range newTags {
		want[tagID] = struct{}{}
	}
	have := make(map[core.TagID]struct{}, len(current))
	for _, tagID := range current {
		have[tagID] = struct{}{}
	}

	for _, tagID := range current {
		if _, keep := want[tagID]; keep {
			continue
		}
		if err := ix.store.Delete(ctx, docstore.CollectionAssociations, rowID(txnID, tagID)); err != nil {
			return fmt.Errorf("drop association %s/%s: %w", txnID, tagID, err)
		}
	}
	for _, tagID := range newTags {
		if _, present := have[tagID]; present {
			continue
		}
		if err := ix.store.Save(ctx, docstore.CollectionAssociations, rowID(txnID, tagID), row(txnID, tagID)); err != nil {
			return fmt.Errorf("add association %s/%s: %w", txnID, tagID, err)
		}
	}
	return nil
}

// StripTag deletes every association row for tagID and returns the affected
// transaction ids, deduplicated, so the caller can update each tag set.
func (ix *Index) StripTag(ctx context.Context, tagID core.TagID) ([]core.TxnID, error) {
	docs, err := ix.store.Query(ctx, docstore.CollectionAssociations, docstore.Query{
		Eq: map[string]any{fieldTagID: string(tagID)},
	})
	if err != nil {
		return nil, fmt.Errorf("query associations for tag %s: %w", tagID, err)
	}

	affected := make([]core.TxnID, 0, len(docs))
	for _, doc := range docs {
		txnID := core.TxnID(doc.String(fieldTransactionID))
		if err := ix.store.Delete(ctx, docstore.CollectionAssociations, rowID(txnID, tagID)); err != nil {
			return nil, fmt.Errorf("delete association %s/%s: %w", txnID, tagID, err)
		}
		affected = append(affected, txnID)
	}
	return dedupe(affected), nil
}

// Query returns the transactions associated with one tag.
func (ix *Index) Query(ctx context.Context, tagID core.TagID) ([]core.TxnID, error) {
	docs, err := ix.store.Query(ctx, docstore.CollectionAssociations, docstore.Query{
		Eq: map[string]any{fieldTagID: string(tagID)},
	})
	if err != nil {
		return nil, fmt.Errorf("query associations for tag %s: %w", tagID, err)
	}
	out := make([]core.TxnID, 0, len(docs))
	for _, doc := range docs {
		out = append(out, core.TxnID(doc.String(fieldTransactionID)))
	}
	return dedupe(out), nil
}

// QueryAny returns the union of transactions associated with any of the tags.
func (ix *Index) QueryAny(ctx context.Context, tagIDs []core.TagID) ([]core.TxnID, error) {
	var all []core.TxnID
	for _, tagID := range tagIDs {
		ids, err := ix.Query(ctx, tagID)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	return dedupe(all), nil
}

// TagsFor returns the tags currently associated with a transaction.
func (ix *Index) TagsFor(ctx context.Context, txnID core.TxnID) ([]core.TagID, error) {
	docs, err := ix.store.Query(ctx, docstore.CollectionAssociations, docstore.Query{
		Eq: map[string]any{fieldTransactionID: string(txnID)},
	})
	if err != nil {
		return nil, fmt.Errorf("query associations for transaction %s: %w", txnID, err)
	}
	out := make([]core.TagID, 0, len(docs))
	for _, doc := range docs {
		out = append(out, core.TagID(doc.String(fieldTagID)))
	}
	return out, nil
}

func dedupe(ids []core.TxnID) []core.TxnID {
	seen := make(map[core.TxnID]struct{}, len(ids))
	out := make([]core.TxnID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
