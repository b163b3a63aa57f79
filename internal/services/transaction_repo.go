package services

import (
	"context"
	"fmt"

	"moneta/internal/core"
	"moneta/internal/docstore"
)

// TransactionRepo maps transactions onto the docstore's transactions
// collection. It is deliberately dumb: all invariants live in the
// coordinator and the ledger service above it.
type TransactionRepo struct {
	store docstore.Store
}

func NewTransactionRepo(store docstore.Store) *TransactionRepo {
	return &TransactionRepo{store: store}
}

func (r *TransactionRepo) Save(ctx context.Context, t core.Transaction) error {
	if err := r.store.Save(ctx, docstore.CollectionTransactions, string(t.ID), encodeTransaction(t)); err != nil {
		return fmt.Errorf("save transaction %s: %w", t.ID, err)
	}
	return nil
}

func (r *TransactionRepo) Get(ctx context.Context, id core.TxnID) (core.Transaction, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionTransactions, string(id))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return decodeTransaction(doc)
}

func (r *TransactionRepo) Delete(ctx context.Context, id core.TxnID) error {
	if err := r.store.Delete(ctx, docstore.CollectionTransactions, string(id)); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

// Group returns the members of a recurring group ordered by date ascending;
// the first member is the group's anchor.
func (r *TransactionRepo) Group(ctx context.Context, groupID core.GroupID) ([]core.Transaction, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionTransactions, docstore.Query{
		Eq:      map[string]any{"recurring_id": string(groupID)},
		OrderBy: "date",
	})
	if err != nil {
		return nil, fmt.Errorf("query recurring group %s: %w", groupID, err)
	}
	return decodeAll(docs)
}

// ByRange returns transactions with from <= date <= to, ordered by date.
func (r *TransactionRepo) ByRange(ctx context.Context, from, to core.Date) ([]core.Transaction, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionTransactions, docstore.Query{
		DateField: "date",
		DateFrom:  from.Encode(),
		DateTo:    to.Encode(),
		OrderBy:   "date",
	})
	if err != nil {
		return nil, fmt.Errorf("query transactions by range: %w", err)
	}
	return decodeAll(docs)
}

// ByType returns transactions of one type ordered by date.
func (r *TransactionRepo) ByType(ctx context.Context, typ core.TransactionType) ([]core.Transaction, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionTransactions, docstore.Query{
		Eq:      map[string]any{"type": string(typ)},
		OrderBy: "date",
	})
	if err != nil {
		return nil, fmt.Errorf("query transactions by type %s: %w", typ, err)
	}
	return decodeAll(docs)
}

// All returns every persisted transaction (verify pass helper).
func (r *TransactionRepo) All(ctx context.Context) ([]core.Transaction, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionTransactions, docstore.Query{OrderBy: "date"})
	if err != nil {
		return nil, fmt.Errorf("query all transactions: %w", err)
	}
	return decodeAll(docs)
}

func encodeTransaction(t core.Transaction) docstore.Document {
	tags := make([]string, len(t.Tags))
	for i, tag := range t.Tags {
		tags[i] = string(tag)
	}
	return docstore.Document{
		"id":           string(t.ID),
		"date":         t.Date.Encode(),
		"type":         string(t.Type),
		"amount_cents": t.Amount.Cents,
		"description":  t.Description,
		"note":         t.Note,
		"tags":         tags,
		"nature":       string(t.Frequency.Nature),
		"interval":     string(t.Frequency.Interval),
		"repeats":      int64(t.Frequency.Repeats),
		"recurring_id": string(t.RecurringID),
		"state":        string(t.State),
	}
}

func decodeTransaction(doc docstore.Document) (core.Transaction, error) {
	date, err := core.ParseDate(doc.String("date"))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", doc.String("id"), err)
	}

	rawTags := doc.Strings("tags")
	tags := make([]core.TagID, len(rawTags))
	for i, tag := range rawTags {
		tags[i] = core.TagID(tag)
	}

	return core.Transaction{
		ID:          core.TxnID(doc.String("id")),
		Date:        date,
		Type:        core.TransactionType(doc.String("type")),
		Amount:      core.Money{Cents: doc.Int64("amount_cents")},
		Description: doc.String("description"),
		Note:        doc.String("note"),
		Tags:        tags,
		Frequency: core.Frequency{
			Nature:   core.Nature(doc.String("nature")),
			Interval: core.Interval(doc.String("interval")),
			Repeats:  int(doc.Int64("repeats")),
		},
		RecurringID: core.GroupID(doc.String("recurring_id")),
		State:       core.State(doc.String("state")),
	}, nil
}

func decodeAll(docs []docstore.Document) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(docs))
	for _, doc := range docs {
		t, err := decodeTransaction(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
