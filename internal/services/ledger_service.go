package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"moneta/internal/assoc"
	"moneta/internal/core"
	"moneta/internal/docstore"
	"moneta/internal/notify"
	"moneta/internal/predict"
	"moneta/internal/tags"
)

// LedgerService is the single entry point for everything above the core. It
// sequences cross-component operations so a caller never observes the
// taxonomy, the transactions and the association index disagreeing with each
// other.
type LedgerService struct {
	tags      *tags.Store
	txns      *TransactionRepo
	assoc     *assoc.Index
	recurring *RecurringCoordinator
	events    *notify.Channel
	predictor *predict.Predictor // optional
}

func NewLedgerService(tagStore *tags.Store, store docstore.Store, events *notify.Channel, predictor *predict.Predictor) *LedgerService {
	txns := NewTransactionRepo(store)
	index := assoc.NewIndex(store)
	return &LedgerService{
		tags:      tagStore,
		txns:      txns,
		assoc:     index,
		recurring: NewRecurringCoordinator(txns, index),
		events:    events,
		predictor: predictor,
	}
}

// TransactionPatch is the explicit edit command: nil fields are untouched.
// Edits return their result synchronously; there is no callback registration.
type TransactionPatch struct {
	Date        *core.Date
	Type        *core.TransactionType
	Amount      *core.Money
	Description *string
	Note        *string
	Tags        *[]core.TagID
	Frequency   *core.Frequency
}

func (p TransactionPatch) apply(t core.Transaction) core.Transaction {
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	if p.Tags != nil {
		t.Tags = append([]core.TagID(nil), (*p.Tags)...)
	}
	if p.Frequency != nil {
		t.Frequency = *p.Frequency
	}
	return t
}

// RecordTransaction validates and persists a draft. Recurring drafts are
// materialized into their full instance set; the persisted anchor is
// returned.
func (s *LedgerService) RecordTransaction(ctx context.Context, draft core.Transaction) (core.Transaction, error) {
	if draft.State == core.StateDeleted {
		return core.Transaction{}, fmt.Errorf("%w: cannot record a deleted transaction", core.ErrInvalidArgument)
	}
	if err := draft.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkTagsExist(draft.Tags); err != nil {
		return core.Transaction{}, err
	}
	if draft.ID == "" {
		draft.ID = core.NewTxnID()
	}

	if draft.Frequency.Nature == core.Recurring {
		anchor, err := s.recurring.Materialize(ctx, draft)
		if err != nil {
			return core.Transaction{}, err
		}
		return anchor, nil
	}

	draft.State = core.StatePersisted
	if err := s.txns.Save(ctx, draft); err != nil {
		return core.Transaction{}, err
	}
	if err := s.assoc.Associate(ctx, draft.ID, draft.Tags); err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction recorded",
		"transaction_id", draft.ID,
		"type", draft.Type,
		"amount_cents", draft.Amount.Cents,
		"date", draft.Date.Encode())
	return draft, nil
}

// EditTransaction applies a patch to a persisted transaction. Editing the
// date of a recurring member is an explicitly rejected operation: group dates
// only move through regeneration.
func (s *LedgerService) EditTransaction(ctx context.Context, id core.TxnID, patch TransactionPatch) (core.Transaction, error) {
	current, err := s.getPersisted(ctx, id, "edit")
	if err != nil {
		return core.Transaction{}, err
	}

	if current.IsRecurring() {
		if patch.Date != nil {
			return core.Transaction{}, fmt.Errorf("%w: the date of a recurring instance cannot be edited", core.ErrInvalidArgument)
		}
		result, err := s.editRecurring(ctx, current, patch)
		if err != nil {
			return core.Transaction{}, err
		}
		s.events.Publish(ctx, notify.Event{Kind: notify.EventEdited, Transaction: result})
		return result, nil
	}

	if patch.Frequency != nil {
		return core.Transaction{}, fmt.Errorf("%w: cannot change the frequency of a one-off transaction", core.ErrInvalidArgument)
	}

	edited := patch.apply(current)
	if err := edited.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkTagsExist(edited.Tags); err != nil {
		return core.Transaction{}, err
	}
	if err := s.txns.Save(ctx, edited); err != nil {
		return core.Transaction{}, err
	}
	if patch.Tags != nil {
		if err := s.assoc.Reconcile(ctx, edited.ID, edited.Tags); err != nil {
			return core.Transaction{}, err
		}
	}

	slog.InfoContext(ctx, "Transaction edited", "transaction_id", edited.ID)
	s.events.Publish(ctx, notify.Event{Kind: notify.EventEdited, Transaction: edited})
	return edited, nil
}

func (s *LedgerService) editRecurring(ctx context.Context, current core.Transaction, patch TransactionPatch) (core.Transaction, error) {
	edited := patch.apply(current)
	if err := edited.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkTagsExist(edited.Tags); err != nil {
		return core.Transaction{}, err
	}
	return s.recurring.Update(ctx, edited)
}

// DeleteTransaction deletes a single persisted record and its associations.
// For a recurring member this deletes only that instance; DeleteAllRecurringInstances
// removes the whole group.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id core.TxnID) error {
	current, err := s.getPersisted(ctx, id, "delete")
	if err != nil {
		return err
	}

	if err := s.assoc.Reconcile(ctx, id, nil); err != nil {
		return err
	}
	if err := s.txns.Delete(ctx, id); err != nil {
		return err
	}

	current.State = core.StateDeleted
	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", id)
	s.events.Publish(ctx, notify.Event{Kind: notify.EventDeleted, Transaction: current})
	return nil
}

// DeleteAllRecurringInstances deletes the whole recurring group the given
// transaction belongs to.
func (s *LedgerService) DeleteAllRecurringInstances(ctx context.Context, id core.TxnID) error {
	current, err := s.getPersisted(ctx, id, "delete")
	if err != nil {
		return err
	}
	if err := s.recurring.DeleteGroup(ctx, current); err != nil {
		return err
	}

	current.State = core.StateDeleted
	s.events.Publish(ctx, notify.Event{Kind: notify.EventDeleted, Transaction: current})
	return nil
}

// RemoveParentTag removes a parent tag and its children from the taxonomy,
// then strips every removed id from the transactions referencing it.
func (s *LedgerService) RemoveParentTag(ctx context.Context, display string) error {
	removed, err := s.tags.RemoveParentTag(ctx, display)
	if err != nil {
		return err
	}
	for _, tag := range removed {
		if err := s.stripTagFromTransactions(ctx, tag.ID); err != nil {
			return err
		}
	}
	return nil
}

// RemoveChildTag removes one child tag and strips it from every transaction
// referencing it.
func (s *LedgerService) RemoveChildTag(ctx context.Context, display, parentDisplay string) error {
	removed, err := s.tags.RemoveChildTag(ctx, display, parentDisplay)
	if err != nil {
		return err
	}
	return s.stripTagFromTransactions(ctx, removed.ID)
}

func (s *LedgerService) stripTagFromTransactions(ctx context.Context, tagID core.TagID) error {
	affected, err := s.assoc.StripTag(ctx, tagID)
	if err != nil {
		return err
	}
	for _, txnID := range affected {
		t, err := s.txns.Get(ctx, txnID)
		if errors.Is(err, docstore.ErrNotFound) {
			// Orphan association row; the verify pass cleans these up.
			slog.WarnContext(ctx, "Association referenced missing transaction",
				"transaction_id", txnID, "tag_id", tagID)
			continue
		}
		if err != nil {
			return err
		}
		t.Tags = t.WithoutTag(tagID)
		if err := s.txns.Save(ctx, t); err != nil {
			return err
		}
	}
	if len(affected) > 0 {
		slog.InfoContext(ctx, "Tag stripped from transactions",
			"tag_id", tagID, "transactions", len(affected))
	}
	return nil
}

// Tag CRUD pass-throughs: the orchestrator is the one API surface callers use.

func (s *LedgerService) AddParentTag(ctx context.Context, display string) (core.Tag, error) {
	return s.tags.AddParentTag(ctx, display)
}

func (s *LedgerService) AddChildTag(ctx context.Context, display, parentDisplay string) (core.Tag, error) {
	return s.tags.AddChildTag(ctx, display, parentDisplay)
}

func (s *LedgerService) RenameParentTag(ctx context.Context, oldDisplay, newDisplay string) (core.Tag, error) {
	return s.tags.RenameParentTag(ctx, oldDisplay, newDisplay)
}

func (s *LedgerService) RenameChildTag(ctx context.Context, oldDisplay, newDisplay, parentDisplay string) (core.Tag, error) {
	return s.tags.RenameChildTag(ctx, oldDisplay, newDisplay, parentDisplay)
}

func (s *LedgerService) AllTags() []core.Tag            { return s.tags.AllTags() }
func (s *LedgerService) AllParentTags() []core.Tag      { return s.tags.AllParentTags() }
func (s *LedgerService) IsChildTag(d, p string) bool    { return s.tags.IsChildTag(d, p) }
func (s *LedgerService) ChildrenTags(parentDisplay string) ([]core.Tag, error) {
	return s.tags.ChildrenTags(parentDisplay)
}

// Transaction loads.

func (s *LedgerService) TransactionsByRange(ctx context.Context, from, to core.Date) ([]core.Transaction, error) {
	return s.txns.ByRange(ctx, from, to)
}

func (s *LedgerService) TransactionsByType(ctx context.Context, typ core.TransactionType) ([]core.Transaction, error) {
	return s.txns.ByType(ctx, typ)
}

// TransactionsByTag loads every transaction associated with a tag, ordered by
// date then id.
func (s *LedgerService) TransactionsByTag(ctx context.Context, tagID core.TagID) ([]core.Transaction, error) {
	ids, err := s.assoc.Query(ctx, tagID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(ids))
	for _, id := range ids {
		t, err := s.txns.Get(ctx, id)
		if errors.Is(err, docstore.ErrNotFound) {
			slog.WarnContext(ctx, "Association referenced missing transaction",
				"transaction_id", id, "tag_id", tagID)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RefreshPredictions recomputes the prediction cache from current expenses.
// Prediction persistence failures are logged and suppressed: predictions are
// a soft cache and must never fail a caller.
func (s *LedgerService) RefreshPredictions(ctx context.Context) error {
	if s.predictor == nil {
		return nil
	}
	expenses, err := s.txns.ByType(ctx, core.Expense)
	if err != nil {
		return err
	}
	if err := s.predictor.Refresh(ctx, expenses); err != nil {
		slog.WarnContext(ctx, "Prediction refresh failed, suppressed", "error", err)
	}
	return nil
}

func (s *LedgerService) checkTagsExist(tagIDs []core.TagID) error {
	for _, tagID := range tagIDs {
		if _, ok := s.tags.TagByID(tagID); !ok {
			return fmt.Errorf("%w: tag %s does not exist", core.ErrInvalidTag, tagID)
		}
	}
	return nil
}

// getPersisted loads a transaction for mutation. A missing record means the
// transaction was deleted or never persisted; both are caller errors.
func (s *LedgerService) getPersisted(ctx context.Context, id core.TxnID, op string) (core.Transaction, error) {
	current, err := s.txns.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return core.Transaction{}, fmt.Errorf("%w: cannot %s transaction %s: not persisted or already deleted", core.ErrInvalidArgument, op, id)
	}
	if err != nil {
		return core.Transaction{}, err
	}
	return current, nil
}
