package services

import (
	"context"
	"fmt"
	"log/slog"

	"moneta/internal/assoc"
	"moneta/internal/core"
)

// RecurringCoordinator expands a recurring declaration into its persisted
// instances and keeps the whole group consistent under edits and deletions.
//
// Multi-instance writes are sequential with no transaction wrapping them: a
// persistence failure mid-sequence leaves a partially materialized group.
// That window is accepted (embedded store, no multi-document transactions)
// and detectable by the integrity verify pass.
type RecurringCoordinator struct {
	txns  *TransactionRepo
	assoc *assoc.Index
}

func NewRecurringCoordinator(txns *TransactionRepo, index *assoc.Index) *RecurringCoordinator {
	return &RecurringCoordinator{txns: txns, assoc: index}
}

// Materialize persists the anchor and repeats-1 further instances, each a
// full duplicate of the anchor advanced by one interval unit per step. All
// instances share the anchor's recurring group id. The persisted anchor is
// returned.
func (c *RecurringCoordinator) Materialize(ctx context.Context, anchor core.Transaction) (core.Transaction, error) {
	if anchor.Frequency.Nature != core.Recurring {
		return core.Transaction{}, fmt.Errorf("%w: transaction %s is not recurring", core.ErrInvalidArgument, anchor.ID)
	}
	if err := anchor.Frequency.Validate(); err != nil {
		return core.Transaction{}, err
	}
	stepper, err := StepperFor(anchor.Frequency.Interval)
	if err != nil {
		return core.Transaction{}, err
	}
	if anchor.RecurringID == "" {
		anchor.RecurringID = core.NewGroupID()
	}
	if anchor.ID == "" {
		anchor.ID = core.NewTxnID()
	}
	anchor.State = core.StatePersisted

	if err := c.persistInstance(ctx, anchor); err != nil {
		return core.Transaction{}, err
	}

	for i := 1; i < anchor.Frequency.Repeats; i++ {
		instance := anchor
		instance.ID = core.NewTxnID()
		instance.Date = stepper.Step(anchor.Date, i)
		instance.Tags = anchor.CloneTags()
		if err := c.persistInstance(ctx, instance); err != nil {
			return core.Transaction{}, fmt.Errorf("materialize instance %d of %d: %w", i+1, anchor.Frequency.Repeats, err)
		}
	}

	slog.InfoContext(ctx, "Recurring group materialized",
		"recurring_id", anchor.RecurringID,
		"interval", anchor.Frequency.Interval,
		"instances", anchor.Frequency.Repeats,
		"anchor_date", anchor.Date.Encode())
	return anchor, nil
}

// Update regenerates the whole group from an edited member. The group's
// anchor date is authoritative: the edited transaction's non-date fields are
// applied to a fresh copy dated at the anchor's original date, every existing
// instance is deleted, and the corrected anchor is re-materialized under the
// same group id. The new anchor is returned.
func (c *RecurringCoordinator) Update(ctx context.Context, edited core.Transaction) (core.Transaction, error) {
	if edited.RecurringID == "" {
		return core.Transaction{}, fmt.Errorf("%w: transaction %s has no recurring group", core.ErrInvalidArgument, edited.ID)
	}

	members, err := c.txns.Group(ctx, edited.RecurringID)
	if err != nil {
		return core.Transaction{}, err
	}
	if len(members) == 0 {
		return core.Transaction{}, fmt.Errorf("%w: recurring group %s has no members", core.ErrInvalidArgument, edited.RecurringID)
	}

	corrected := edited
	corrected.ID = core.NewTxnID()
	corrected.Date = members[0].Date // anchor date is authoritative
	corrected.Frequency.Nature = core.Recurring

	// Reject a bad edit before touching the group: the delete phase must only
	// run once the corrected anchor is known to re-materialize.
	if err := corrected.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if _, err := StepperFor(corrected.Frequency.Interval); err != nil {
		return core.Transaction{}, err
	}

	if err := c.deleteMembers(ctx, members); err != nil {
		return core.Transaction{}, err
	}

	// The group is empty here; a crash before Materialize finishes leaves it
	// partially regenerated (no rollback, see type comment).
	anchor, err := c.Materialize(ctx, corrected)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("regenerate group %s: %w", corrected.RecurringID, err)
	}

	slog.InfoContext(ctx, "Recurring group regenerated",
		"recurring_id", anchor.RecurringID,
		"previous_members", len(members),
		"instances", anchor.Frequency.Repeats)
	return anchor, nil
}

// DeleteGroup removes every persisted instance sharing the member's group id
// together with their tag associations.
func (c *RecurringCoordinator) DeleteGroup(ctx context.Context, member core.Transaction) error {
	if member.RecurringID == "" {
		return fmt.Errorf("%w: transaction %s has no recurring group", core.ErrInvalidArgument, member.ID)
	}

	members, err := c.txns.Group(ctx, member.RecurringID)
	if err != nil {
		return err
	}
	if err := c.deleteMembers(ctx, members); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Recurring group deleted",
		"recurring_id", member.RecurringID,
		"deleted", len(members))
	return nil
}

func (c *RecurringCoordinator) persistInstance(ctx context.Context, t core.Transaction) error {
	if err := c.txns.Save(ctx, t); err != nil {
		return err
	}
	if err := c.assoc.Associate(ctx, t.ID, t.Tags); err != nil {
		return err
	}
	return nil
}

func (c *RecurringCoordinator) deleteMembers(ctx context.Context, members []core.Transaction) error {
	for _, m := range members {
		if err := c.assoc.Reconcile(ctx, m.ID, nil); err != nil {
			return err
		}
		if err := c.txns.Delete(ctx, m.ID); err != nil {
			return err
		}
	}
	return nil
}
