package services

import (
	"context"
	"errors"
	"testing"

	"moneta/internal/assoc"
	"moneta/internal/core"
	"moneta/internal/docstore/memory"
)

func newCoordinator() (*RecurringCoordinator, *TransactionRepo, *assoc.Index) {
	store := memory.New()
	txns := NewTransactionRepo(store)
	index := assoc.NewIndex(store)
	return NewRecurringCoordinator(txns, index), txns, index
}

func recurringAnchor(date core.Date, interval core.Interval, repeats int) core.Transaction {
	return core.Transaction{
		ID:          core.NewTxnID(),
		Date:        date,
		Type:        core.Expense,
		Amount:      core.Money{Cents: 10000},
		Description: "rent",
		Tags:        []core.TagID{"housing"},
		Frequency:   core.Frequency{Nature: core.Recurring, Interval: interval, Repeats: repeats},
		RecurringID: core.NewGroupID(),
	}
}

func TestMaterializeDaily(t *testing.T) {
	ctx := context.Background()
	c, txns, index := newCoordinator()

	anchor, err := c.Materialize(ctx, recurringAnchor(core.NewDate(2025, 3, 1), core.Daily, 3))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	members, err := txns.Group(ctx, anchor.RecurringID)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(members))
	}
	wantDates := []core.Date{core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 2), core.NewDate(2025, 3, 3)}
	for i, m := range members {
		if !m.Date.Equal(wantDates[i]) {
			t.Fatalf("instance %d: expected %s, got %s", i, wantDates[i].Encode(), m.Date.Encode())
		}
		if m.RecurringID != anchor.RecurringID {
			t.Fatalf("instance %d has wrong group id", i)
		}
		if m.Amount != anchor.Amount || m.Type != anchor.Type || m.Frequency != anchor.Frequency {
			t.Fatalf("instance %d is not homogeneous with the anchor", i)
		}
		if m.State != core.StatePersisted {
			t.Fatalf("instance %d not persisted: %s", i, m.State)
		}
	}

	// one association row per instance
	linked, err := index.Query(ctx, "housing")
	if err != nil {
		t.Fatalf("query associations: %v", err)
	}
	if len(linked) != 3 {
		t.Fatalf("expected 3 associations, got %d", len(linked))
	}
}

func TestMaterializeMonthlyCalendarAware(t *testing.T) {
	ctx := context.Background()
	c, txns, _ := newCoordinator()

	anchor, err := c.Materialize(ctx, recurringAnchor(core.NewDate(2019, 1, 28), core.Monthly, 3))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	members, _ := txns.Group(ctx, anchor.RecurringID)
	want := []string{"2019-01-28", "2019-02-28", "2019-03-28"}
	if len(members) != len(want) {
		t.Fatalf("expected %d instances, got %d", len(want), len(members))
	}
	for i, m := range members {
		if m.Date.Encode() != want[i] {
			t.Fatalf("instance %d: expected %s, got %s", i, want[i], m.Date.Encode())
		}
	}
}

func TestMaterializePreconditions(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newCoordinator()

	oneOff := recurringAnchor(core.NewDate(2025, 1, 1), core.Daily, 3)
	oneOff.Frequency.Nature = core.OneTime
	if _, err := c.Materialize(ctx, oneOff); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for non-recurring, got %v", err)
	}

	zero := recurringAnchor(core.NewDate(2025, 1, 1), core.Daily, 0)
	if _, err := c.Materialize(ctx, zero); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero repeats, got %v", err)
	}
}

func TestUpdateRegeneratesFromAnchor(t *testing.T) {
	ctx := context.Background()
	c, txns, _ := newCoordinator()

	anchor, err := c.Materialize(ctx, recurringAnchor(core.NewDate(2025, 3, 1), core.Daily, 3))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	before, _ := txns.Group(ctx, anchor.RecurringID)
	oldIDs := make(map[core.TxnID]struct{}, len(before))
	for _, m := range before {
		oldIDs[m.ID] = struct{}{}
	}

	// edit an arbitrary member (the second one): bump repeats and amount
	edited := before[1]
	edited.Frequency.Repeats = 5
	edited.Amount = core.Money{Cents: 12500}

	if _, err := c.Update(ctx, edited); err != nil {
		t.Fatalf("update: %v", err)
	}

	after, _ := txns.Group(ctx, anchor.RecurringID)
	if len(after) != 5 {
		t.Fatalf("expected 5 members after update, got %d", len(after))
	}
	if !after[0].Date.Equal(anchor.Date) {
		t.Fatalf("anchor date moved: expected %s, got %s", anchor.Date.Encode(), after[0].Date.Encode())
	}
	for i, m := range after {
		if m.Amount.Cents != 12500 {
			t.Fatalf("member %d kept the old amount", i)
		}
		if _, stale := oldIDs[m.ID]; stale {
			t.Fatalf("member %d reused a pre-edit id %s", i, m.ID)
		}
	}
}

func TestUpdatePreconditions(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newCoordinator()

	noGroup := recurringAnchor(core.NewDate(2025, 1, 1), core.Daily, 3)
	noGroup.RecurringID = ""
	if _, err := c.Update(ctx, noGroup); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument without group id, got %v", err)
	}

	unknown := recurringAnchor(core.NewDate(2025, 1, 1), core.Daily, 3)
	if _, err := c.Update(ctx, unknown); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty group, got %v", err)
	}
}

func TestUpdateRejectedEditKeepsGroup(t *testing.T) {
	ctx := context.Background()
	c, txns, _ := newCoordinator()

	anchor, err := c.Materialize(ctx, recurringAnchor(core.NewDate(2025, 3, 1), core.Daily, 3))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	members, _ := txns.Group(ctx, anchor.RecurringID)

	// a one-time frequency on a group member is a caller error: the nature is
	// normalized back to recurring, leaving an empty interval behind
	edited := members[0]
	edited.Frequency = core.Frequency{Nature: core.OneTime}

	if _, err := c.Update(ctx, edited); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	// the rejection happened before the delete phase
	left, _ := txns.Group(ctx, anchor.RecurringID)
	if len(left) != 3 {
		t.Fatalf("rejected edit mutated the group: %d of 3 members survive", len(left))
	}
}

func TestDeleteGroupComplete(t *testing.T) {
	ctx := context.Background()
	c, txns, index := newCoordinator()

	anchor, err := c.Materialize(ctx, recurringAnchor(core.NewDate(2019, 1, 28), core.Monthly, 3))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	members, _ := txns.Group(ctx, anchor.RecurringID)

	// deleting via the February member removes all three
	if err := c.DeleteGroup(ctx, members[1]); err != nil {
		t.Fatalf("delete group: %v", err)
	}

	left, _ := txns.Group(ctx, anchor.RecurringID)
	if len(left) != 0 {
		t.Fatalf("expected empty group, got %d members", len(left))
	}
	linked, _ := index.Query(ctx, "housing")
	if len(linked) != 0 {
		t.Fatalf("association rows survived group deletion: %v", linked)
	}
}
