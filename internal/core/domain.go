package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"

	OneTime   Nature = "one_time"
	Recurring Nature = "recurring"

	Daily   Interval = "daily"
	Weekly  Interval = "weekly"
	Monthly Interval = "monthly"
	Yearly  Interval = "yearly"

	StateDraft     State = "draft"
	StatePersisted State = "persisted"
	StateDeleted   State = "deleted"
)

// DateLayout is the encoding used wherever a date is stored or range-queried.
// Lexicographic order on the encoded form equals chronological order.
const DateLayout = "2006-01-02"

type (
	// TagID is the stable identifier of a tag. It never changes across
	// renames; all structural references use it, never the display value.
	TagID string

	// GroupID identifies a recurring transaction group.
	GroupID string

	// TxnID identifies a single persisted transaction.
	TxnID string

	TransactionType string

	// Nature says whether a transaction is a one-off or a recurring anchor.
	Nature string

	// Interval is the calendar unit between recurring instances.
	Interval string

	// State tracks the transaction lifecycle: draft -> persisted -> deleted.
	State string

	// Date is a UTC day-precision point in time.
	Date struct {
		time.Time
	}

	// Frequency declares how a transaction repeats. Repeats counts the total
	// number of instances, the anchor included.
	Frequency struct {
		Nature   Nature
		Interval Interval
		Repeats  int
	}

	// Tag is a point-in-time snapshot of a taxonomy entry handed to callers.
	// Display is resolved at read time and is not authoritative afterwards;
	// equality is by ID alone. ParentID is empty for parent tags.
	Tag struct {
		ID       TagID
		ParentID TagID
		Display  string
	}

	// Transaction is a single ledger entry. Identity fields are fixed at
	// record time; Tags is the one mutable set, routed through the
	// orchestrator. RecurringID is empty for one-off transactions.
	Transaction struct {
		ID          TxnID
		Date        Date
		Type        TransactionType
		Amount      Money
		Description string
		Note        string
		Tags        []TagID
		Frequency   Frequency
		RecurringID GroupID
		State       State
	}
)

func NewTagID() TagID     { return TagID(uuid.NewString()) }
func NewGroupID() GroupID { return GroupID(uuid.NewString()) }
func NewTxnID() TxnID     { return TxnID(uuid.NewString()) }

// NewDate creates a Date at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate decodes the storage form of a date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: parse date %q", ErrInvalidArgument, s)
	}
	return Date{Time: t}, nil
}

// Encode returns the comparable scalar form stored in the document store.
func (d Date) Encode() string {
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidArgument)
	}
	return nil
}

// Before reports day-precision ordering.
func (d Date) Before(other Date) bool {
	return d.Encode() < other.Encode()
}

func (d Date) Equal(other Date) bool {
	return d.Encode() == other.Encode()
}

func (f Frequency) Validate() error {
	switch f.Nature {
	case OneTime:
		return nil
	case Recurring:
	default:
		return fmt.Errorf("%w: unknown frequency nature %q", ErrInvalidArgument, f.Nature)
	}
	switch f.Interval {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return fmt.Errorf("%w: unknown interval %q", ErrInvalidArgument, f.Interval)
	}
	if f.Repeats < 1 {
		return fmt.Errorf("%w: repeats must be at least 1, got %d", ErrInvalidArgument, f.Repeats)
	}
	return nil
}

// IsRecurring reports whether the transaction belongs to a recurring group.
func (t Transaction) IsRecurring() bool {
	return t.RecurringID != ""
}

func (t Transaction) HasTag(id TagID) bool {
	for _, tag := range t.Tags {
		if tag == id {
			return true
		}
	}
	return false
}

// WithoutTag returns a copy of the tag set with id removed.
func (t Transaction) WithoutTag(id TagID) []TagID {
	out := make([]TagID, 0, len(t.Tags))
	for _, tag := range t.Tags {
		if tag != id {
			out = append(out, tag)
		}
	}
	return out
}

// CloneTags returns an independent copy of the tag set.
func (t Transaction) CloneTags() []TagID {
	if t.Tags == nil {
		return nil
	}
	return append([]TagID(nil), t.Tags...)
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	switch t.Type {
	case Expense, Income:
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidArgument, t.Type)
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("%w: empty description", ErrInvalidArgument)
	}
	if len(t.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrInvalidArgument)
	}
	if err := t.Frequency.Validate(); err != nil {
		return err
	}
	seen := make(map[TagID]struct{}, len(t.Tags))
	for _, tag := range t.Tags {
		if tag == "" {
			return fmt.Errorf("%w: empty tag id", ErrInvalidTag)
		}
		if _, dup := seen[tag]; dup {
			return fmt.Errorf("%w: tag %s listed twice", ErrInvalidArgument, tag)
		}
		seen[tag] = struct{}{}
	}
	return nil
}
