// Package notify is the transaction lifecycle announcement channel. Edits
// and deletions return their results synchronously to the caller; the
// channel only tells interested observers what already happened. Observer
// failures are logged and never propagate to the originating operation.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"moneta/internal/core"
)

type EventKind string

const (
	EventEdited  EventKind = "edited"
	EventDeleted EventKind = "deleted"
)

// Event carries the transaction as it was after the operation (for deletions,
// the last persisted value with State set to deleted).
type Event struct {
	Kind        EventKind
	Transaction core.Transaction
}

type Observer interface {
	Notify(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event) error

func (f ObserverFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Channel fans events out to registered observers. One observer is the
// normal case; many are supported.
type Channel struct {
	mu        sync.Mutex
	observers []Observer
}

func NewChannel() *Channel {
	return &Channel{}
}

func (c *Channel) Subscribe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Publish delivers the event to every observer in subscription order.
func (c *Channel) Publish(ctx context.Context, ev Event) {
	c.mu.Lock()
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	for _, o := range observers {
		if err := o.Notify(ctx, ev); err != nil {
			slog.WarnContext(ctx, "Lifecycle observer failed",
				"kind", ev.Kind,
				"transaction_id", ev.Transaction.ID,
				"error", err)
		}
	}
}
