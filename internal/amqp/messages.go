package amqp

import (
	"encoding/json"
	"time"

	"moneta/internal/notify"
)

const (
	routingKeyEdited  = "transaction.edited"
	routingKeyDeleted = "transaction.deleted"
)

func routingKey(kind notify.EventKind) string {
	if kind == notify.EventDeleted {
		return routingKeyDeleted
	}
	return routingKeyEdited
}

// eventMessage is the wire envelope for a lifecycle event. Consumers fetch
// the full transaction from the store if they need more than the identity.
type eventMessage struct {
	Kind          string    `json:"kind"`
	TransactionID string    `json:"transaction_id"`
	RecurringID   string    `json:"recurring_id,omitempty"`
	Date          string    `json:"date"`
	AmountCents   int64     `json:"amount_cents"`
	Timestamp     time.Time `json:"timestamp"`
}

func newEventMessage(ev notify.Event) *eventMessage {
	return &eventMessage{
		Kind:          string(ev.Kind),
		TransactionID: string(ev.Transaction.ID),
		RecurringID:   string(ev.Transaction.RecurringID),
		Date:          ev.Transaction.Date.Encode(),
		AmountCents:   ev.Transaction.Amount.Cents,
		Timestamp:     time.Now(),
	}
}

func (m *eventMessage) toJSON() ([]byte, error) {
	return json.Marshal(m)
}
