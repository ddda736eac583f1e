package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind names a ledger change.
type EventKind string

const (
	KindDebtRecorded        EventKind = "debt_recorded"
	KindProductAdded        EventKind = "product_added"
	KindProductPriceChanged EventKind = "product_price_changed"
	KindProductDeleted      EventKind = "product_deleted"
	KindNicknameSet         EventKind = "nickname_set"
	KindNicknameCleared     EventKind = "nickname_cleared"
	KindAdminRegistered     EventKind = "admin_registered"
	KindDebtsSettled        EventKind = "debts_settled"
)

var knownKinds = map[EventKind]bool{
	KindDebtRecorded:        true,
	KindProductAdded:        true,
	KindProductPriceChanged: true,
	KindProductDeleted:      true,
	KindNicknameSet:         true,
	KindNicknameCleared:     true,
	KindAdminRegistered:     true,
	KindDebtsSettled:        true,
}

// LedgerEvent is a lightweight notification published after a committed
// write. Consumers re-read the ledger instead of trusting the payload, so
// only identifiers and the amount involved are carried.
type LedgerEvent struct {
	ID          uuid.UUID `json:"id"`
	Kind        EventKind `json:"kind"`
	AdminID     int64     `json:"admin_id,omitempty"`
	ProductID   int64     `json:"product_id,omitempty"`
	DebtLineID  int64     `json:"debt_line_id,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event with a fresh id and the current time
func NewLedgerEvent(kind EventKind) LedgerEvent {
	return LedgerEvent{
		ID:        uuid.New(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects unknown kinds.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if !knownKinds[ev.Kind] {
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if ev.ID == uuid.Nil {
		return nil, fmt.Errorf("event %s has no id", ev.Kind)
	}
	return &ev, nil
}
