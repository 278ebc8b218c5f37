package notify

import (
	"time"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/models"
)

const EventTransferCompleted = "transfer.completed"

// Event is the payload pushed to live subscribers and the message broker.
type Event struct {
	Type          string        `json:"type"`
	TransactionID string        `json:"transaction_id"`
	Status        string        `json:"status"`
	Direction     string        `json:"direction"`
	Origin        string        `json:"origin"`
	OriginBank    string        `json:"origin_bank_code"`
	Destination   string        `json:"destination"`
	DestBank      string        `json:"destination_bank_code"`
	Amount        domain.Amount `json:"amount"`
	Currency      string        `json:"currency"`
	OccurredAt    time.Time     `json:"occurred_at"`

	// parties holds every identifier recorded on either side of the row.
	parties []string
}

// Involves reports whether any of ids names a side of the transfer.
func (e Event) Involves(ids ...string) bool {
	for _, id := range ids {
		if id == "" {
			continue
		}
		for _, p := range e.parties {
			if p == id {
				return true
			}
		}
	}
	return false
}

// EventFromTransaction builds the completion event for a ledger row.
func EventFromTransaction(t models.Transaction) Event {
	return Event{
		Type:          EventTransferCompleted,
		TransactionID: t.ID,
		Status:        t.Status,
		Direction:     t.Direction,
		Origin:        firstSet(t.OriginIBAN, t.OriginPhone),
		OriginBank:    t.OriginBank,
		Destination:   firstSet(t.DestIBAN, t.DestPhone),
		DestBank:      t.DestBank,
		Amount:        t.Amount,
		Currency:      t.Currency,
		OccurredAt:    t.UpdatedAt.UTC(),
		parties:       collect(t.OriginIBAN, t.OriginPhone, t.DestIBAN, t.DestPhone),
	}
}

func collect(vals ...*string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != nil && *v != "" {
			out = append(out, *v)
		}
	}
	return out
}

func firstSet(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
