package models

import (
	"time"

	"github.com/ayo6706/interbank-transfers/internal/domain"
)

type User struct {
	ID        string    `json:"id"` // national identification number
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	IBAN      string    `json:"iban"`
	CreatedAt time.Time `json:"created_at"`
}

type Account struct {
	IBAN          string            `json:"iban"`
	AccountNumber string            `json:"account_number"`
	BankCode      string            `json:"bank_code"`
	Type          string            `json:"type"`
	Holder        domain.HolderName `json:"-"`
	Balance       domain.Amount     `json:"balance"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// IsActive reports whether the account may be debited or credited.
func (a Account) IsActive() bool {
	return a.Status == domain.AccountStatusActive
}

type Transaction struct {
	ID          string        `json:"id"`
	OriginIBAN  *string       `json:"origin_iban,omitempty"`
	OriginPhone *string       `json:"origin_phone,omitempty"`
	OriginBank  string        `json:"origin_bank_code"`
	DestIBAN    *string       `json:"destination_iban,omitempty"`
	DestPhone   *string       `json:"destination_phone,omitempty"`
	DestBank    string        `json:"destination_bank_code"`
	Amount      domain.Amount `json:"amount"`
	Currency    string        `json:"currency"`
	Description *string       `json:"description,omitempty"`
	Reason      *string       `json:"reason,omitempty"`
	Status      string        `json:"status"`
	Direction   string        `json:"direction"`
	AuthDigest  string        `json:"auth_digest"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// SharedSecret is the key for one ordered (origin, destination) bank pair.
type SharedSecret struct {
	OriginBank   string `json:"origin_bank_code"`
	DestBank     string `json:"destination_bank_code"`
	Secret       []byte `json:"-"`
	Algorithm    string `json:"algorithm"`
	AcceptLegacy bool   `json:"accept_legacy"`
}

// Subscription maps a phone number to the bank and name shown when the phone
// is used as a transfer destination.
type Subscription struct {
	Phone    string `json:"phone"`
	BankCode string `json:"bank_code"`
	Name     string `json:"name"`
}

type AuditEntry struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	PrevState  *string   `json:"prev_state,omitempty"`
	NextState  *string   `json:"next_state,omitempty"`
	Metadata   []byte    `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
