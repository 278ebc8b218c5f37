// Package protocol holds the wire schema shared by the inbound and outbound
// inter-bank transfer endpoints.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/mac"
)

// Paths on the counterpart bank, one per transfer kind.
const (
	PathIBANTransfer  = "/interbank/v1/transfers/iban"
	PathPhoneTransfer = "/interbank/v1/transfers/phone"
)

const maxBodyBytes = 64 << 10

// Party is one side of a transfer as it appears on the wire. Exactly one of
// AccountNumber and PhoneNumber is set.
type Party struct {
	AccountNumber *string `json:"account_number,omitempty"`
	PhoneNumber   *string `json:"phone_number,omitempty"`
	BankCode      string  `json:"bank_code"`
	Name          string  `json:"name"`
}

// Message is the transfer payload exchanged between banks. The digest field
// keeps its legacy name for compatibility with partners on the old scheme.
type Message struct {
	Version       string       `json:"version"`
	Timestamp     string       `json:"timestamp"`
	TransactionID string       `json:"transaction_id"`
	Sender        Party        `json:"sender"`
	Receiver      Party        `json:"receiver"`
	Amount        domain.Money `json:"amount"`
	Description   *string      `json:"description,omitempty"`
	AuthDigest    string       `json:"hmac_md5"`
}

// PartyFor builds the wire form of an identifier.
func PartyFor(id domain.Identifier, bankCode, name string) Party {
	p := Party{BankCode: bankCode, Name: name}
	v := id.String()
	switch id.(type) {
	case domain.ByIBAN:
		p.AccountNumber = &v
	case domain.ByPhone:
		p.PhoneNumber = &v
	}
	return p
}

// wireValue is the identifier as received, before normalisation. Identifier
// must have succeeded.
func (p Party) wireValue() string {
	if p.AccountNumber != nil && strings.TrimSpace(*p.AccountNumber) != "" {
		return *p.AccountNumber
	}
	return *p.PhoneNumber
}

// Identifier normalises the party into the form the account resolver takes.
func (p Party) Identifier() (domain.Identifier, error) {
	hasAcct := p.AccountNumber != nil && strings.TrimSpace(*p.AccountNumber) != ""
	hasPhone := p.PhoneNumber != nil && strings.TrimSpace(*p.PhoneNumber) != ""
	switch {
	case hasAcct && hasPhone:
		return nil, errors.New("only one of account_number and phone_number may be set")
	case hasAcct:
		return domain.ByIBAN(domain.NormalizeIBAN(*p.AccountNumber)), nil
	case hasPhone:
		return domain.ByPhone(domain.NormalizePhone(*p.PhoneNumber)), nil
	default:
		return nil, errors.New("one of account_number and phone_number is required")
	}
}

// Kind returns the transfer kind, decided by how the receiver is addressed.
func (m *Message) Kind() string {
	if m.Receiver.PhoneNumber != nil && m.Receiver.AccountNumber == nil {
		return domain.TransferKindPhone
	}
	return domain.TransferKindIBAN
}

// Path returns the counterpart sub-path for this message's kind.
func (m *Message) Path() string {
	if m.Kind() == domain.TransferKindPhone {
		return PathPhoneTransfer
	}
	return PathIBANTransfer
}

// Validate checks the structural rules of the schema. Every failure wraps
// domain.ErrInvalidPayload.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return domain.InvalidPayload("version is required")
	}
	if strings.TrimSpace(m.TransactionID) == "" {
		return domain.InvalidPayload("transaction_id is required")
	}
	if len(m.TransactionID) > 64 {
		return domain.InvalidPayload("transaction_id is too long")
	}
	if _, err := time.Parse(time.RFC3339, m.Timestamp); err != nil {
		return domain.InvalidPayload("timestamp must be RFC 3339")
	}
	if err := validateParty("sender", m.Sender); err != nil {
		return err
	}
	if err := validateParty("receiver", m.Receiver); err != nil {
		return err
	}
	if err := m.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.AuthDigest) == "" {
		return domain.InvalidPayload("hmac_md5 is required")
	}
	return nil
}

func validateParty(side string, p Party) error {
	id, err := p.Identifier()
	if err != nil {
		return domain.InvalidPayload("%s: %s", side, err.Error())
	}
	switch v := id.(type) {
	case domain.ByIBAN:
		if !domain.IsIBAN(string(v)) {
			return domain.InvalidPayload("%s.account_number is not an IBAN", side)
		}
	case domain.ByPhone:
		if !domain.IsPhone(string(v)) {
			return domain.InvalidPayload("%s.phone_number is not a phone number", side)
		}
	}
	if !domain.IsBankCode(p.BankCode) {
		return domain.InvalidPayload("%s.bank_code must be four digits", side)
	}
	return nil
}

// Fields returns the digest input for this message. Identifiers enter it
// exactly as they appear on the wire, since partners sign what they send.
func (m *Message) Fields() (mac.Fields, error) {
	if _, err := m.Sender.Identifier(); err != nil {
		return mac.Fields{}, domain.InvalidPayload("sender: %s", err.Error())
	}
	if _, err := m.Receiver.Identifier(); err != nil {
		return mac.Fields{}, domain.InvalidPayload("receiver: %s", err.Error())
	}
	return mac.Fields{
		Version:       m.Version,
		Timestamp:     m.Timestamp,
		TransactionID: m.TransactionID,
		Sender:        m.Sender.wireValue(),
		SenderBank:    m.Sender.BankCode,
		Receiver:      m.Receiver.wireValue(),
		ReceiverBank:  m.Receiver.BankCode,
		Amount:        m.Amount.Value,
		Currency:      m.Amount.Currency,
	}, nil
}

// Sign fills AuthDigest using key.
func (m *Message) Sign(key mac.Key) error {
	f, err := m.Fields()
	if err != nil {
		return err
	}
	d, err := mac.Sign(f, key)
	if err != nil {
		return err
	}
	m.AuthDigest = d
	return nil
}

// Decode reads one message from r. Unknown fields, trailing data and
// mistyped values are rejected as invalid payloads.
func Decode(r io.Reader) (*Message, error) {
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	dec.DisallowUnknownFields()

	var m Message
	if err := dec.Decode(&m); err != nil {
		return nil, domain.InvalidPayload("%s", describeDecodeError(err))
	}
	if dec.More() {
		return nil, domain.InvalidPayload("trailing data after message")
	}
	return &m, nil
}

// Encode serialises m for delivery.
func Encode(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("encode transfer message: %w", err)
	}
	return buf.Bytes(), nil
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		t := typeErr.Type
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		return fmt.Sprintf("%s must be a %s", typeErr.Field, t.Kind())
	case errors.As(err, &syntaxErr):
		return "malformed JSON"
	case errors.Is(err, io.EOF):
		return "empty body"
	default:
		return err.Error()
	}
}
