package domain

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Amount is a fixed-point monetary value. It marshals as a bare JSON number with
// exactly two decimals, which is what partner banks expect on the wire.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps a decimal value.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// ParseAmount parses a decimal string such as "40.00".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{Decimal: d}, nil
}

// MustAmount is ParseAmount for literals known to be valid.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Fixed formats the amount with exactly two decimal places.
func (a Amount) Fixed() string {
	return a.StringFixed(2)
}

func (a Amount) Add(b Amount) Amount {
	return Amount{Decimal: a.Decimal.Add(b.Decimal)}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{Decimal: a.Decimal.Sub(b.Decimal)}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Fixed()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string. Any other
// JSON type is rejected so that schema validation can report it.
func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("amount must be a number")
	}
	if trimmed[0] != '"' && trimmed[0] != '-' && (trimmed[0] < '0' || trimmed[0] > '9') {
		return fmt.Errorf("amount must be a number")
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(trimmed); err != nil {
		return fmt.Errorf("amount must be a number: %w", err)
	}
	a.Decimal = d
	return nil
}

// Money pairs an amount with its ISO 4217 currency. Currency is carried
// opaquely; this service performs no conversion.
type Money struct {
	Value    Amount `json:"value"`
	Currency string `json:"currency"`
}

// NewMoney builds Money from a decimal string and a currency code.
func NewMoney(value, currency string) (Money, error) {
	a, err := ParseAmount(value)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: a, Currency: currency}, nil
}

// Validate checks the amount is positive, has at most two decimals and the
// currency is a three-letter code.
func (m Money) Validate() error {
	if !m.Value.IsPositive() {
		return InvalidPayload("amount.value must be positive")
	}
	if m.Value.Exponent() < -2 && !m.Value.Equal(m.Value.Round(2)) {
		return InvalidPayload("amount.value has more than two decimals")
	}
	if !IsCurrencyCode(m.Currency) {
		return InvalidPayload("amount.currency must be a three-letter code")
	}
	return nil
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Value.Fixed(), m.Currency)
}

// IsCurrencyCode reports whether s is three upper-case letters.
func IsCurrencyCode(s string) bool {
	return currencyPattern.MatchString(s)
}
