package domain

import (
	"regexp"
	"strings"
)

var (
	ibanPattern  = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{4,30}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
)

// Identifier names one side of a transfer. It is either ByIBAN or ByPhone.
type Identifier interface {
	Kind() string
	String() string
	isIdentifier()
}

// ByIBAN addresses an account by its IBAN.
type ByIBAN string

// ByPhone addresses the account linked to a customer's phone number.
type ByPhone string

func (ByIBAN) Kind() string     { return TransferKindIBAN }
func (i ByIBAN) String() string { return string(i) }
func (ByIBAN) isIdentifier()    {}

func (ByPhone) Kind() string     { return TransferKindPhone }
func (p ByPhone) String() string { return string(p) }
func (ByPhone) isIdentifier()    {}

// NormalizeIBAN strips spaces and upper-cases.
func NormalizeIBAN(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// NormalizePhone strips spaces and dashes.
func NormalizePhone(s string) string {
	r := strings.NewReplacer(" ", "", "-", "")
	return r.Replace(strings.TrimSpace(s))
}

// IsIBAN reports whether s looks like an IBAN after normalisation.
func IsIBAN(s string) bool {
	return ibanPattern.MatchString(NormalizeIBAN(s))
}

// IsPhone reports whether s looks like a phone number after normalisation.
func IsPhone(s string) bool {
	return phonePattern.MatchString(NormalizePhone(s))
}

// IsBankCode reports whether s is a four digit bank code.
func IsBankCode(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// BankCodeFromIBAN extracts the bank code that Costa Rican IBANs carry in
// positions 5-8 (CRkk 0BBB ...). It returns "" for other layouts.
func BankCodeFromIBAN(iban string) string {
	iban = NormalizeIBAN(iban)
	if len(iban) < 8 || !strings.HasPrefix(iban, "CR") {
		return ""
	}
	code := iban[4:8]
	if !IsBankCode(code) {
		return ""
	}
	return code
}
