package domain

import (
	"errors"
	"fmt"
)

// Rejection reasons surfaced by the transfer core. Handlers map them to
// problem types; everything else is treated as a storage failure.
var (
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNoSharedSecret       = errors.New("no shared secret for bank pair")
	ErrAccountNotFound      = errors.New("account not found")
	ErrBankCodeMismatch     = errors.New("bank code mismatch")
	ErrAccountNotActive     = errors.New("account not active")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNoRouteToBank        = errors.New("no route to bank")
	ErrRemoteBank           = errors.New("remote bank rejected transfer")
	ErrStorageFailure       = errors.New("storage failure")
	ErrDuplicateTransaction = errors.New("transaction id already used with different details")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrHolderNameSealed     = errors.New("holder name is sealed and no key is configured")
)

// InvalidPayload wraps ErrInvalidPayload with the offending field.
func InvalidPayload(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// RemoteBankError is returned when the counterpart answered with a non-2xx status.
type RemoteBankError struct {
	BankCode string
	Status   int
	Message  string
}

func (e *RemoteBankError) Error() string {
	return fmt.Sprintf("bank %s responded %d: %s", e.BankCode, e.Status, e.Message)
}

func (e *RemoteBankError) Unwrap() error {
	return ErrRemoteBank
}

// Refused reports whether the counterpart definitely declined the transfer.
// Only 4xx answers qualify: a 5xx may come from a proxy or from a failure
// after the partner committed, so the outcome stays unknown.
func (e *RemoteBankError) Refused() bool {
	return e.Status >= 400 && e.Status < 500
}

// Code returns the stable error code for err. Errors outside the taxonomy
// report as StorageFailure.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPayload):
		return "InvalidPayload"
	case errors.Is(err, ErrAuthenticationFailed):
		return "AuthenticationFailed"
	case errors.Is(err, ErrNoSharedSecret):
		return "NoSharedSecret"
	case errors.Is(err, ErrAccountNotFound):
		return "AccountNotFound"
	case errors.Is(err, ErrBankCodeMismatch):
		return "BankCodeMismatch"
	case errors.Is(err, ErrAccountNotActive):
		return "AccountNotActive"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrNoRouteToBank):
		return "NoRouteToBank"
	case errors.Is(err, ErrRemoteBank):
		return "RemoteBankError"
	case errors.Is(err, ErrDuplicateTransaction):
		return "DuplicateTransaction"
	case errors.Is(err, ErrTransactionNotFound):
		return "TransactionNotFound"
	default:
		return "StorageFailure"
	}
}
