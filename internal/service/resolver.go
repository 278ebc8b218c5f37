package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/repository"
)

// AccountResolver maps transfer identifiers to local accounts.
type AccountResolver struct{}

func NewAccountResolver() *AccountResolver {
	return &AccountResolver{}
}

// Resolve looks id up as an IBAN first and, failing that, as the phone number
// of a customer whose linked account is returned. Both kinds of identifier go
// through the same two steps. Nothing is cached, so a re-linked phone always
// resolves to its current account.
func (r *AccountResolver) Resolve(ctx context.Context, q repository.Querier, id domain.Identifier) (models.Account, error) {
	if id == nil || id.String() == "" {
		return models.Account{}, domain.ErrAccountNotFound
	}

	acct, err := q.GetAccountByIBAN(ctx, domain.NormalizeIBAN(id.String()))
	if err == nil {
		return acct, nil
	}
	if !isNoRows(err) {
		return models.Account{}, storageError("get account by iban", err)
	}

	user, err := q.GetUserByPhone(ctx, domain.NormalizePhone(id.String()))
	if isNoRows(err) {
		return models.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id.String())
	}
	if err != nil {
		return models.Account{}, storageError("get user by phone", err)
	}

	acct, err = q.GetAccountByIBAN(ctx, user.IBAN)
	if isNoRows(err) {
		return models.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id.String())
	}
	if err != nil {
		return models.Account{}, storageError("get linked account", err)
	}
	return acct, nil
}

// ResolveAt resolves id and confirms the account belongs to bankCode.
func (r *AccountResolver) ResolveAt(ctx context.Context, q repository.Querier, id domain.Identifier, bankCode string) (models.Account, error) {
	acct, err := r.Resolve(ctx, q, id)
	if err != nil {
		return models.Account{}, err
	}
	if acct.BankCode != bankCode {
		return models.Account{}, fmt.Errorf("%w: account is held at %s, message claims %s", domain.ErrBankCodeMismatch, acct.BankCode, bankCode)
	}
	return acct, nil
}

// requireActive rejects accounts that may not be debited or credited.
func requireActive(acct models.Account) error {
	if !acct.IsActive() {
		return fmt.Errorf("%w: %s is %s", domain.ErrAccountNotActive, acct.IBAN, acct.Status)
	}
	return nil
}
