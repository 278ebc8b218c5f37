package repository

import (
	"context"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/models"
)

// Querier is the ledger access contract used by the transfer core. Lookups
// that find nothing return pgx.ErrNoRows.
type Querier interface {
	GetAccountByIBAN(ctx context.Context, iban string) (models.Account, error)
	// LockAccounts takes row locks on the given accounts, in IBAN order, for
	// the rest of the enclosing transaction.
	LockAccounts(ctx context.Context, ibans []string) error
	GetUserByPhone(ctx context.Context, phone string) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetSharedSecret(ctx context.Context, originBank, destBank string) (models.SharedSecret, error)
	GetSubscriptionByPhone(ctx context.Context, phone string) (models.Subscription, error)
	GetTransaction(ctx context.Context, id string) (models.Transaction, error)
	GetTransactionStatusForUpdate(ctx context.Context, id string) (string, error)
	// DebitAccount only applies when the balance covers the amount; zero rows
	// affected means it did not.
	DebitAccount(ctx context.Context, arg BalanceChangeParams) (int64, error)
	CreditAccount(ctx context.Context, arg BalanceChangeParams) (int64, error)
	CreateTransaction(ctx context.Context, arg CreateTransactionParams) (models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error)
	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error)
	ListNegativeBalances(ctx context.Context) ([]models.Account, error)
	ListStalePending(ctx context.Context, before time.Time, limit int32) ([]models.Transaction, error)
}

type BalanceChangeParams struct {
	IBAN   string
	Amount domain.Amount
}

type CreateTransactionParams struct {
	ID          string
	OriginIBAN  *string
	OriginPhone *string
	OriginBank  string
	DestIBAN    *string
	DestPhone   *string
	DestBank    string
	Amount      domain.Amount
	Currency    string
	Description *string
	Status      string
	Direction   string
	AuthDigest  string
}

type UpdateTransactionStatusParams struct {
	ID     string
	Status string
	Reason *string
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   string
	Actor      string
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}
