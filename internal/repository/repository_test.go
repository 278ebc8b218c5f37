package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/db"
	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env")
}

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	release := dblock.Acquire()
	t.Cleanup(release)

	ctx := context.Background()
	pool, err := db.Connect(ctx, os.Getenv("DATABASE_URL"), 0)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

func seedAccount(t *testing.T, pool *pgxpool.Pool, bank, balance string) string {
	t.Helper()
	suffix := uuid.NewString()[:8]
	iban := fmt.Sprintf("GR16%s%s", bank, suffix)
	_, err := pool.Exec(context.Background(),
		`INSERT INTO accounts (iban, account_number, bank_code, holder_name, balance, currency)
		 VALUES ($1, $2, $3, 'Test Holder', $4::numeric, 'EUR')`,
		iban, "acct-"+suffix, bank, balance)
	require.NoError(t, err)
	return iban
}

func TestDebitRequiresCoveringBalance(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	q := New(pool)
	iban := seedAccount(t, pool, "0111", "100.00")

	n, err := q.DebitAccount(ctx, BalanceChangeParams{IBAN: iban, Amount: domain.MustAmount("150")})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = q.DebitAccount(ctx, BalanceChangeParams{IBAN: iban, Amount: domain.MustAmount("60")})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = q.CreditAccount(ctx, BalanceChangeParams{IBAN: iban, Amount: domain.MustAmount("10.50")})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	acct, err := q.GetAccountByIBAN(ctx, iban)
	require.NoError(t, err)
	assert.Equal(t, "50.50", acct.Balance.Fixed())
	assert.Equal(t, domain.PlaintextName("Test Holder"), acct.Holder)
}

func TestLockAccountsReportsMissingRows(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	iban := seedAccount(t, pool, "0111", "1.00")

	store := NewStore(pool)
	err := store.RunInTx(ctx, func(q Querier) error {
		return q.LockAccounts(ctx, []string{iban, iban})
	})
	require.NoError(t, err)

	err = store.RunInTx(ctx, func(q Querier) error {
		return q.LockAccounts(ctx, []string{iban, "GR160111missing"})
	})
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
}

func TestCreateTransactionRejectsDuplicateID(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	q := New(pool)
	origin := seedAccount(t, pool, "0111", "0")
	dest := seedAccount(t, pool, "0222", "0")

	params := CreateTransactionParams{
		ID:         uuid.NewString(),
		OriginIBAN: &origin,
		OriginBank: "0111",
		DestIBAN:   &dest,
		DestBank:   "0222",
		Amount:     domain.MustAmount("40"),
		Currency:   "EUR",
		Status:     domain.TxStatusPending,
		Direction:  domain.DirectionOutbound,
		AuthDigest: "00",
	}
	row, err := q.CreateTransaction(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, row.Status)

	_, err = q.CreateTransaction(ctx, params)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23505", pgErr.Code)

	reason := "remote refused"
	n, err := q.UpdateTransactionStatus(ctx, UpdateTransactionStatusParams{ID: params.ID, Status: domain.TxStatusRejected, Reason: &reason})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := q.GetTransaction(ctx, params.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusRejected, got.Status)
	require.NotNil(t, got.Reason)
	assert.Equal(t, reason, *got.Reason)
}

func TestListStalePending(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	q := New(pool)
	origin := seedAccount(t, pool, "0111", "0")
	dest := seedAccount(t, pool, "0222", "0")

	id := uuid.NewString()
	_, err := q.CreateTransaction(ctx, CreateTransactionParams{
		ID: id, OriginIBAN: &origin, OriginBank: "0111", DestIBAN: &dest, DestBank: "0222",
		Amount: domain.MustAmount("1"), Currency: "EUR", Status: domain.TxStatusPending,
		Direction: domain.DirectionOutbound, AuthDigest: "00",
	})
	require.NoError(t, err)

	rows, err := q.ListStalePending(ctx, time.Now().Add(time.Minute), 500)
	require.NoError(t, err)
	var found bool
	for _, r := range rows {
		if r.ID == id {
			found = true
		}
	}
	assert.True(t, found)
}
