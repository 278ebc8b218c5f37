package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRow(id string, updated time.Time) models.Transaction {
	origin, dest := aliceIBAN, remoteIBAN
	return models.Transaction{
		ID:         id,
		OriginIBAN: &origin,
		OriginBank: ownBank,
		DestIBAN:   &dest,
		DestBank:   partnerBank,
		Amount:     domain.MustAmount("10"),
		Currency:   "EUR",
		Status:     domain.TxStatusPending,
		Direction:  domain.DirectionOutbound,
		CreatedAt:  updated,
		UpdatedAt:  updated,
	}
}

func TestReconciliationCleanLedger(t *testing.T) {
	f := newFixture(t)
	svc := NewReconciliationService(f.store, time.Minute)

	report, err := svc.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestReconciliationReportsAnomalies(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.store.AddTransaction(pendingRow("stale", now.Add(-time.Hour)))
	f.store.AddTransaction(pendingRow("fresh", now))

	broken, _ := f.store.Account(bobIBAN)
	broken.Balance = domain.MustAmount("-5")
	f.store.AddAccount(broken)

	svc := NewReconciliationService(f.store, 5*time.Minute)
	report, err := svc.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Clean())

	require.Len(t, report.StalePending, 1)
	assert.Equal(t, "stale", report.StalePending[0].ID)
	require.Len(t, report.NegativeBalances, 1)
	assert.Equal(t, bobIBAN, report.NegativeBalances[0].IBAN)

	require.NoError(t, svc.Run(context.Background()))
}

func TestTransitionTransactionState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddTransaction(pendingRow("txn-1", time.Now()))

	move := func(next string) error {
		return f.store.RunInTx(ctx, func(q repository.Querier) error {
			return transitionTransactionState(ctx, q, f.audit, "txn-1", next, "system", "test.move", nil, nil)
		})
	}

	require.NoError(t, move(domain.TxStatusCompleted))
	require.NoError(t, move(domain.TxStatusCompleted))
	require.Error(t, move(domain.TxStatusRejected))
	require.Error(t, move(domain.TxStatusPending))

	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].PrevState)
	assert.Equal(t, domain.TxStatusPending, *entries[0].PrevState)
}
