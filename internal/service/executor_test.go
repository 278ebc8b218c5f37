package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteInboundCreditsReceiver(t *testing.T) {
	f := newFixture(t)
	msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty(aliceIBAN, ownBank), "40")

	res, err := f.executor.Execute(context.Background(), msg, "bank:"+partnerBank)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, domain.TxStatusCompleted, res.Transaction.Status)
	assert.Equal(t, domain.DirectionInbound, res.Transaction.Direction)
	assert.Equal(t, "140.00", f.balance(t, aliceIBAN))

	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "transfer.committed", entries[0].Action)
	assert.Equal(t, "bank:0222", entries[0].Actor)

	seen := f.notes.Seen()
	require.Len(t, seen, 1)
	assert.Equal(t, msg.TransactionID, seen[0].ID)
}

func TestExecuteInboundByPhone(t *testing.T) {
	f := newFixture(t)
	msg := signedMessage(t, phoneParty(remotePhone, partnerBank), phoneParty(bobPhone, ownBank), "12.34")

	res, err := f.executor.Execute(context.Background(), msg, "bank:"+partnerBank)
	require.NoError(t, err)
	assert.Equal(t, "62.34", f.balance(t, bobIBAN))
	require.NotNil(t, res.Transaction.DestPhone)
	assert.Equal(t, bobPhone, *res.Transaction.DestPhone)
	require.NotNil(t, res.Transaction.DestIBAN)
	assert.Equal(t, bobIBAN, *res.Transaction.DestIBAN)
}

func TestExecuteInboundWithFormattedIdentifiers(t *testing.T) {
	f := newFixture(t)
	spaced := "cr21 0111 0001 0000 0000 01"
	receiver := protocol.Party{AccountNumber: &spaced, BankCode: ownBank}
	msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), receiver, "10")

	res, err := f.executor.Execute(context.Background(), msg, "bank:"+partnerBank)
	require.NoError(t, err)
	assert.Equal(t, "110.00", f.balance(t, aliceIBAN))
	require.NotNil(t, res.Transaction.DestIBAN)
	assert.Equal(t, aliceIBAN, *res.Transaction.DestIBAN)
}

func TestExecuteLocalTransferThenInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := signedMessage(t, ibanParty(aliceIBAN, ownBank), ibanParty(bobIBAN, ownBank), "60")
	res, err := f.executor.Execute(ctx, first, "user:alice-id")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionLocal, res.Transaction.Direction)
	assert.Equal(t, "40.00", f.balance(t, aliceIBAN))
	assert.Equal(t, "110.00", f.balance(t, bobIBAN))

	second := signedMessage(t, ibanParty(aliceIBAN, ownBank), ibanParty(bobIBAN, ownBank), "50")
	_, err = f.executor.Execute(ctx, second, "user:alice-id")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, "40.00", f.balance(t, aliceIBAN))
	assert.Equal(t, "110.00", f.balance(t, bobIBAN))
	assert.Len(t, f.store.Transactions(), 1)
}

func TestExecuteRejections(t *testing.T) {
	cases := []struct {
		name  string
		build func(t *testing.T, f *fixture) (msgErr error)
		want  error
	}{
		{
			name: "tampered amount",
			build: func(t *testing.T, f *fixture) error {
				msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty(aliceIBAN, ownBank), "40")
				msg.Amount.Value = domain.MustAmount("400")
				_, err := f.executor.Execute(context.Background(), msg, "bank:0222")
				return err
			},
			want: domain.ErrAuthenticationFailed,
		},
		{
			name: "digest not hex",
			build: func(t *testing.T, f *fixture) error {
				msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty(aliceIBAN, ownBank), "40")
				msg.AuthDigest = "not-a-digest"
				_, err := f.executor.Execute(context.Background(), msg, "bank:0222")
				return err
			},
			want: domain.ErrAuthenticationFailed,
		},
		{
			name: "unknown bank pair",
			build: func(t *testing.T, f *fixture) error {
				msg := signedMessage(t, ibanParty("CR21033300040000000004", "0333"), ibanParty(aliceIBAN, ownBank), "40")
				_, err := f.executor.Execute(context.Background(), msg, "bank:0333")
				return err
			},
			want: domain.ErrNoSharedSecret,
		},
		{
			name: "receiver bank not hosted here",
			build: func(t *testing.T, f *fixture) error {
				msg := signedMessage(t, ibanParty(aliceIBAN, ownBank), ibanParty(remoteIBAN, partnerBank), "40")
				_, err := f.executor.Execute(context.Background(), msg, "user:alice-id")
				return err
			},
			want: domain.ErrBankCodeMismatch,
		},
		{
			name: "receiver account held at another bank",
			build: func(t *testing.T, f *fixture) error {
				f.store.AddAccount(account(remoteIBAN, partnerBank, "0", "Carol Soto"))
				msg := signedMessage(t, ibanParty(aliceIBAN, ownBank), ibanParty(remoteIBAN, ownBank), "40")
				_, err := f.executor.Execute(context.Background(), msg, "user:alice-id")
				return err
			},
			want: domain.ErrBankCodeMismatch,
		},
		{
			name: "unknown receiver",
			build: func(t *testing.T, f *fixture) error {
				msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty("CR21011100090000000009", ownBank), "40")
				_, err := f.executor.Execute(context.Background(), msg, "bank:0222")
				return err
			},
			want: domain.ErrAccountNotFound,
		},
		{
			name: "blocked receiver",
			build: func(t *testing.T, f *fixture) error {
				bob, _ := f.store.Account(bobIBAN)
				bob.Status = domain.AccountStatusBlocked
				f.store.AddAccount(bob)
				msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty(bobIBAN, ownBank), "40")
				_, err := f.executor.Execute(context.Background(), msg, "bank:0222")
				return err
			},
			want: domain.ErrAccountNotActive,
		},
		{
			name: "same account on both sides",
			build: func(t *testing.T, f *fixture) error {
				msg := signedMessage(t, ibanParty(aliceIBAN, ownBank), phoneParty(alicePhone, ownBank), "1")
				_, err := f.executor.Execute(context.Background(), msg, "user:alice-id")
				return err
			},
			want: domain.ErrInvalidPayload,
		},
		{
			name: "three decimals",
			build: func(t *testing.T, f *fixture) error {
				msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty(aliceIBAN, ownBank), "1.005")
				_, err := f.executor.Execute(context.Background(), msg, "bank:0222")
				return err
			},
			want: domain.ErrInvalidPayload,
		},
		{
			name: "nil message",
			build: func(t *testing.T, f *fixture) error {
				_, err := f.executor.Execute(context.Background(), nil, "bank:0222")
				return err
			},
			want: domain.ErrInvalidPayload,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			err := tc.build(t, f)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, "100.00", f.balance(t, aliceIBAN))
			assert.Equal(t, "50.00", f.balance(t, bobIBAN))
			assert.Empty(t, f.store.Transactions())
			assert.Empty(t, f.store.AuditEntries())
			assert.Empty(t, f.notes.Seen())
		})
	}
}

func TestExecuteReplayReturnsStoredRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty(aliceIBAN, ownBank), "40")

	first, err := f.executor.Execute(ctx, msg, "bank:0222")
	require.NoError(t, err)
	again, err := f.executor.Execute(ctx, msg, "bank:0222")
	require.NoError(t, err)

	assert.True(t, again.Replayed)
	assert.Equal(t, first.Transaction.ID, again.Transaction.ID)
	assert.Equal(t, "140.00", f.balance(t, aliceIBAN))
	assert.Len(t, f.notes.Seen(), 1)
}

func TestExecuteReusedIDWithDifferentDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty(aliceIBAN, ownBank), "40")
	_, err := f.executor.Execute(ctx, msg, "bank:0222")
	require.NoError(t, err)

	other := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty(aliceIBAN, ownBank), "41")
	other.TransactionID = msg.TransactionID
	require.NoError(t, other.Sign(keyFor(secretFor(pairSecret))))

	_, err = f.executor.Execute(ctx, other, "bank:0222")
	require.ErrorIs(t, err, domain.ErrDuplicateTransaction)
	assert.Equal(t, "140.00", f.balance(t, aliceIBAN))
}

func TestExecuteConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		msg := signedMessage(t, ibanParty(aliceIBAN, ownBank), ibanParty(bobIBAN, ownBank), "60")
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.executor.Execute(ctx, msg, "user:alice-id")
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientFunds):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, short)
	assert.Equal(t, "40.00", f.balance(t, aliceIBAN))
	assert.Equal(t, "110.00", f.balance(t, bobIBAN))
}

func TestExecuteConcurrentDuplicateDeliveryCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty(aliceIBAN, ownBank), "25")

	const deliveries = 5
	var wg sync.WaitGroup
	results := make([]Result, deliveries)
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.executor.Execute(ctx, msg, "bank:0222")
		}(i)
	}
	wg.Wait()

	var fresh int
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].Replayed {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, "125.00", f.balance(t, aliceIBAN))
	assert.Len(t, f.store.Transactions(), 1)
}

func TestExecuteStorageFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	f.store.SetCommitHook(func() error { return errors.New("connection lost") })
	msg := signedMessage(t, ibanParty(remoteIBAN, partnerBank), ibanParty(aliceIBAN, ownBank), "40")

	_, err := f.executor.Execute(context.Background(), msg, "bank:0222")
	require.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.Equal(t, "StorageFailure", domain.Code(err))
	assert.Equal(t, "100.00", f.balance(t, aliceIBAN))
	assert.Empty(t, f.notes.Seen())
}
