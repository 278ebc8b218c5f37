package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/fieldcrypt"
	"github.com/ayo6706/interbank-transfers/internal/gateway/mocks"
	"github.com/ayo6706/interbank-transfers/internal/mac"
	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/protocol"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransferService(t *testing.T, f *fixture) (*TransferService, *mocks.MockGateway) {
	t.Helper()
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	return NewTransferService(f.store, f.executor, gw, f.audit, f.notes, ownBank), gw
}

func eur(value string) domain.Money {
	return domain.Money{Value: domain.MustAmount(value), Currency: "EUR"}
}

func TestSendLocalByPhone(t *testing.T) {
	f := newFixture(t)
	svc, _ := newTransferService(t, f)

	res, err := svc.Send(context.Background(), SendRequest{
		UserID:   "alice-id",
		Receiver: domain.ByPhone(bobPhone),
		Amount:   eur("30"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionLocal, res.Transaction.Direction)
	assert.Equal(t, domain.TxStatusCompleted, res.Transaction.Status)
	require.NotNil(t, res.Transaction.OriginPhone)
	assert.Equal(t, alicePhone, *res.Transaction.OriginPhone)
	assert.Equal(t, "70.00", f.balance(t, aliceIBAN))
	assert.Equal(t, "80.00", f.balance(t, bobIBAN))
}

func TestSendOutboundDelivered(t *testing.T) {
	f := newFixture(t)
	svc, gw := newTransferService(t, f)

	gw.EXPECT().Routable(partnerBank).Return(true)
	gw.EXPECT().Deliver(gomock.Any(), partnerBank, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msg *protocol.Message) error {
			assert.Equal(t, protocol.PathIBANTransfer, msg.Path())
			assert.Equal(t, aliceIBAN, *msg.Sender.AccountNumber)
			assert.Equal(t, "Alice Mora", msg.Sender.Name)

			fields, err := msg.Fields()
			require.NoError(t, err)
			ok, err := mac.Verify(fields, keyFor(secretFor(pairSecret)), msg.AuthDigest)
			require.NoError(t, err)
			assert.True(t, ok)

			// The sender is debited before the counterpart is contacted.
			assert.Equal(t, "60.00", f.balance(t, aliceIBAN))
			return nil
		})

	res, err := svc.Send(context.Background(), SendRequest{
		UserID:   "alice-id",
		Receiver: domain.ByIBAN(remoteIBAN),
		Amount:   eur("40"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, res.Transaction.Status)
	assert.Equal(t, domain.DirectionOutbound, res.Transaction.Direction)
	assert.Equal(t, partnerBank, res.Transaction.DestBank)
	assert.Equal(t, "60.00", f.balance(t, aliceIBAN))

	actions := auditActions(f.store.AuditEntries())
	assert.Equal(t, []string{"transfer.debited", "transfer.delivered"}, actions)
	assert.Len(t, f.notes.Seen(), 1)
}

func TestSendOutboundToSubscribedPhone(t *testing.T) {
	f := newFixture(t)
	f.store.AddSubscription(models.Subscription{Phone: remotePhone, BankCode: partnerBank, Name: "Carol Soto"})
	svc, gw := newTransferService(t, f)

	gw.EXPECT().Routable(partnerBank).Return(true)
	gw.EXPECT().Deliver(gomock.Any(), partnerBank, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msg *protocol.Message) error {
			assert.Equal(t, protocol.PathPhoneTransfer, msg.Path())
			assert.Equal(t, alicePhone, *msg.Sender.PhoneNumber)
			assert.Equal(t, "Carol Soto", msg.Receiver.Name)
			return nil
		})

	_, err := svc.Send(context.Background(), SendRequest{
		UserID:   "alice-id",
		Receiver: domain.ByPhone(remotePhone),
		Amount:   eur("5.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "94.50", f.balance(t, aliceIBAN))
}

func TestSendOutboundRefusedIsRefunded(t *testing.T) {
	f := newFixture(t)
	svc, gw := newTransferService(t, f)

	gw.EXPECT().Routable(partnerBank).Return(true)
	gw.EXPECT().Deliver(gomock.Any(), partnerBank, gomock.Any()).
		Return(&domain.RemoteBankError{BankCode: partnerBank, Status: 422, Message: "account closed"})

	_, err := svc.Send(context.Background(), SendRequest{
		UserID:   "alice-id",
		Receiver: domain.ByIBAN(remoteIBAN),
		Amount:   eur("40"),
	})
	var remote *domain.RemoteBankError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 422, remote.Status)
	assert.Equal(t, "100.00", f.balance(t, aliceIBAN))

	txns := f.store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TxStatusRejected, txns[0].Status)
	require.NotNil(t, txns[0].Reason)
	assert.Equal(t, "account closed", *txns[0].Reason)
	assert.Empty(t, f.notes.Seen())
}

func TestSendOutboundUnknownOutcomeStaysPending(t *testing.T) {
	f := newFixture(t)
	svc, gw := newTransferService(t, f)

	gw.EXPECT().Routable(partnerBank).Return(true)
	gw.EXPECT().Deliver(gomock.Any(), partnerBank, gomock.Any()).
		Return(errors.New("read tcp: connection reset by peer"))

	_, err := svc.Send(context.Background(), SendRequest{
		UserID:   "alice-id",
		Receiver: domain.ByIBAN(remoteIBAN),
		Amount:   eur("40"),
	})
	var remote *domain.RemoteBankError
	require.ErrorAs(t, err, &remote)
	assert.Zero(t, remote.Status)
	assert.Equal(t, "60.00", f.balance(t, aliceIBAN))

	txns := f.store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TxStatusPending, txns[0].Status)
}

func TestSendOutbound5xxStaysPending(t *testing.T) {
	for _, status := range []int{500, 502, 503, 504} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			f := newFixture(t)
			svc, gw := newTransferService(t, f)

			gw.EXPECT().Routable(partnerBank).Return(true)
			gw.EXPECT().Deliver(gomock.Any(), partnerBank, gomock.Any()).
				Return(&domain.RemoteBankError{BankCode: partnerBank, Status: status, Message: http.StatusText(status)})

			_, err := svc.Send(context.Background(), SendRequest{
				UserID:   "alice-id",
				Receiver: domain.ByIBAN(remoteIBAN),
				Amount:   eur("40"),
			})
			var remote *domain.RemoteBankError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, status, remote.Status)
			assert.Equal(t, "60.00", f.balance(t, aliceIBAN))

			txns := f.store.Transactions()
			require.Len(t, txns, 1)
			assert.Equal(t, domain.TxStatusPending, txns[0].Status)
			assert.Nil(t, txns[0].Reason)
			assert.Empty(t, f.notes.Seen())
		})
	}
}

func TestSendWithoutRoute(t *testing.T) {
	f := newFixture(t)
	svc, gw := newTransferService(t, f)
	gw.EXPECT().Routable("0333").Return(false)

	_, err := svc.Send(context.Background(), SendRequest{
		UserID:       "alice-id",
		Receiver:     domain.ByIBAN("CR21033300040000000004"),
		ReceiverBank: "0333",
		Amount:       eur("40"),
	})
	require.ErrorIs(t, err, domain.ErrNoRouteToBank)
	assert.Equal(t, "100.00", f.balance(t, aliceIBAN))
	assert.Empty(t, f.store.Transactions())
}

func TestSendOutboundInsufficientFundsNeverDelivers(t *testing.T) {
	f := newFixture(t)
	svc, gw := newTransferService(t, f)
	gw.EXPECT().Routable(partnerBank).Return(true)

	_, err := svc.Send(context.Background(), SendRequest{
		UserID:   "alice-id",
		Receiver: domain.ByIBAN(remoteIBAN),
		Amount:   eur("100.01"),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Empty(t, f.store.Transactions())
}

func TestSendValidation(t *testing.T) {
	cases := []struct {
		name string
		req  SendRequest
		want error
	}{
		{name: "unknown user", req: SendRequest{UserID: "nobody", Receiver: domain.ByIBAN(bobIBAN), Amount: eur("1")}, want: domain.ErrAccountNotFound},
		{name: "missing receiver", req: SendRequest{UserID: "alice-id", Amount: eur("1")}, want: domain.ErrInvalidPayload},
		{name: "zero amount", req: SendRequest{UserID: "alice-id", Receiver: domain.ByIBAN(bobIBAN), Amount: eur("0")}, want: domain.ErrInvalidPayload},
		{name: "bad bank code", req: SendRequest{UserID: "alice-id", Receiver: domain.ByIBAN(bobIBAN), ReceiverBank: "12", Amount: eur("1")}, want: domain.ErrInvalidPayload},
		{name: "unsubscribed phone", req: SendRequest{UserID: "alice-id", Receiver: domain.ByPhone("+50699990000"), Amount: eur("1")}, want: domain.ErrAccountNotFound},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			svc, _ := newTransferService(t, f)
			_, err := svc.Send(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, "100.00", f.balance(t, aliceIBAN))
		})
	}
}

func TestSendRevealsSealedHolderName(t *testing.T) {
	f := newFixture(t)
	box, err := fieldcrypt.NewBox(make([]byte, 32))
	require.NoError(t, err)
	sealed, err := box.Seal([]byte("Alice Mora"))
	require.NoError(t, err)

	alice, _ := f.store.Account(aliceIBAN)
	alice.Holder = domain.SealedName(sealed)
	f.store.AddAccount(alice)

	svc, gw := newTransferService(t, f)
	svc.WithNameOpener(box)
	gw.EXPECT().Routable(partnerBank).Return(true)
	gw.EXPECT().Deliver(gomock.Any(), partnerBank, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msg *protocol.Message) error {
			assert.Equal(t, "Alice Mora", msg.Sender.Name)
			return nil
		})

	_, err = svc.Send(context.Background(), SendRequest{UserID: "alice-id", Receiver: domain.ByIBAN(remoteIBAN), Amount: eur("1")})
	require.NoError(t, err)
}

func TestGetOnlyReturnsOwnTransfers(t *testing.T) {
	f := newFixture(t)
	svc, _ := newTransferService(t, f)
	ctx := context.Background()

	res, err := svc.Send(ctx, SendRequest{UserID: "alice-id", Receiver: domain.ByIBAN(bobIBAN), Amount: eur("1")})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "bob-id", res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Transaction.ID, got.ID)

	f.store.AddUser(models.User{ID: "mallory-id", Phone: "+50611112222", IBAN: "CR21011100070000000007"})
	_, err = svc.Get(ctx, "mallory-id", res.Transaction.ID)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = svc.Get(ctx, "alice-id", "missing")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func auditActions(entries []models.AuditEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}
