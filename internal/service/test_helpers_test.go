package service

import (
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/protocol"
	"github.com/ayo6706/interbank-transfers/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	ownBank     = "0111"
	partnerBank = "0222"

	aliceIBAN  = "CR21011100010000000001"
	bobIBAN    = "CR21011100020000000002"
	remoteIBAN = "CR21022200030000000003"

	alicePhone  = "+50688880001"
	bobPhone    = "+50688880002"
	remotePhone = "+50677770003"
)

var pairSecret = []byte("pair-secret")

type recordingNotifier struct {
	mu   sync.Mutex
	seen []models.Transaction
}

func (n *recordingNotifier) Notify(t models.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, t)
}

func (n *recordingNotifier) Seen() []models.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Transaction(nil), n.seen...)
}

type fixture struct {
	store    *memstore.Store
	notes    *recordingNotifier
	audit    *AuditService
	executor *Executor
}

// newFixture seeds bank 0111 with Alice (100.00) and Bob (50.00) and shared
// secrets for local, inbound and outbound traffic with bank 0222.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	store.AddAccount(account(aliceIBAN, ownBank, "100.00", "Alice Mora"))
	store.AddAccount(account(bobIBAN, ownBank, "50.00", "Bob Vargas"))
	store.AddUser(models.User{ID: "alice-id", Phone: alicePhone, Email: "alice@example.com", IBAN: aliceIBAN})
	store.AddUser(models.User{ID: "bob-id", Phone: bobPhone, Email: "bob@example.com", IBAN: bobIBAN})
	for _, pair := range [][2]string{{ownBank, ownBank}, {partnerBank, ownBank}, {ownBank, partnerBank}} {
		store.AddSecret(models.SharedSecret{OriginBank: pair[0], DestBank: pair[1], Secret: pairSecret, Algorithm: "hmac-md5"})
	}

	notes := &recordingNotifier{}
	audit := NewAuditService()
	return &fixture{
		store:    store,
		notes:    notes,
		audit:    audit,
		executor: NewExecutor(store, NewAccountResolver(), audit, notes, ownBank),
	}
}

func account(iban, bank, balance, holder string) models.Account {
	return models.Account{
		IBAN:          iban,
		AccountNumber: iban[len(iban)-10:],
		BankCode:      bank,
		Type:          domain.AccountTypeChecking,
		Holder:        domain.PlaintextName(holder),
		Balance:       domain.MustAmount(balance),
		Currency:      "EUR",
		Status:        domain.AccountStatusActive,
	}
}

func (f *fixture) balance(t *testing.T, iban string) string {
	t.Helper()
	a, ok := f.store.Account(iban)
	require.True(t, ok, "account %s missing", iban)
	return a.Balance.Fixed()
}

func ibanParty(iban, bank string) protocol.Party {
	return protocol.PartyFor(domain.ByIBAN(iban), bank, "")
}

func phoneParty(phone, bank string) protocol.Party {
	return protocol.PartyFor(domain.ByPhone(phone), bank, "")
}

// signedMessage builds a message signed with the shared pair secret.
func signedMessage(t *testing.T, sender, receiver protocol.Party, amount string) *protocol.Message {
	t.Helper()
	msg := &protocol.Message{
		Version:       domain.ProtocolVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		TransactionID: uuid.NewString(),
		Sender:        sender,
		Receiver:      receiver,
		Amount:        domain.Money{Value: domain.MustAmount(amount), Currency: "EUR"},
	}
	require.NoError(t, msg.Sign(keyFor(models.SharedSecret{Secret: pairSecret, Algorithm: "hmac-md5"})))
	return msg
}

func secretFor(secret []byte) models.SharedSecret {
	return models.SharedSecret{Secret: secret, Algorithm: "hmac-md5"}
}
