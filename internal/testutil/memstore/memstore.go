// Package memstore is an in-memory ledger that behaves like the Postgres
// store for tests: row locks block across transactions, writes are staged and
// only become visible on commit.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type secretKey struct {
	origin string
	dest   string
}

type Store struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	users    map[string]models.User
	secrets  map[secretKey]models.SharedSecret
	subs     map[string]models.Subscription
	txns     map[string]models.Transaction
	audit    []models.AuditEntry
	auditSeq int64

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	commitHook func() error
	now        func() time.Time
}

func New() *Store {
	return &Store{
		accounts: make(map[string]models.Account),
		users:    make(map[string]models.User),
		secrets:  make(map[secretKey]models.SharedSecret),
		subs:     make(map[string]models.Subscription),
		txns:     make(map[string]models.Transaction),
		locks:    make(map[string]chan struct{}),
		now:      time.Now,
	}
}

// SetCommitHook installs fn to run before every commit; a non-nil return
// aborts the commit with that error.
func (s *Store) SetCommitHook(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = fn
}

func (s *Store) AddAccount(a models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.UpdatedAt = a.CreatedAt
	s.accounts[a.IBAN] = a
}

func (s *Store) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Phone] = u
}

func (s *Store) AddSecret(sec models.SharedSecret) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secretKey{sec.OriginBank, sec.DestBank}] = sec
}

func (s *Store) AddSubscription(sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.Phone] = sub
}

func (s *Store) AddTransaction(t models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[t.ID] = t
}

// Account returns the committed state of an account.
func (s *Store) Account(iban string) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[iban]
	return a, ok
}

func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, 0, len(s.txns))
	for _, t := range s.txns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) AuditEntries() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEntry(nil), s.audit...)
}

func (s *Store) Queries() repository.Querier {
	return autoQuerier{s: s}
}

func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	tx := &txQuerier{
		s:        s,
		held:     make(map[string]struct{}),
		accounts: make(map[string]models.Account),
		txns:     make(map[string]models.Transaction),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) lockChan(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

type txQuerier struct {
	s        *Store
	held     map[string]struct{}
	accounts map[string]models.Account
	txns     map[string]models.Transaction
	audit    []models.AuditEntry
}

var _ repository.Querier = (*txQuerier)(nil)

func (q *txQuerier) lock(ctx context.Context, key string) error {
	if _, ok := q.held[key]; ok {
		return nil
	}
	select {
	case q.s.lockChan(key) <- struct{}{}:
		q.held[key] = struct{}{}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *txQuerier) release() {
	for key := range q.held {
		<-q.s.lockChan(key)
	}
	q.held = nil
}

func (q *txQuerier) commit() error {
	s := q.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitHook != nil {
		if err := s.commitHook(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
	}
	for iban, a := range q.accounts {
		s.accounts[iban] = a
	}
	for id, t := range q.txns {
		s.txns[id] = t
	}
	for _, e := range q.audit {
		s.auditSeq++
		e.ID = s.auditSeq
		s.audit = append(s.audit, e)
	}
	return nil
}

func (q *txQuerier) account(iban string) (models.Account, bool) {
	if a, ok := q.accounts[iban]; ok {
		return a, true
	}
	return q.s.Account(iban)
}

func (q *txQuerier) transaction(id string) (models.Transaction, bool) {
	if t, ok := q.txns[id]; ok {
		return t, true
	}
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	t, ok := q.s.txns[id]
	return t, ok
}

func (q *txQuerier) GetAccountByIBAN(_ context.Context, iban string) (models.Account, error) {
	a, ok := q.account(iban)
	if !ok {
		return models.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (q *txQuerier) LockAccounts(ctx context.Context, ibans []string) error {
	sorted := append([]string(nil), ibans...)
	sort.Strings(sorted)
	for _, iban := range sorted {
		if _, ok := q.account(iban); !ok {
			return pgx.ErrNoRows
		}
		if err := q.lock(ctx, "account:"+iban); err != nil {
			return err
		}
	}
	return nil
}

func (q *txQuerier) GetUserByPhone(_ context.Context, phone string) (models.User, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	u, ok := q.s.users[phone]
	if !ok {
		return models.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (q *txQuerier) GetUserByID(_ context.Context, id string) (models.User, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	for _, u := range q.s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, pgx.ErrNoRows
}

func (q *txQuerier) GetSharedSecret(_ context.Context, originBank, destBank string) (models.SharedSecret, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	sec, ok := q.s.secrets[secretKey{originBank, destBank}]
	if !ok {
		return models.SharedSecret{}, pgx.ErrNoRows
	}
	return sec, nil
}

func (q *txQuerier) GetSubscriptionByPhone(_ context.Context, phone string) (models.Subscription, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	sub, ok := q.s.subs[phone]
	if !ok {
		return models.Subscription{}, pgx.ErrNoRows
	}
	return sub, nil
}

func (q *txQuerier) GetTransaction(_ context.Context, id string) (models.Transaction, error) {
	t, ok := q.transaction(id)
	if !ok {
		return models.Transaction{}, pgx.ErrNoRows
	}
	return t, nil
}

func (q *txQuerier) GetTransactionStatusForUpdate(ctx context.Context, id string) (string, error) {
	if err := q.lock(ctx, "txn:"+id); err != nil {
		return "", err
	}
	t, ok := q.transaction(id)
	if !ok {
		return "", pgx.ErrNoRows
	}
	return t.Status, nil
}

func (q *txQuerier) DebitAccount(ctx context.Context, arg repository.BalanceChangeParams) (int64, error) {
	if err := q.lock(ctx, "account:"+arg.IBAN); err != nil {
		return 0, err
	}
	a, ok := q.account(arg.IBAN)
	if !ok || a.Balance.LessThan(arg.Amount.Decimal) {
		return 0, nil
	}
	a.Balance = a.Balance.Sub(arg.Amount)
	a.UpdatedAt = q.s.now()
	q.accounts[arg.IBAN] = a
	return 1, nil
}

func (q *txQuerier) CreditAccount(ctx context.Context, arg repository.BalanceChangeParams) (int64, error) {
	if err := q.lock(ctx, "account:"+arg.IBAN); err != nil {
		return 0, err
	}
	a, ok := q.account(arg.IBAN)
	if !ok {
		return 0, nil
	}
	a.Balance = a.Balance.Add(arg.Amount)
	a.UpdatedAt = q.s.now()
	q.accounts[arg.IBAN] = a
	return 1, nil
}

func (q *txQuerier) CreateTransaction(ctx context.Context, arg repository.CreateTransactionParams) (models.Transaction, error) {
	if err := q.lock(ctx, "txn:"+arg.ID); err != nil {
		return models.Transaction{}, err
	}
	if _, exists := q.transaction(arg.ID); exists {
		return models.Transaction{}, &pgconn.PgError{Code: uniqueViolation, Message: "duplicate key value violates unique constraint \"transactions_pkey\""}
	}
	now := q.s.now()
	t := models.Transaction{
		ID:          arg.ID,
		OriginIBAN:  arg.OriginIBAN,
		OriginPhone: arg.OriginPhone,
		OriginBank:  arg.OriginBank,
		DestIBAN:    arg.DestIBAN,
		DestPhone:   arg.DestPhone,
		DestBank:    arg.DestBank,
		Amount:      arg.Amount,
		Currency:    arg.Currency,
		Description: arg.Description,
		Status:      arg.Status,
		Direction:   arg.Direction,
		AuthDigest:  arg.AuthDigest,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.txns[t.ID] = t
	return t, nil
}

func (q *txQuerier) UpdateTransactionStatus(ctx context.Context, arg repository.UpdateTransactionStatusParams) (int64, error) {
	if err := q.lock(ctx, "txn:"+arg.ID); err != nil {
		return 0, err
	}
	t, ok := q.transaction(arg.ID)
	if !ok {
		return 0, nil
	}
	t.Status = arg.Status
	if arg.Reason != nil {
		t.Reason = arg.Reason
	}
	t.UpdatedAt = q.s.now()
	q.txns[t.ID] = t
	return 1, nil
}

func (q *txQuerier) InsertAuditLog(_ context.Context, arg repository.InsertAuditLogParams) (int64, error) {
	q.audit = append(q.audit, models.AuditEntry{
		EntityType: arg.EntityType,
		EntityID:   arg.EntityID,
		Actor:      arg.Actor,
		Action:     arg.Action,
		PrevState:  arg.PrevState,
		NextState:  arg.NextState,
		Metadata:   arg.Metadata,
		CreatedAt:  q.s.now(),
	})
	return int64(len(q.audit)), nil
}

func (q *txQuerier) ListNegativeBalances(_ context.Context) ([]models.Account, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	var out []models.Account
	for _, a := range q.s.accounts {
		if a.Balance.IsNegative() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IBAN < out[j].IBAN })
	return out, nil
}

func (q *txQuerier) ListStalePending(_ context.Context, before time.Time, limit int32) ([]models.Transaction, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	var out []models.Transaction
	for _, t := range q.s.txns {
		if t.Status == "PENDING" && t.UpdatedAt.Before(before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// autoQuerier runs each call in its own transaction, like a pool-backed
// query set.
type autoQuerier struct {
	s *Store
}

var _ repository.Querier = autoQuerier{}

func auto[T any](ctx context.Context, s *Store, fn func(q repository.Querier) (T, error)) (T, error) {
	var out T
	err := s.RunInTx(ctx, func(q repository.Querier) error {
		var err error
		out, err = fn(q)
		return err
	})
	return out, err
}

func (a autoQuerier) GetAccountByIBAN(ctx context.Context, iban string) (models.Account, error) {
	return auto(ctx, a.s, func(q repository.Querier) (models.Account, error) { return q.GetAccountByIBAN(ctx, iban) })
}

func (a autoQuerier) LockAccounts(ctx context.Context, ibans []string) error {
	return a.s.RunInTx(ctx, func(q repository.Querier) error { return q.LockAccounts(ctx, ibans) })
}

func (a autoQuerier) GetUserByPhone(ctx context.Context, phone string) (models.User, error) {
	return auto(ctx, a.s, func(q repository.Querier) (models.User, error) { return q.GetUserByPhone(ctx, phone) })
}

func (a autoQuerier) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return auto(ctx, a.s, func(q repository.Querier) (models.User, error) { return q.GetUserByID(ctx, id) })
}

func (a autoQuerier) GetSharedSecret(ctx context.Context, originBank, destBank string) (models.SharedSecret, error) {
	return auto(ctx, a.s, func(q repository.Querier) (models.SharedSecret, error) {
		return q.GetSharedSecret(ctx, originBank, destBank)
	})
}

func (a autoQuerier) GetSubscriptionByPhone(ctx context.Context, phone string) (models.Subscription, error) {
	return auto(ctx, a.s, func(q repository.Querier) (models.Subscription, error) {
		return q.GetSubscriptionByPhone(ctx, phone)
	})
}

func (a autoQuerier) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	return auto(ctx, a.s, func(q repository.Querier) (models.Transaction, error) { return q.GetTransaction(ctx, id) })
}

func (a autoQuerier) GetTransactionStatusForUpdate(ctx context.Context, id string) (string, error) {
	return auto(ctx, a.s, func(q repository.Querier) (string, error) { return q.GetTransactionStatusForUpdate(ctx, id) })
}

func (a autoQuerier) DebitAccount(ctx context.Context, arg repository.BalanceChangeParams) (int64, error) {
	return auto(ctx, a.s, func(q repository.Querier) (int64, error) { return q.DebitAccount(ctx, arg) })
}

func (a autoQuerier) CreditAccount(ctx context.Context, arg repository.BalanceChangeParams) (int64, error) {
	return auto(ctx, a.s, func(q repository.Querier) (int64, error) { return q.CreditAccount(ctx, arg) })
}

func (a autoQuerier) CreateTransaction(ctx context.Context, arg repository.CreateTransactionParams) (models.Transaction, error) {
	return auto(ctx, a.s, func(q repository.Querier) (models.Transaction, error) { return q.CreateTransaction(ctx, arg) })
}

func (a autoQuerier) UpdateTransactionStatus(ctx context.Context, arg repository.UpdateTransactionStatusParams) (int64, error) {
	return auto(ctx, a.s, func(q repository.Querier) (int64, error) { return q.UpdateTransactionStatus(ctx, arg) })
}

func (a autoQuerier) InsertAuditLog(ctx context.Context, arg repository.InsertAuditLogParams) (int64, error) {
	return auto(ctx, a.s, func(q repository.Querier) (int64, error) { return q.InsertAuditLog(ctx, arg) })
}

func (a autoQuerier) ListNegativeBalances(ctx context.Context) ([]models.Account, error) {
	return auto(ctx, a.s, func(q repository.Querier) ([]models.Account, error) { return q.ListNegativeBalances(ctx) })
}

func (a autoQuerier) ListStalePending(ctx context.Context, before time.Time, limit int32) ([]models.Transaction, error) {
	return auto(ctx, a.s, func(q repository.Querier) ([]models.Transaction, error) {
		return q.ListStalePending(ctx, before, limit)
	})
}
