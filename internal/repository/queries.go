package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Queries implements Querier against Postgres.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

var _ Querier = (*Queries)(nil)

const accountColumns = `iban, account_number, bank_code, account_type, holder_name, holder_name_sealed,
	balance, currency, status, created_at, updated_at`

func scanAccount(row pgx.Row) (models.Account, error) {
	var (
		a      models.Account
		plain  *string
		sealed []byte
	)
	err := row.Scan(&a.IBAN, &a.AccountNumber, &a.BankCode, &a.Type, &plain, &sealed,
		&a.Balance, &a.Currency, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Account{}, err
	}
	switch {
	case sealed != nil:
		a.Holder = domain.SealedName(sealed)
	case plain != nil:
		a.Holder = domain.PlaintextName(*plain)
	}
	return a, nil
}

func (q *Queries) GetAccountByIBAN(ctx context.Context, iban string) (models.Account, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE iban = $1`, iban)
	return scanAccount(row)
}

func (q *Queries) LockAccounts(ctx context.Context, ibans []string) error {
	rows, err := q.db.Query(ctx, `SELECT iban FROM accounts WHERE iban = ANY($1) ORDER BY iban FOR UPDATE`, ibans)
	if err != nil {
		return fmt.Errorf("lock accounts: %w", err)
	}
	defer rows.Close()
	locked := 0
	for rows.Next() {
		locked++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock accounts: %w", err)
	}
	if locked != len(uniq(ibans)) {
		return pgx.ErrNoRows
	}
	return nil
}

func (q *Queries) GetUserByPhone(ctx context.Context, phone string) (models.User, error) {
	var u models.User
	err := q.db.QueryRow(ctx, `SELECT id, phone, email, iban, created_at FROM users WHERE phone = $1`, phone).
		Scan(&u.ID, &u.Phone, &u.Email, &u.IBAN, &u.CreatedAt)
	return u, err
}

func (q *Queries) GetUserByID(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := q.db.QueryRow(ctx, `SELECT id, phone, email, iban, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Phone, &u.Email, &u.IBAN, &u.CreatedAt)
	return u, err
}

func (q *Queries) GetSharedSecret(ctx context.Context, originBank, destBank string) (models.SharedSecret, error) {
	var s models.SharedSecret
	err := q.db.QueryRow(ctx, `
		SELECT origin_bank_code, destination_bank_code, secret, algorithm, accept_legacy
		FROM shared_secrets
		WHERE origin_bank_code = $1 AND destination_bank_code = $2`, originBank, destBank).
		Scan(&s.OriginBank, &s.DestBank, &s.Secret, &s.Algorithm, &s.AcceptLegacy)
	return s, err
}

func (q *Queries) GetSubscriptionByPhone(ctx context.Context, phone string) (models.Subscription, error) {
	var s models.Subscription
	err := q.db.QueryRow(ctx, `SELECT phone, bank_code, name FROM subscriptions WHERE phone = $1`, phone).
		Scan(&s.Phone, &s.BankCode, &s.Name)
	return s, err
}

const transactionColumns = `id, origin_iban, origin_phone, origin_bank_code, destination_iban, destination_phone,
	destination_bank_code, amount, currency, description, reason, status, direction, auth_digest, created_at, updated_at`

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.OriginIBAN, &t.OriginPhone, &t.OriginBank, &t.DestIBAN, &t.DestPhone,
		&t.DestBank, &t.Amount, &t.Currency, &t.Description, &t.Reason, &t.Status, &t.Direction,
		&t.AuthDigest, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (q *Queries) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (q *Queries) GetTransactionStatusForUpdate(ctx context.Context, id string) (string, error) {
	var status string
	err := q.db.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	return status, err
}

func (q *Queries) DebitAccount(ctx context.Context, arg BalanceChangeParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts SET balance = balance - $1, updated_at = NOW()
		WHERE iban = $2 AND balance >= $1`, arg.Amount.Decimal, arg.IBAN)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CreditAccount(ctx context.Context, arg BalanceChangeParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = NOW()
		WHERE iban = $2`, arg.Amount.Decimal, arg.IBAN)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (models.Transaction, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO transactions (id, origin_iban, origin_phone, origin_bank_code, destination_iban,
			destination_phone, destination_bank_code, amount, currency, description, status, direction, auth_digest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+transactionColumns,
		arg.ID, arg.OriginIBAN, arg.OriginPhone, arg.OriginBank, arg.DestIBAN, arg.DestPhone, arg.DestBank,
		arg.Amount.Decimal, arg.Currency, arg.Description, arg.Status, arg.Direction, arg.AuthDigest)
	return scanTransaction(row)
}

func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions SET status = $1, reason = COALESCE($2, reason), updated_at = NOW()
		WHERE id = $3`, arg.Status, arg.Reason, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, actor, action, prev_state, next_state, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		arg.EntityType, arg.EntityID, arg.Actor, arg.Action, arg.PrevState, arg.NextState, arg.Metadata).Scan(&id)
	return id, err
}

func (q *Queries) ListNegativeBalances(ctx context.Context) ([]models.Account, error) {
	rows, err := q.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE balance < 0 ORDER BY iban`)
	if err != nil {
		return nil, fmt.Errorf("list negative balances: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) ListStalePending(ctx context.Context, before time.Time, limit int32) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = 'PENDING' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
