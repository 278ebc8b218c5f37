package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/mac"
	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/observability"
	"github.com/ayo6706/interbank-transfers/internal/protocol"
	"github.com/ayo6706/interbank-transfers/internal/repository"
	"go.uber.org/zap"
)

// Stage is a step of the transfer state machine. A rejection can happen at
// any stage before StageCommitted.
type Stage string

const (
	StageReceived      Stage = "RECEIVED"
	StageAuthenticated Stage = "AUTHENTICATED"
	StageResolved      Stage = "RESOLVED"
	StageFundsChecked  Stage = "FUNDS_CHECKED"
	StageCommitted     Stage = "COMMITTED"
	StageRejected      Stage = "REJECTED"
)

// Notifier is told about every committed transfer. It must not block.
type Notifier interface {
	Notify(t models.Transaction)
}

// Result is the outcome of an accepted transfer. Replayed is set when the
// transaction id had already been committed with the same details.
type Result struct {
	Transaction models.Transaction
	Replayed    bool
}

// Executor validates, authenticates and commits transfer messages addressed
// to this bank.
type Executor struct {
	store    QueryStore
	resolver *AccountResolver
	audit    *AuditService
	notifier Notifier
	ownBank  string
}

func NewExecutor(store QueryStore, resolver *AccountResolver, audit *AuditService, notifier Notifier, ownBank string) *Executor {
	return &Executor{
		store:    store,
		resolver: resolver,
		audit:    audit,
		notifier: notifier,
		ownBank:  ownBank,
	}
}

type execution struct {
	msg       *protocol.Message
	stage     Stage
	direction string
	actor     string
}

// Execute runs msg through the gates in order: schema, digest, resolution,
// funds, commit. Every rejection leaves the ledger untouched. A transaction
// id that was already committed with the same details returns the stored row.
func (e *Executor) Execute(ctx context.Context, msg *protocol.Message, actor string) (Result, error) {
	run := &execution{
		msg:       msg,
		stage:     StageReceived,
		direction: domain.DirectionInbound,
		actor:     actor,
	}
	if msg != nil && msg.Sender.BankCode == e.ownBank {
		run.direction = domain.DirectionLocal
	}

	res, err := e.execute(ctx, run)
	if err != nil {
		e.logRejection(run, err)
		return Result{}, err
	}

	if res.Replayed {
		observability.IncrementTransfer(run.direction, "replayed")
		zap.L().Info("transfer replayed", zap.String("transaction_id", res.Transaction.ID))
		return res, nil
	}

	run.stage = StageCommitted
	observability.IncrementTransfer(run.direction, "completed")
	zap.L().Info("transfer committed",
		zap.String("transaction_id", res.Transaction.ID),
		zap.String("direction", run.direction),
		zap.String("amount", res.Transaction.Amount.Fixed()),
		zap.String("currency", res.Transaction.Currency),
	)
	if e.notifier != nil {
		e.notifier.Notify(res.Transaction)
	}
	return res, nil
}

func (e *Executor) execute(ctx context.Context, run *execution) (Result, error) {
	msg := run.msg
	if msg == nil {
		return Result{}, domain.InvalidPayload("empty message")
	}
	if err := msg.Validate(); err != nil {
		return Result{}, err
	}
	fields, err := msg.Fields()
	if err != nil {
		return Result{}, err
	}

	if err := e.authenticate(ctx, msg, fields); err != nil {
		return Result{}, err
	}
	run.stage = StageAuthenticated

	if msg.Receiver.BankCode != e.ownBank {
		return Result{}, fmt.Errorf("%w: receiver bank %s is not hosted here", domain.ErrBankCodeMismatch, msg.Receiver.BankCode)
	}

	existing, err := e.store.Queries().GetTransaction(ctx, msg.TransactionID)
	switch {
	case err == nil:
		return replay(existing, msg)
	case !isNoRows(err):
		return Result{}, storageError("check transaction id", err)
	}

	var committed models.Transaction
	err = e.store.RunInTx(ctx, func(q repository.Querier) error {
		t, err := e.commit(ctx, q, run)
		if err != nil {
			return err
		}
		committed = t
		return nil
	})
	if isUniqueViolation(err) {
		// Lost a race with a concurrent delivery of the same id.
		existing, getErr := e.store.Queries().GetTransaction(ctx, msg.TransactionID)
		if getErr != nil {
			return Result{}, storageError("reload transaction", getErr)
		}
		return replay(existing, msg)
	}
	if err != nil {
		return Result{}, storageError("commit transfer", err)
	}
	return Result{Transaction: committed}, nil
}

func (e *Executor) authenticate(ctx context.Context, msg *protocol.Message, fields mac.Fields) error {
	secret, err := e.store.Queries().GetSharedSecret(ctx, msg.Sender.BankCode, msg.Receiver.BankCode)
	if isNoRows(err) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrNoSharedSecret, msg.Sender.BankCode, msg.Receiver.BankCode)
	}
	if err != nil {
		return storageError("get shared secret", err)
	}

	ok, err := mac.Verify(fields, keyFor(secret), msg.AuthDigest)
	if err != nil {
		zap.L().Error("shared secret misconfigured",
			zap.String("origin_bank", secret.OriginBank),
			zap.String("destination_bank", secret.DestBank),
			zap.Error(err),
		)
		return domain.ErrAuthenticationFailed
	}
	if !ok {
		return domain.ErrAuthenticationFailed
	}
	return nil
}

func (e *Executor) commit(ctx context.Context, q repository.Querier, run *execution) (models.Transaction, error) {
	msg := run.msg
	senderID, _ := msg.Sender.Identifier()
	receiverID, _ := msg.Receiver.Identifier()
	amount := msg.Amount.Value
	local := run.direction == domain.DirectionLocal

	dest, err := e.resolver.ResolveAt(ctx, q, receiverID, msg.Receiver.BankCode)
	if err != nil {
		return models.Transaction{}, err
	}
	var origin models.Account
	ibans := []string{dest.IBAN}
	if local {
		origin, err = e.resolver.ResolveAt(ctx, q, senderID, msg.Sender.BankCode)
		if err != nil {
			return models.Transaction{}, err
		}
		if origin.IBAN == dest.IBAN {
			return models.Transaction{}, domain.InvalidPayload("sender and receiver are the same account")
		}
		ibans = append(ibans, origin.IBAN)
	}
	run.stage = StageResolved

	if err := q.LockAccounts(ctx, ibans); err != nil {
		if isNoRows(err) {
			return models.Transaction{}, domain.ErrAccountNotFound
		}
		return models.Transaction{}, fmt.Errorf("lock accounts: %w", err)
	}

	// Re-read under lock; the resolution reads above may be stale.
	dest, err = q.GetAccountByIBAN(ctx, dest.IBAN)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("reload destination: %w", err)
	}
	if err := requireActive(dest); err != nil {
		return models.Transaction{}, err
	}
	if local {
		origin, err = q.GetAccountByIBAN(ctx, origin.IBAN)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("reload origin: %w", err)
		}
		if err := requireActive(origin); err != nil {
			return models.Transaction{}, err
		}
		if origin.Balance.LessThan(amount.Decimal) {
			return models.Transaction{}, domain.ErrInsufficientFunds
		}
	}
	run.stage = StageFundsChecked

	if local {
		rows, err := q.DebitAccount(ctx, repository.BalanceChangeParams{IBAN: origin.IBAN, Amount: amount})
		if err != nil {
			return models.Transaction{}, fmt.Errorf("debit origin: %w", err)
		}
		if rows == 0 {
			return models.Transaction{}, domain.ErrInsufficientFunds
		}
	}
	rows, err := q.CreditAccount(ctx, repository.BalanceChangeParams{IBAN: dest.IBAN, Amount: amount})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("credit destination: %w", err)
	}
	if err := requireExactlyOne(rows, "credit destination"); err != nil {
		return models.Transaction{}, err
	}

	params := ledgerRow(msg, domain.TxStatusCompleted, run.direction)
	if local && params.OriginIBAN == nil {
		params.OriginIBAN = strPtr(origin.IBAN)
	}
	if params.DestIBAN == nil {
		params.DestIBAN = strPtr(dest.IBAN)
	}
	t, err := q.CreateTransaction(ctx, params)
	if err != nil {
		return models.Transaction{}, err
	}

	meta := auditMetadata(map[string]any{
		"direction": run.direction,
		"kind":      msg.Kind(),
		"amount":    amount.Fixed(),
		"currency":  msg.Amount.Currency,
	})
	if err := e.audit.Write(ctx, q, "transaction", t.ID, run.actor, "transfer.committed", "", domain.TxStatusCompleted, meta); err != nil {
		return models.Transaction{}, err
	}
	return t, nil
}

func (e *Executor) logRejection(run *execution, err error) {
	code := domain.Code(err)
	observability.IncrementTransfer(run.direction, code)

	txID := ""
	if run.msg != nil {
		txID = run.msg.TransactionID
	}
	fields := []zap.Field{
		zap.String("transaction_id", txID),
		zap.String("gate", string(run.stage)),
		zap.String("code", code),
		zap.Error(err),
	}
	run.stage = StageRejected
	if code == "StorageFailure" {
		zap.L().Error("transfer failed", fields...)
		return
	}
	zap.L().Warn("transfer rejected", fields...)
}

// replay accepts a repeated delivery of an already committed transaction id
// when the stored row matches the message, and rejects it otherwise.
func replay(existing models.Transaction, msg *protocol.Message) (Result, error) {
	same := strings.EqualFold(existing.AuthDigest, strings.TrimSpace(msg.AuthDigest)) &&
		existing.Amount.Equal(msg.Amount.Value.Decimal) &&
		existing.Currency == msg.Amount.Currency &&
		existing.OriginBank == msg.Sender.BankCode &&
		existing.DestBank == msg.Receiver.BankCode
	if !same {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrDuplicateTransaction, msg.TransactionID)
	}
	return Result{Transaction: existing, Replayed: true}, nil
}

// ledgerRow maps msg onto a transaction insert. Each side is recorded under
// the identifier kind it was addressed with.
func ledgerRow(msg *protocol.Message, status, direction string) repository.CreateTransactionParams {
	p := repository.CreateTransactionParams{
		ID:          msg.TransactionID,
		OriginBank:  msg.Sender.BankCode,
		DestBank:    msg.Receiver.BankCode,
		Amount:      msg.Amount.Value,
		Currency:    msg.Amount.Currency,
		Description: msg.Description,
		Status:      status,
		Direction:   direction,
		AuthDigest:  strings.ToLower(strings.TrimSpace(msg.AuthDigest)),
	}
	if id, err := msg.Sender.Identifier(); err == nil {
		switch v := id.(type) {
		case domain.ByIBAN:
			p.OriginIBAN = strPtr(string(v))
		case domain.ByPhone:
			p.OriginPhone = strPtr(string(v))
		}
	}
	if id, err := msg.Receiver.Identifier(); err == nil {
		switch v := id.(type) {
		case domain.ByIBAN:
			p.DestIBAN = strPtr(string(v))
		case domain.ByPhone:
			p.DestPhone = strPtr(string(v))
		}
	}
	return p
}

func keyFor(s models.SharedSecret) mac.Key {
	return mac.Key{Secret: s.Secret, Algorithm: s.Algorithm, AcceptLegacy: s.AcceptLegacy}
}
