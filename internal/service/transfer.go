package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/gateway"
	"github.com/ayo6706/interbank-transfers/internal/mac"
	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/observability"
	"github.com/ayo6706/interbank-transfers/internal/protocol"
	"github.com/ayo6706/interbank-transfers/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendRequest is a customer's request to move money out of their account.
type SendRequest struct {
	UserID string
	// Receiver is addressed by IBAN or by phone number.
	Receiver domain.Identifier
	// ReceiverBank may be left empty; it is then taken from the phone
	// subscription or the IBAN.
	ReceiverBank string
	Amount       domain.Money
	Description  *string
}

// TransferService originates transfers on behalf of this bank's customers.
// Same-bank transfers go straight through the Executor; transfers to other
// banks debit locally, then deliver the signed message to the counterpart.
type TransferService struct {
	store    QueryStore
	executor *Executor
	gateway  gateway.Gateway
	audit    *AuditService
	notifier Notifier
	names    domain.NameOpener
	ownBank  string

	now   func() time.Time
	newID func() string
}

func NewTransferService(store QueryStore, executor *Executor, gw gateway.Gateway, audit *AuditService, notifier Notifier, ownBank string) *TransferService {
	return &TransferService{
		store:    store,
		executor: executor,
		gateway:  gw,
		audit:    audit,
		notifier: notifier,
		ownBank:  ownBank,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithNameOpener lets the service reveal sealed holder names when it fills in
// the sender's display name.
func (s *TransferService) WithNameOpener(o domain.NameOpener) *TransferService {
	s.names = o
	return s
}

func (s *TransferService) Send(ctx context.Context, req SendRequest) (Result, error) {
	q := s.store.Queries()
	actor := "user:" + req.UserID

	user, err := q.GetUserByID(ctx, req.UserID)
	if isNoRows(err) {
		return Result{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return Result{}, storageError("get user", err)
	}
	sender, err := q.GetAccountByIBAN(ctx, user.IBAN)
	if isNoRows(err) {
		return Result{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return Result{}, storageError("get sender account", err)
	}
	if sender.BankCode != s.ownBank {
		return Result{}, fmt.Errorf("%w: sender account is held at %s", domain.ErrBankCodeMismatch, sender.BankCode)
	}
	if err := requireActive(sender); err != nil {
		return Result{}, err
	}
	if req.Receiver == nil || req.Receiver.String() == "" {
		return Result{}, domain.InvalidPayload("receiver is required")
	}
	if err := req.Amount.Validate(); err != nil {
		return Result{}, err
	}

	destBank, destName, err := s.destination(ctx, q, req)
	if err != nil {
		return Result{}, err
	}

	var senderID domain.Identifier = domain.ByIBAN(sender.IBAN)
	if req.Receiver.Kind() == domain.TransferKindPhone {
		senderID = domain.ByPhone(user.Phone)
	}
	msg := &protocol.Message{
		Version:       domain.ProtocolVersion,
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		TransactionID: s.newID(),
		Sender:        protocol.PartyFor(senderID, s.ownBank, s.holderName(sender)),
		Receiver:      protocol.PartyFor(req.Receiver, destBank, destName),
		Amount:        req.Amount,
		Description:   req.Description,
	}

	if destBank == s.ownBank {
		if err := s.sign(ctx, msg, destBank); err != nil {
			return Result{}, err
		}
		return s.executor.Execute(ctx, msg, actor)
	}

	if !s.gateway.Routable(destBank) {
		observability.IncrementTransfer(domain.DirectionOutbound, "NoRouteToBank")
		return Result{}, fmt.Errorf("%w: %s", domain.ErrNoRouteToBank, destBank)
	}
	if err := s.sign(ctx, msg, destBank); err != nil {
		return Result{}, err
	}
	if err := msg.Validate(); err != nil {
		return Result{}, err
	}
	return s.sendRemote(ctx, msg, sender, actor)
}

// destination works out which bank hosts the receiver and the display name to
// put on the message.
func (s *TransferService) destination(ctx context.Context, q repository.Querier, req SendRequest) (string, string, error) {
	if req.ReceiverBank != "" {
		if !domain.IsBankCode(req.ReceiverBank) {
			return "", "", domain.InvalidPayload("receiver bank_code must be four digits")
		}
		return req.ReceiverBank, "", nil
	}

	switch id := req.Receiver.(type) {
	case domain.ByPhone:
		phone := domain.NormalizePhone(string(id))
		sub, err := q.GetSubscriptionByPhone(ctx, phone)
		if err == nil {
			return sub.BankCode, sub.Name, nil
		}
		if !isNoRows(err) {
			return "", "", storageError("get subscription", err)
		}
		if _, err := q.GetUserByPhone(ctx, phone); err == nil {
			return s.ownBank, "", nil
		} else if !isNoRows(err) {
			return "", "", storageError("get user by phone", err)
		}
		return "", "", fmt.Errorf("%w: no bank is subscribed for %s", domain.ErrAccountNotFound, phone)
	case domain.ByIBAN:
		if code := domain.BankCodeFromIBAN(string(id)); code != "" {
			return code, "", nil
		}
		return "", "", domain.InvalidPayload("receiver bank_code is required for this IBAN")
	default:
		return "", "", domain.InvalidPayload("receiver must be an IBAN or a phone number")
	}
}

func (s *TransferService) sign(ctx context.Context, msg *protocol.Message, destBank string) error {
	secret, err := s.store.Queries().GetSharedSecret(ctx, s.ownBank, destBank)
	if isNoRows(err) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrNoSharedSecret, s.ownBank, destBank)
	}
	if err != nil {
		return storageError("get shared secret", err)
	}
	if err := msg.Sign(keyFor(secret)); err != nil {
		if errors.Is(err, mac.ErrUnknownAlgorithm) {
			zap.L().Error("shared secret misconfigured", zap.String("destination_bank", destBank), zap.Error(err))
		}
		return err
	}
	return nil
}

// sendRemote debits the sender and records a PENDING row, delivers the
// message with no ledger lock held, then settles the row. Only a 4xx refusal
// by the counterpart refunds the sender. A 5xx answer or a transport failure
// leaves the row PENDING for reconciliation.
func (s *TransferService) sendRemote(ctx context.Context, msg *protocol.Message, sender models.Account, actor string) (Result, error) {
	amount := msg.Amount.Value
	destBank := msg.Receiver.BankCode
	// Once money has moved, the settlement steps must run even if the caller
	// goes away.
	settleCtx := context.WithoutCancel(ctx)

	var pending models.Transaction
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := q.LockAccounts(ctx, []string{sender.IBAN}); err != nil {
			return fmt.Errorf("lock sender: %w", err)
		}
		fresh, err := q.GetAccountByIBAN(ctx, sender.IBAN)
		if err != nil {
			return fmt.Errorf("reload sender: %w", err)
		}
		if err := requireActive(fresh); err != nil {
			return err
		}
		rows, err := q.DebitAccount(ctx, repository.BalanceChangeParams{IBAN: sender.IBAN, Amount: amount})
		if err != nil {
			return fmt.Errorf("debit sender: %w", err)
		}
		if rows == 0 {
			return domain.ErrInsufficientFunds
		}

		params := ledgerRow(msg, domain.TxStatusPending, domain.DirectionOutbound)
		if params.OriginIBAN == nil {
			params.OriginIBAN = strPtr(sender.IBAN)
		}
		pending, err = q.CreateTransaction(ctx, params)
		if err != nil {
			return fmt.Errorf("insert pending transaction: %w", err)
		}
		meta := auditMetadata(map[string]any{"destination_bank": destBank, "amount": amount.Fixed(), "currency": msg.Amount.Currency})
		return s.audit.Write(ctx, q, "transaction", pending.ID, actor, "transfer.debited", "", domain.TxStatusPending, meta)
	})
	if err != nil {
		err = storageError("record outbound transfer", err)
		observability.IncrementTransfer(domain.DirectionOutbound, domain.Code(err))
		zap.L().Warn("outbound transfer rejected",
			zap.String("transaction_id", msg.TransactionID),
			zap.String("code", domain.Code(err)),
			zap.Error(err),
		)
		return Result{}, err
	}

	deliverErr := s.gateway.Deliver(settleCtx, destBank, msg)
	if deliverErr == nil {
		return s.settleDelivered(settleCtx, pending, actor)
	}

	var remote *domain.RemoteBankError
	isRemote := errors.As(deliverErr, &remote)
	if (isRemote && remote.Refused()) || errors.Is(deliverErr, domain.ErrNoRouteToBank) {
		return Result{}, s.settleRefused(settleCtx, pending, sender.IBAN, destBank, actor, deliverErr)
	}

	observability.IncrementTransfer(domain.DirectionOutbound, "unknown")
	zap.L().Error("outbound transfer outcome unknown, left pending",
		zap.String("transaction_id", pending.ID),
		zap.String("destination_bank", destBank),
		zap.Error(deliverErr),
	)
	if !isRemote {
		remote = &domain.RemoteBankError{
			BankCode: destBank,
			Message:  "delivery outcome unknown: " + deliverErr.Error(),
		}
	}
	return Result{}, fmt.Errorf("transaction %s left pending: %w", pending.ID, remote)
}

func (s *TransferService) settleDelivered(ctx context.Context, pending models.Transaction, actor string) (Result, error) {
	var done models.Transaction
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := transitionTransactionState(ctx, q, s.audit, pending.ID, domain.TxStatusCompleted, actor, "transfer.delivered", nil, nil); err != nil {
			return err
		}
		t, err := q.GetTransaction(ctx, pending.ID)
		if err != nil {
			return fmt.Errorf("reload transaction: %w", err)
		}
		done = t
		return nil
	})
	if err != nil {
		zap.L().Error("counterpart accepted transfer but completion was not recorded",
			zap.String("transaction_id", pending.ID),
			zap.Error(err),
		)
		return Result{}, storageError("complete outbound transfer", err)
	}

	observability.IncrementTransfer(domain.DirectionOutbound, "completed")
	zap.L().Info("outbound transfer completed",
		zap.String("transaction_id", done.ID),
		zap.String("destination_bank", done.DestBank),
	)
	if s.notifier != nil {
		s.notifier.Notify(done)
	}
	return Result{Transaction: done}, nil
}

func (s *TransferService) settleRefused(ctx context.Context, pending models.Transaction, senderIBAN, destBank, actor string, cause error) error {
	reason := cause.Error()
	var remote *domain.RemoteBankError
	if errors.As(cause, &remote) {
		reason = remote.Message
	}

	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		rows, err := q.CreditAccount(ctx, repository.BalanceChangeParams{IBAN: senderIBAN, Amount: pending.Amount})
		if err != nil {
			return fmt.Errorf("refund sender: %w", err)
		}
		if err := requireExactlyOne(rows, "refund sender"); err != nil {
			return err
		}
		meta := auditMetadata(map[string]any{"destination_bank": destBank, "reason": reason})
		return transitionTransactionState(ctx, q, s.audit, pending.ID, domain.TxStatusRejected, actor, "transfer.refunded", &reason, meta)
	})
	if err != nil {
		zap.L().Error("refund after refused delivery failed",
			zap.String("transaction_id", pending.ID),
			zap.Error(err),
		)
		return storageError("refund refused transfer", err)
	}

	observability.IncrementTransfer(domain.DirectionOutbound, domain.Code(cause))
	zap.L().Warn("outbound transfer refused",
		zap.String("transaction_id", pending.ID),
		zap.String("destination_bank", destBank),
		zap.String("reason", reason),
	)
	return cause
}

// Get returns a transaction the user is a party to.
func (s *TransferService) Get(ctx context.Context, userID, id string) (models.Transaction, error) {
	q := s.store.Queries()
	t, err := q.GetTransaction(ctx, id)
	if isNoRows(err) {
		return models.Transaction{}, domain.ErrTransactionNotFound
	}
	if err != nil {
		return models.Transaction{}, storageError("get transaction", err)
	}
	user, err := q.GetUserByID(ctx, userID)
	if isNoRows(err) {
		return models.Transaction{}, domain.ErrTransactionNotFound
	}
	if err != nil {
		return models.Transaction{}, storageError("get user", err)
	}
	if !involves(t, user) {
		return models.Transaction{}, domain.ErrTransactionNotFound
	}
	return t, nil
}

// Customer returns the user behind an authenticated request.
func (s *TransferService) Customer(ctx context.Context, userID string) (models.User, error) {
	user, err := s.store.Queries().GetUserByID(ctx, userID)
	if isNoRows(err) {
		return models.User{}, fmt.Errorf("%w: unknown user", domain.ErrAuthenticationFailed)
	}
	if err != nil {
		return models.User{}, storageError("get user", err)
	}
	return user, nil
}

func involves(t models.Transaction, u models.User) bool {
	for _, v := range []*string{t.OriginIBAN, t.DestIBAN} {
		if v != nil && *v == u.IBAN {
			return true
		}
	}
	for _, v := range []*string{t.OriginPhone, t.DestPhone} {
		if v != nil && *v == u.Phone {
			return true
		}
	}
	return false
}

func (s *TransferService) holderName(acct models.Account) string {
	name, err := domain.RevealHolderName(acct.Holder, s.names)
	if err != nil {
		zap.L().Warn("holder name unavailable", zap.String("iban", acct.IBAN), zap.Error(err))
		return ""
	}
	return name
}
